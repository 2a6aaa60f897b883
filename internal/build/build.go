package build

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/goplus/cmakext/extension"
	"github.com/goplus/cmakext/internal/dispatch"
	"github.com/goplus/cmakext/internal/env"
	"github.com/goplus/cmakext/internal/modules"
	"github.com/goplus/cmakext/pkgs/buildsys"
	"github.com/goplus/cmakext/pkgs/buildsys/cmake"
	"github.com/qiniu/x/log"
)

// DefaultGenerator is the CMake generator used when none is configured.
const DefaultGenerator = "Ninja"

// InitFile is the package initializer written at the install root.
const InitFile = "__init__.py"

// Options configures a Builder.
type Options struct {
	// DestRoot is where this packaging run places compiled artifacts. Each
	// extension installs into DestRoot/<install prefix>.
	DestRoot string
	// Editable marks an in-place build.
	Editable bool
	// Defines holds cache overrides as "KEY=VALUE;KEY=VALUE".
	Defines string
	// BuildTemp is the staging base; an extension stages in BuildTemp_<name>.
	BuildTemp string
	// Generator defaults to DefaultGenerator.
	Generator string
	// PrefixPath seeds the dependency search path, most recent first.
	PrefixPath []string

	Runner   buildsys.Runner
	Resolver modules.Resolver
	Reporter Reporter
	Checker  *env.Checker
}

// Result describes what happened to one extension.
type Result struct {
	Name        string
	InstallRoot string
	Skipped     bool
	// Files lists the generated files (initializer, dispatcher).
	Files []string
}

// Builder configures, builds and installs extensions one after another.
type Builder struct {
	opts       Options
	prefixPath []string
}

// NewBuilder validates opts and fills in defaults.
func NewBuilder(opts Options) (*Builder, error) {
	if opts.DestRoot == "" {
		return nil, fmt.Errorf("%w: destination root is not set", extension.ErrConfig)
	}
	destRoot, err := filepath.Abs(opts.DestRoot)
	if err != nil {
		return nil, err
	}
	opts.DestRoot = destRoot

	if opts.BuildTemp == "" {
		if opts.BuildTemp, err = env.BuildTempDir(); err != nil {
			return nil, err
		}
	}
	if opts.BuildTemp, err = filepath.Abs(opts.BuildTemp); err != nil {
		return nil, err
	}
	if opts.Generator == "" {
		opts.Generator = DefaultGenerator
	}
	if opts.Runner == nil {
		opts.Runner = &buildsys.ExecRunner{}
	}
	if opts.Resolver == nil {
		opts.Resolver = modules.NewPathResolver()
	}
	if opts.Reporter == nil {
		opts.Reporter = &TextReporter{W: os.Stdout}
	}
	if opts.Checker == nil {
		opts.Checker = &env.Checker{}
	}
	return &Builder{
		opts:       opts,
		prefixPath: slices.Clone(opts.PrefixPath),
	}, nil
}

// DestRoot returns the absolute destination root.
func (b *Builder) DestRoot() string {
	return b.opts.DestRoot
}

// PrefixPath returns the dependency search path accumulated so far, most
// recent first.
func (b *Builder) PrefixPath() []string {
	return slices.Clone(b.prefixPath)
}

// Build processes exts in order and stops at the first error. Required tools
// are checked once before anything runs.
func (b *Builder) Build(ctx context.Context, exts []*extension.Extension) ([]Result, error) {
	if len(exts) == 0 {
		return nil, fmt.Errorf("%w: no extensions to build", extension.ErrConfig)
	}
	if err := b.opts.Checker.Check(ctx, env.RequiredTools(b.opts.Generator)); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(exts))
	for _, ext := range exts {
		result, err := b.build(ctx, ext)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (b *Builder) build(ctx context.Context, ext *extension.Extension) (Result, error) {
	result := Result{Name: ext.Name()}

	if b.opts.Editable && ext.EditableDisabled() {
		log.Infof("Editable install recognized. Extension '%s' disabled.", ext.Name())
		result.Skipped = true
		return result, nil
	}

	installRoot := filepath.Join(b.opts.DestRoot, ext.InstallPrefix())
	bs := b.newBuildSystem(ext, installRoot)
	for _, prefix := range slices.Backward(b.prefixPath) {
		bs.Use(prefix)
	}
	for _, pkg := range ext.DependsOn() {
		prefix, err := b.resolve(pkg)
		if err != nil {
			return result, fmt.Errorf("extension %s: %w", ext.Name(), err)
		}
		bs.Use(prefix)
		b.prefixPath = append([]string{prefix}, b.prefixPath...)
	}

	steps := []struct {
		title string
		run   func(context.Context) error
	}{
		{"Configuring", bs.Configure},
		{"Building", bs.Build},
		{"Installing", bs.Install},
	}
	for _, step := range steps {
		b.opts.Reporter.Phase(step.title)
		if err := step.run(ctx); err != nil {
			return result, fmt.Errorf("failed to build extension %s: %w", ext.Name(), err)
		}
	}
	result.InstallRoot = bs.OutputDir()

	if content, ok := ext.TopLevelInit(); ok {
		file, err := writeInit(result.InstallRoot, content)
		if err != nil {
			return result, err
		}
		result.Files = append(result.Files, file)
	}

	if exposed := ext.ExposeBinaries(); len(exposed) > 0 {
		files, err := dispatch.Install(result.InstallRoot, exposed)
		if err != nil {
			return result, fmt.Errorf("failed to install dispatcher for %s: %w", ext.Name(), err)
		}
		result.Files = append(result.Files, files...)
	}
	return result, nil
}

// resolve returns the absolute installed directory of dependency pkg.
func (b *Builder) resolve(pkg string) (string, error) {
	dir, err := b.opts.Resolver.Resolve(pkg)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("%w: path %s of '%s' does not exist", modules.ErrDependency, abs, pkg)
	}
	log.Debugf("Using %s from %s", pkg, abs)
	return abs, nil
}

// newBuildSystem applies the extension settings to a CMake build. Dependency
// prefixes are added by the caller through Use.
func (b *Builder) newBuildSystem(ext *extension.Extension, installRoot string) buildsys.BuildSystem {
	runner := &echoRunner{reporter: b.opts.Reporter, runner: b.opts.Runner}
	c := cmake.New(ext.SourceDir(), b.stageDir(ext), installRoot).
		Runner(runner).
		Generator(b.opts.Generator).
		BuildType(ext.BuildType()).
		Toolchain(ext.Toolchain()).
		Component(ext.Component()).
		Options(ext.ConfigureOptions()...).
		CacheDefines(b.opts.Defines)
	for k, v := range ext.Defines() {
		c.Define(k, v)
	}
	for k, v := range ext.BoolDefines() {
		c.DefineBool(k, v)
	}
	for k, v := range ext.Env() {
		c.Env(k, v)
	}
	return c
}

// stageDir keeps extensions of one run from sharing a CMake build tree.
func (b *Builder) stageDir(ext *extension.Extension) string {
	return b.opts.BuildTemp + "_" + ext.Name()
}

func writeInit(installRoot, content string) (string, error) {
	if err := os.MkdirAll(installRoot, 0o755); err != nil {
		return "", err
	}
	file := filepath.Join(installRoot, InitFile)
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		return "", err
	}
	return file, nil
}

// -----------------------------------------------------------------------------

// Reporter echoes the build progress.
type Reporter interface {
	Phase(title string)
	Command(cmd *buildsys.Command)
}

// TextReporter writes plain progress lines to W.
type TextReporter struct {
	W io.Writer
}

func (r *TextReporter) Phase(title string) {
	fmt.Fprintf(r.W, "\n==> %s:\n", title)
}

func (r *TextReporter) Command(cmd *buildsys.Command) {
	fmt.Fprintf(r.W, "$ %s\n\n", cmd)
}

// echoRunner prints each command before running it, so a failing command
// can be reproduced by hand.
type echoRunner struct {
	reporter Reporter
	runner   buildsys.Runner
}

func (r *echoRunner) Run(ctx context.Context, cmd *buildsys.Command) error {
	r.reporter.Command(cmd)
	return r.runner.Run(ctx, cmd)
}
