// Package config loads a cmakext.hcl project file.
//
// A project file lists one extension block per CMake project:
//
//	generator    = "Ninja"
//	package_path = ["${config_dir}/.venv/lib/site-packages"]
//
//	extension "Pybind11Bindings" {
//	  install_prefix    = "mymath_pybind11"
//	  depends_on        = ["pybind11"]
//	  configure_options = ["-DPython3_ROOT_DIR=${env.VIRTUAL_ENV}"]
//	  expose_binaries   = ["bin/print_answer"]
//	  defines           = { Python3_EXECUTABLE = "${env.VIRTUAL_ENV}/bin/python", BUILD_TESTING = false }
//	}
//
// Expressions can reference config_dir and env.<NAME>. Relative paths are
// resolved against the directory of the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/cmakext/extension"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// DefaultFile is the project file looked up by the CLI.
const DefaultFile = "cmakext.hcl"

// Config is a decoded project file.
type Config struct {
	// Dir is the absolute directory of the project file.
	Dir         string
	Generator   string
	BuildTemp   string
	PackagePath []string
	Extensions  []*extension.Extension
}

type hclFile struct {
	Generator   string          `hcl:"generator,optional"`
	BuildTemp   string          `hcl:"build_temp,optional"`
	PackagePath []string        `hcl:"package_path,optional"`
	Extensions  []*hclExtension `hcl:"extension,block"`
}

type hclExtension struct {
	Name             string   `hcl:"name,label"`
	InstallPrefix    string   `hcl:"install_prefix"`
	SourceDir        string   `hcl:"source_dir,optional"`
	BuildType        *string  `hcl:"build_type,optional"`
	ConfigureOptions []string `hcl:"configure_options,optional"`
	DependsOn        []string `hcl:"depends_on,optional"`
	DisableEditable  bool     `hcl:"disable_editable,optional"`
	ExposeBinaries   []string `hcl:"expose_binaries,optional"`
	TopLevelInit     *string  `hcl:"top_level_init,optional"`
	Component        string   `hcl:"component,optional"`

	Toolchain string            `hcl:"toolchain,optional"`
	Defines   hcl.Expression    `hcl:"defines,optional"`
	Env       map[string]string `hcl:"env,optional"`
}

// Load reads and decodes the project file at path.
func Load(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", extension.ErrConfig, err)
	}
	return Parse(src, path)
}

// Parse decodes src as the project file filename.
func Parse(src []byte, filename string) (*Config, error) {
	abs, err := filepath.Abs(filename)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(abs)

	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: failed to parse %s: %w", extension.ErrConfig, filename, diags)
	}

	ctx := evalContext(dir)
	var parsed hclFile
	diags = gohcl.DecodeBody(file.Body, ctx, &parsed)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: failed to decode %s: %w", extension.ErrConfig, filename, diags)
	}

	cfg := &Config{
		Dir:       dir,
		Generator: parsed.Generator,
	}
	if parsed.BuildTemp != "" {
		cfg.BuildTemp = resolve(dir, parsed.BuildTemp)
	}
	for _, p := range parsed.PackagePath {
		cfg.PackagePath = append(cfg.PackagePath, resolve(dir, p))
	}

	seen := make(map[string]bool, len(parsed.Extensions))
	for _, e := range parsed.Extensions {
		if seen[e.Name] {
			return nil, fmt.Errorf("%w: duplicate extension '%s' in %s", extension.ErrConfig, e.Name, filename)
		}
		seen[e.Name] = true

		ext, err := e.extension(dir, ctx)
		if err != nil {
			return nil, fmt.Errorf("extension %s: %w", e.Name, err)
		}
		cfg.Extensions = append(cfg.Extensions, ext)
	}
	return cfg, nil
}

func (e *hclExtension) extension(dir string, ctx *hcl.EvalContext) (*extension.Extension, error) {
	opts := []extension.Option{
		extension.WithSourceDir(resolve(dir, e.SourceDir)),
		extension.WithConfigureOptions(e.ConfigureOptions...),
		extension.WithDependsOn(e.DependsOn...),
		extension.WithExposedBinaries(e.ExposeBinaries...),
		extension.WithComponent(e.Component),
	}
	if e.BuildType != nil {
		opts = append(opts, extension.WithBuildType(*e.BuildType))
	}
	if e.DisableEditable {
		opts = append(opts, extension.DisableEditable())
	}
	if e.TopLevelInit != nil {
		opts = append(opts, extension.WithTopLevelInit(*e.TopLevelInit))
	}
	if e.Toolchain != "" {
		opts = append(opts, extension.WithToolchain(resolve(dir, e.Toolchain)))
	}
	for k, v := range e.Env {
		opts = append(opts, extension.WithEnv(k, v))
	}
	defines, err := e.defines(ctx)
	if err != nil {
		return nil, err
	}
	opts = append(opts, defines...)
	return extension.New(e.Name, e.InstallPrefix, opts...)
}

// defines turns the defines object into typed cache entries: bools become
// BOOL entries, everything else is converted to a STRING entry.
func (e *hclExtension) defines(ctx *hcl.EvalContext) ([]extension.Option, error) {
	if e.Defines == nil {
		return nil, nil
	}
	val, diags := e.Defines.Value(ctx)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: defines: %w", extension.ErrConfig, diags)
	}
	if val.IsNull() {
		return nil, nil
	}
	ty := val.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil, fmt.Errorf("%w: defines must be an object, got %s", extension.ErrConfig, ty.FriendlyName())
	}

	var opts []extension.Option
	for it := val.ElementIterator(); it.Next(); {
		k, v := it.Element()
		key := k.AsString()
		if v.IsNull() || !v.IsKnown() {
			return nil, fmt.Errorf("%w: define '%s' has no value", extension.ErrConfig, key)
		}
		if v.Type() == cty.Bool {
			opts = append(opts, extension.WithBoolDefine(key, v.True()))
			continue
		}
		str, err := convert.Convert(v, cty.String)
		if err != nil {
			return nil, fmt.Errorf("%w: define '%s': %v", extension.ErrConfig, key, err)
		}
		opts = append(opts, extension.WithDefine(key, str.AsString()))
	}
	return opts, nil
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func evalContext(dir string) *hcl.EvalContext {
	vars := map[string]cty.Value{}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !hclsyntax.ValidIdentifier(k) {
			continue
		}
		vars[k] = cty.StringVal(v)
	}
	envVal := cty.EmptyObjectVal
	if len(vars) > 0 {
		envVal = cty.ObjectVal(vars)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"config_dir": cty.StringVal(dir),
			"env":        envVal,
		},
	}
}

// Skeleton returns a starter project file for a package named pkg.
func Skeleton(pkg string) string {
	return fmt.Sprintf(`# cmakext project file.
generator = "Ninja"

extension %[1]q {
  # Package directory, relative to the destination root.
  install_prefix = %[1]q

  # Directory holding the main CMakeLists.txt.
  source_dir = "."

  build_type        = "Release"
  configure_options = []
  depends_on        = []

  # expose_binaries = ["bin/%[1]s"]
  # top_level_init  = "from . import bindings\n"
}
`, pkg)
}
