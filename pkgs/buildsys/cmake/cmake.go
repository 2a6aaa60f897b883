// Package cmake composes and runs the CMake configure/build/install workflow.
package cmake

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goplus/cmakext/pkgs/buildsys"
)

// PrefixPathEnv is the search path CMake uses to find dependency packages.
const PrefixPathEnv = "CMAKE_PREFIX_PATH"

type defineValue struct {
	value    string
	typeName string
}

// CMake wraps the three CMake steps with chainable configuration. Nothing is
// written to the process environment: dependency prefixes and extra
// variables are only set on the commands it starts.
type CMake struct {
	sourceDir  string
	buildDir   string
	installDir string
	generator  string
	buildType  string
	toolchain  string
	component  string
	defines    map[string]defineValue
	options    []string
	cacheArgs  []string
	prefixPath []string
	env        map[string]string
	runner     buildsys.Runner
}

var _ buildsys.BuildSystem = (*CMake)(nil)

// New returns a CMake that configures sourceDir into buildDir and installs
// into installDir.
func New(sourceDir, buildDir, installDir string) *CMake {
	return &CMake{
		sourceDir:  sourceDir,
		buildDir:   buildDir,
		installDir: installDir,
		defines:    map[string]defineValue{},
		env:        map[string]string{},
		runner:     &buildsys.ExecRunner{},
	}
}

// Runner replaces the runner used to start cmake.
func (c *CMake) Runner(r buildsys.Runner) *CMake {
	c.runner = r
	return c
}

// Generator sets the CMake generator (e.g. "Ninja", "Unix Makefiles").
func (c *CMake) Generator(name string) *CMake {
	c.generator = name
	return c
}

// BuildType sets CMAKE_BUILD_TYPE and the --config of the build step.
func (c *CMake) BuildType(name string) *CMake {
	c.buildType = name
	return c
}

// Toolchain sets CMAKE_TOOLCHAIN_FILE.
func (c *CMake) Toolchain(path string) *CMake {
	c.toolchain = path
	return c
}

// Component limits the install step to one install component.
func (c *CMake) Component(name string) *CMake {
	c.component = name
	return c
}

// Define adds a -D<key>:STRING=<value> definition.
func (c *CMake) Define(key, value string) *CMake {
	c.defines[key] = defineValue{value: value, typeName: "STRING"}
	return c
}

// DefineBool adds a -D<key>:BOOL=ON/OFF definition.
func (c *CMake) DefineBool(key string, value bool) *CMake {
	v := "OFF"
	if value {
		v = "ON"
	}
	c.defines[key] = defineValue{value: v, typeName: "BOOL"}
	return c
}

// Options appends raw configure arguments. They follow the typed definitions.
func (c *CMake) Options(opts ...string) *CMake {
	c.options = append(c.options, opts...)
	return c
}

// CacheDefines appends cache overrides given as "KEY=VALUE;KEY=VALUE".
// They are the last configure arguments, so they win over everything else.
func (c *CMake) CacheDefines(defines string) *CMake {
	c.cacheArgs = append(c.cacheArgs, ParseDefines(defines)...)
	return c
}

// Use puts an installed dependency prefix in front of the search path.
func (c *CMake) Use(prefix string) {
	c.prefixPath = append([]string{prefix}, c.prefixPath...)
}

// Env sets an environment variable for the cmake processes.
func (c *CMake) Env(key, value string) {
	c.env[key] = value
}

// Configure runs "cmake -S <source> -B <build>" with all configured options.
func (c *CMake) Configure(ctx context.Context) error {
	if err := os.MkdirAll(c.buildDir, 0o755); err != nil {
		return err
	}
	return c.runner.Run(ctx, c.ConfigureCommand())
}

// Build runs "cmake --build <build>".
func (c *CMake) Build(ctx context.Context) error {
	return c.runner.Run(ctx, c.BuildCommand())
}

// Install runs "cmake --install <build>".
func (c *CMake) Install(ctx context.Context) error {
	return c.runner.Run(ctx, c.InstallCommand())
}

// OutputDir returns the install dir if set, otherwise the build dir.
func (c *CMake) OutputDir() string {
	if c.installDir != "" {
		return c.installDir
	}
	return c.buildDir
}

// ConfigureCommand returns the configure step command.
func (c *CMake) ConfigureCommand() *buildsys.Command {
	args := []string{"-S", c.sourceDir, "-B", c.buildDir}
	if c.generator != "" {
		args = append(args, "-G", c.generator)
	}
	args = append(args, c.definesArgs()...)
	args = append(args, c.options...)
	args = append(args, c.cacheArgs...)
	return c.command(args)
}

// BuildCommand returns the build step command.
func (c *CMake) BuildCommand() *buildsys.Command {
	args := []string{"--build", c.buildDir}
	if c.buildType != "" {
		args = append(args, "--config", c.buildType)
	}
	return c.command(args)
}

// InstallCommand returns the install step command.
func (c *CMake) InstallCommand() *buildsys.Command {
	args := []string{"--install", c.buildDir}
	if c.component != "" {
		args = append(args, "--component", c.component)
	}
	return c.command(args)
}

func (c *CMake) command(args []string) *buildsys.Command {
	return &buildsys.Command{Path: "cmake", Args: args, Env: c.childEnv()}
}

func (c *CMake) definesArgs() []string {
	defines := make(map[string]defineValue, len(c.defines)+3)
	for k, v := range c.defines {
		defines[k] = v
	}
	if c.installDir != "" {
		defines["CMAKE_INSTALL_PREFIX"] = defineValue{value: c.installDir, typeName: "PATH"}
	}
	if c.toolchain != "" {
		defines["CMAKE_TOOLCHAIN_FILE"] = defineValue{value: c.toolchain, typeName: "FILEPATH"}
	}
	if c.buildType != "" {
		defines["CMAKE_BUILD_TYPE"] = defineValue{value: c.buildType, typeName: "STRING"}
	}
	if len(defines) == 0 {
		return nil
	}
	keys := make([]string, 0, len(defines))
	for k := range defines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, 0, len(keys))
	for _, k := range keys {
		def := defines[k]
		if def.typeName != "" {
			args = append(args, "-D"+k+":"+def.typeName+"="+def.value)
			continue
		}
		args = append(args, "-D"+k+"="+def.value)
	}
	return args
}

// childEnv returns the variables set on top of the inherited environment.
func (c *CMake) childEnv() []string {
	keys := make([]string, 0, len(c.env))
	for k := range c.env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		if k == PrefixPathEnv && len(c.prefixPath) > 0 {
			continue
		}
		env = append(env, k+"="+c.env[k])
	}
	if len(c.prefixPath) > 0 {
		inherited := os.Getenv(PrefixPathEnv)
		if v, ok := c.env[PrefixPathEnv]; ok {
			inherited = v
		}
		env = append(env, PrefixPathEnv+"="+JoinList(c.prefixPath, inherited))
	}
	return env
}

// ParseDefines turns "BAR=b;FOO=f" into ["-DBAR=b", "-DFOO=f"]. Entries are
// split on ';' only and kept in order. An empty string yields no entries.
func ParseDefines(defines string) []string {
	if defines == "" {
		return nil
	}
	parts := strings.Split(defines, ";")
	args := make([]string, 0, len(parts))
	for _, define := range parts {
		args = append(args, "-D"+define)
	}
	return args
}

// JoinList joins paths with the OS list separator, followed by the
// already existing list value if any.
func JoinList(paths []string, existing string) string {
	value := strings.Join(paths, string(filepath.ListSeparator))
	if existing == "" {
		return value
	}
	if value == "" {
		return existing
	}
	return value + string(filepath.ListSeparator) + existing
}
