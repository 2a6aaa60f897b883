// Package extension describes native build units that are configured, built
// and installed with CMake and then packaged as importable modules.
package extension

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
)

// DefaultBuildType is the CMAKE_BUILD_TYPE used when none is given.
const DefaultBuildType = "Release"

// ErrConfig reports an invalid extension or project configuration.
var ErrConfig = errors.New("configuration error")

// -----------------------------------------------------------------------------

// Extension is one CMake project that is built and installed into the
// package tree. It is immutable once created by New.
type Extension struct {
	name             string
	installPrefix    string
	sourceDir        string
	buildType        string
	configureOptions []string
	dependsOn        []string
	disableEditable  bool
	exposeBinaries   []string
	topLevelInit     *string
	component        string
	toolchain        string
	defines          map[string]string
	boolDefines      map[string]bool
	env              map[string]string
}

// Option configures an Extension during New.
type Option func(*Extension)

// WithSourceDir sets the directory holding the main CMakeLists.txt.
// Relative paths are resolved against the current working directory.
func WithSourceDir(dir string) Option {
	return func(e *Extension) { e.sourceDir = dir }
}

// WithBuildType overrides DefaultBuildType.
func WithBuildType(buildType string) Option {
	return func(e *Extension) { e.buildType = buildType }
}

// WithConfigureOptions appends options passed verbatim to the configure step.
func WithConfigureOptions(opts ...string) Option {
	return func(e *Extension) { e.configureOptions = append(e.configureOptions, opts...) }
}

// WithDependsOn declares packages whose installed location must be visible
// to CMake through CMAKE_PREFIX_PATH.
func WithDependsOn(pkgs ...string) Option {
	return func(e *Extension) { e.dependsOn = append(e.dependsOn, pkgs...) }
}

// DisableEditable skips the extension during in-place builds.
func DisableEditable() Option {
	return func(e *Extension) { e.disableEditable = true }
}

// WithExposedBinaries lists installed executables, relative to the install
// prefix, that are reachable through the bin dispatcher.
func WithExposedBinaries(paths ...string) Option {
	return func(e *Extension) { e.exposeBinaries = append(e.exposeBinaries, paths...) }
}

// WithTopLevelInit sets the content written to the package __init__.py.
func WithTopLevelInit(content string) Option {
	return func(e *Extension) { e.topLevelInit = &content }
}

// WithComponent restricts the install step to a single CMake component.
func WithComponent(component string) Option {
	return func(e *Extension) { e.component = component }
}

// WithToolchain sets CMAKE_TOOLCHAIN_FILE for cross builds.
func WithToolchain(path string) Option {
	return func(e *Extension) { e.toolchain = path }
}

// WithDefine adds a -D<key>:STRING=<value> cache entry.
func WithDefine(key, value string) Option {
	return func(e *Extension) {
		if e.defines == nil {
			e.defines = map[string]string{}
		}
		e.defines[key] = value
	}
}

// WithBoolDefine adds a -D<key>:BOOL=ON/OFF cache entry.
func WithBoolDefine(key string, value bool) Option {
	return func(e *Extension) {
		if e.boolDefines == nil {
			e.boolDefines = map[string]bool{}
		}
		e.boolDefines[key] = value
	}
}

// WithEnv sets an environment variable for the cmake processes of this
// extension only.
func WithEnv(key, value string) Option {
	return func(e *Extension) {
		if e.env == nil {
			e.env = map[string]string{}
		}
		e.env[key] = value
	}
}

// New creates an Extension. The source directory is resolved to an absolute
// path and must exist.
func New(name, installPrefix string, opts ...Option) (*Extension, error) {
	e := &Extension{
		name:          name,
		installPrefix: installPrefix,
		buildType:     DefaultBuildType,
	}
	for _, opt := range opts {
		opt(e)
	}

	sourceDir := e.sourceDir
	if !filepath.IsAbs(sourceDir) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		sourceDir = filepath.Join(wd, sourceDir)
	}
	info, err := os.Stat(sourceDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: directory '%s' does not exist", ErrConfig, sourceDir)
	}
	e.sourceDir = filepath.Clean(sourceDir)
	return e, nil
}

// -----------------------------------------------------------------------------

// Name returns the unique name of the build unit.
func (e *Extension) Name() string { return e.name }

// InstallPrefix returns the install location relative to the destination root.
func (e *Extension) InstallPrefix() string { return e.installPrefix }

// SourceDir returns the absolute source directory.
func (e *Extension) SourceDir() string { return e.sourceDir }

// BuildType returns the CMake build type.
func (e *Extension) BuildType() string { return e.buildType }

// ConfigureOptions returns the extra configure options.
func (e *Extension) ConfigureOptions() []string { return slices.Clone(e.configureOptions) }

// DependsOn returns the dependency package names.
func (e *Extension) DependsOn() []string { return slices.Clone(e.dependsOn) }

// EditableDisabled reports whether in-place builds skip this extension.
func (e *Extension) EditableDisabled() bool { return e.disableEditable }

// ExposeBinaries returns the exposed executables.
func (e *Extension) ExposeBinaries() []string { return slices.Clone(e.exposeBinaries) }

// TopLevelInit returns the __init__.py content and whether it was set.
func (e *Extension) TopLevelInit() (string, bool) {
	if e.topLevelInit == nil {
		return "", false
	}
	return *e.topLevelInit, true
}

// Component returns the CMake install component, or "" for all components.
func (e *Extension) Component() string { return e.component }

// Toolchain returns the CMake toolchain file, or "".
func (e *Extension) Toolchain() string { return e.toolchain }

// Defines returns the typed STRING cache entries.
func (e *Extension) Defines() map[string]string { return maps.Clone(e.defines) }

// BoolDefines returns the typed BOOL cache entries.
func (e *Extension) BoolDefines() map[string]bool { return maps.Clone(e.boolDefines) }

// Env returns the extra environment of the cmake processes.
func (e *Extension) Env() map[string]string { return maps.Clone(e.env) }

func (e *Extension) String() string {
	return e.name
}
