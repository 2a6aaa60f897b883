// Package modules locates installed dependency packages whose CMake
// configuration a build needs.
package modules

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/goplus/cmakext/internal/env"
)

// PackagePathEnv lists extra package roots, separated like PATH.
const PackagePathEnv = "CMAKEXT_PACKAGE_PATH"

// ErrDependency reports a dependency package that cannot be located.
var ErrDependency = errors.New("dependency error")

// Resolver maps a dependency package name to its installed directory.
type Resolver interface {
	Resolve(name string) (string, error)
}

// PathResolver looks for <root>/<name> directories in Roots, in order.
type PathResolver struct {
	Roots []string
}

// NewPathResolver returns a resolver over roots followed by the entries of
// $CMAKEXT_PACKAGE_PATH.
func NewPathResolver(roots ...string) *PathResolver {
	all := append([]string(nil), roots...)
	all = append(all, env.SplitList(os.Getenv(PackagePathEnv))...)
	return &PathResolver{Roots: all}
}

// Resolve returns the absolute directory of package name.
func (r *PathResolver) Resolve(name string) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: invalid package name '%s'", ErrDependency, name)
	}
	for _, root := range r.Roots {
		dir := filepath.Join(root, name)
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrDependency, name, err)
		}
		return abs, nil
	}
	return "", fmt.Errorf("%w: failed to locate '%s'", ErrDependency, name)
}

// MapResolver resolves names from a fixed table.
type MapResolver map[string]string

func (m MapResolver) Resolve(name string) (string, error) {
	dir, ok := m[name]
	if !ok {
		return "", fmt.Errorf("%w: failed to locate '%s'", ErrDependency, name)
	}
	return dir, nil
}

// DefaultPython is the interpreter asked for installed packages.
const DefaultPython = "python3"

const findSpec = `import importlib.util, sys
spec = importlib.util.find_spec(sys.argv[1])
if spec is None or not spec.origin:
    sys.exit(1)
print(spec.origin)`

// PythonResolver locates a package through the import system of a Python
// interpreter. The package directory is the parent of its spec origin,
// usually <site-packages>/<name>/__init__.py.
type PythonResolver struct {
	// Python defaults to DefaultPython.
	Python string
}

func (r *PythonResolver) Resolve(name string) (string, error) {
	python := r.Python
	if python == "" {
		python = DefaultPython
	}
	var stderr bytes.Buffer
	cmd := exec.Command(python, "-c", findSpec, name)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%w: failed to import '%s': %s", ErrDependency, name, lastLine(msg))
		}
		return "", fmt.Errorf("%w: failed to import '%s': %v", ErrDependency, name, err)
	}
	origin := strings.TrimSpace(string(out))
	if !filepath.IsAbs(origin) {
		// "built-in" and "frozen" modules have no directory.
		return "", fmt.Errorf("%w: '%s' has no install location (%s)", ErrDependency, name, origin)
	}
	return filepath.Dir(origin), nil
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Chain tries each resolver in order and returns the first match.
type Chain []Resolver

func (c Chain) Resolve(name string) (string, error) {
	err := fmt.Errorf("%w: failed to locate '%s'", ErrDependency, name)
	for _, r := range c {
		dir, rerr := r.Resolve(name)
		if rerr == nil {
			return dir, nil
		}
		err = rerr
	}
	return "", err
}
