// Package env checks the host for the tools a build needs.
package env

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"golang.org/x/mod/semver"
)

// ErrEnvironment reports a missing or unusable external tool.
var ErrEnvironment = errors.New("environment error")

// MinCMakeVersion is the first CMake release that supports "cmake --install".
const MinCMakeVersion = "v3.15.0"

// Tool describes an external command the build depends on.
type Tool struct {
	// Name is the binary looked up in PATH.
	Name string
	// MinVersion, if set, is the lowest accepted semver of the tool.
	MinVersion string
}

// Checker verifies tools before any build work starts.
type Checker struct {
	// LookPath defaults to exec.LookPath.
	LookPath func(file string) (string, error)
	// Version returns the version of the tool at path. Defaults to parsing
	// "<tool> --version".
	Version func(ctx context.Context, path string) (string, error)
}

// RequiredTools returns the tools needed to build with generator.
func RequiredTools(generator string) []Tool {
	tools := []Tool{{Name: "cmake", MinVersion: MinCMakeVersion}}
	if strings.HasPrefix(generator, "Ninja") {
		tools = append(tools, Tool{Name: "ninja"})
	}
	return tools
}

// Check fails with ErrEnvironment on the first tool that is missing or too old.
func (c *Checker) Check(ctx context.Context, tools []Tool) error {
	lookPath := c.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	version := c.Version
	if version == nil {
		version = ToolVersion
	}
	for _, tool := range tools {
		path, err := lookPath(tool.Name)
		if err != nil {
			return fmt.Errorf("%w: required command '%s' not found", ErrEnvironment, tool.Name)
		}
		if tool.MinVersion == "" {
			continue
		}
		v, err := version(ctx, path)
		if err != nil {
			return fmt.Errorf("%w: failed to get %s version: %v", ErrEnvironment, tool.Name, err)
		}
		if semver.Compare(v, tool.MinVersion) < 0 {
			return fmt.Errorf("%w: %s %s is older than required %s", ErrEnvironment, tool.Name, v, tool.MinVersion)
		}
	}
	return nil
}

var versionRE = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?(-[0-9A-Za-z.]+)?`)

// ToolVersion runs "<path> --version" and returns the first version found
// as canonical semver, e.g. "cmake version 3.28.1" gives "v3.28.1".
func ToolVersion(ctx context.Context, path string) (string, error) {
	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return "", err
	}
	return ParseVersion(string(out))
}

// ParseVersion extracts a semver from tool version output.
func ParseVersion(output string) (string, error) {
	m := versionRE.FindStringSubmatch(output)
	if m == nil {
		return "", fmt.Errorf("no version in %q", strings.TrimSpace(output))
	}
	patch := m[3]
	if patch == "" {
		patch = "0"
	}
	v := "v" + m[1] + "." + m[2] + "." + patch + m[4]
	if !semver.IsValid(v) {
		return "", fmt.Errorf("invalid version %q", v)
	}
	return v, nil
}

// BuildTempDir returns the default staging base under the working directory,
// e.g. "<cwd>/build/temp.linux-amd64".
func BuildTempDir() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, "build", "temp."+runtime.GOOS+"-"+runtime.GOARCH), nil
}

// SplitList splits a PATH-style value, dropping empty entries.
func SplitList(value string) []string {
	var out []string
	for _, p := range filepath.SplitList(value) {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
