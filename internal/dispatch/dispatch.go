// Package dispatch exposes binaries installed inside a package tree.
//
// An install root with exposed binaries gets a bin/ folder holding a
// manifest of the directories to search and a fixed launcher. Both the
// bundled __main__.py and Run implement the same contract: take the base name
// of argv[0], look it up as <root>/<dir>/<name> or <name>.exe in manifest
// order, run the match with the remaining arguments and forward its exit
// code.
package dispatch

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
)

const (
	BinDir       = "bin"
	ManifestFile = "dispatch.json"
	LauncherFile = "__main__.py"
)

//go:embed main.py
var launcher []byte

// ErrNotFound reports that no candidate directory holds the binary.
var ErrNotFound = errors.New("failed to find binary")

// Manifest lists the directories, relative to the install root, searched
// for exposed binaries.
type Manifest struct {
	BinDirs []string `json:"bin_dirs"`
}

// BinDirs returns the distinct parent directories of exposed, in
// declaration order, using forward slashes.
func BinDirs(exposed []string) []string {
	var dirs []string
	for _, p := range exposed {
		dir := filepath.ToSlash(filepath.Dir(filepath.FromSlash(p)))
		if !slices.Contains(dirs, dir) {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// Launcher returns the bundled Python launcher.
func Launcher() []byte {
	return slices.Clone(launcher)
}

// Install writes the manifest and the launcher to <installRoot>/bin and
// returns the written paths.
func Install(installRoot string, exposed []string) ([]string, error) {
	binDir := filepath.Join(installRoot, BinDir)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(Manifest{BinDirs: BinDirs(exposed)}, "", "  ")
	if err != nil {
		return nil, err
	}
	manifest := filepath.Join(binDir, ManifestFile)
	if err := os.WriteFile(manifest, append(data, '\n'), 0o644); err != nil {
		return nil, err
	}

	main := filepath.Join(binDir, LauncherFile)
	if err := os.WriteFile(main, launcher, 0o644); err != nil {
		return nil, err
	}
	return []string{manifest, main}, nil
}

// LoadManifest reads <installRoot>/bin/dispatch.json.
func LoadManifest(installRoot string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(installRoot, BinDir, ManifestFile))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", ManifestFile, err)
	}
	return &m, nil
}

// Find returns the absolute path of binary name, trying each of dirs under
// installRoot with and without the .exe suffix.
func Find(installRoot string, dirs []string, name string) (string, error) {
	attempted := name
	for _, dir := range dirs {
		path := filepath.Join(installRoot, filepath.FromSlash(dir), name)
		attempted = path
		for _, candidate := range []string{path, path + ".exe"} {
			if isFile(candidate) {
				return filepath.Abs(candidate)
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, attempted)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Stdio is the standard streams handed to the dispatched binary.
type Stdio struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Run dispatches argv to the exposed binary named after argv[0] and returns
// its exit code.
func Run(ctx context.Context, installRoot string, argv []string, stdio Stdio) (int, error) {
	if len(argv) == 0 {
		return 0, fmt.Errorf("%w: no binary name given", ErrNotFound)
	}
	m, err := LoadManifest(installRoot)
	if err != nil {
		return 0, err
	}
	path, err := Find(installRoot, m.BinDirs, filepath.Base(argv[0]))
	if err != nil {
		return 0, err
	}

	cmd := exec.CommandContext(ctx, path, argv[1:]...)
	cmd.Stdin = stdio.Stdin
	cmd.Stdout = stdio.Stdout
	cmd.Stderr = stdio.Stderr
	err = cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return 0, err
	}
	return 0, nil
}
