package buildsys

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// BuildSystem captures the shared lifecycle of build helpers (CMake for now).
// Dependencies and environment are recorded on the helper and only applied
// to the child processes it starts.
type BuildSystem interface {
	// Use makes an installed dependency prefix visible to the build.
	Use(prefix string)

	// Environment helper.
	Env(key, val string)

	// Lifecycle.
	Configure(ctx context.Context) error
	Build(ctx context.Context) error
	Install(ctx context.Context) error

	// Where artifacts land.
	OutputDir() string
}

// -----------------------------------------------------------------------------

// Command is one external process invocation.
type Command struct {
	Path string
	Args []string
	// Env holds KEY=VALUE entries added on top of the inherited environment.
	Env []string
	Dir string
}

// String returns the command line as echoed to the user. Arguments a POSIX
// shell would split or expand are single-quoted, so the line can be pasted
// back into a shell.
func (c *Command) String() string {
	words := make([]string, 0, len(c.Args)+1)
	words = append(words, shellQuote(c.Path))
	for _, arg := range c.Args {
		words = append(words, shellQuote(arg))
	}
	return strings.Join(words, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, needsQuote) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./:=,+@%", r)
}

// Runner executes commands. The default is ExecRunner.
type Runner interface {
	Run(ctx context.Context, cmd *Command) error
}

// ExitError reports a command that exited with a non-zero status.
type ExitError struct {
	Cmd  *Command
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command '%s' failed with exit status %d", e.Cmd, e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExecRunner runs commands with os/exec, streaming their output.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Run starts cmd and waits for it to finish. A non-zero exit status is
// reported as *ExitError.
func (r *ExecRunner) Run(ctx context.Context, c *Command) error {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if len(c.Env) > 0 {
		cmd.Env = MergeEnv(os.Environ(), c.Env)
	}
	err := cmd.Run()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Cmd: c, Code: exitErr.ExitCode(), Err: err}
	}
	return fmt.Errorf("failed to run '%s': %w", c, err)
}

// MergeEnv overrides entries of base with those of override. Order of base is
// kept and new keys are appended in override order.
func MergeEnv(base, override []string) []string {
	out := make([]string, 0, len(base)+len(override))
	index := make(map[string]int, len(base))
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if i, ok := index[k]; ok {
			out[i] = kv
			continue
		}
		index[k] = len(out)
		out = append(out, kv)
	}
	for _, kv := range override {
		k, _, _ := strings.Cut(kv, "=")
		if i, ok := index[k]; ok {
			out[i] = kv
			continue
		}
		index[k] = len(out)
		out = append(out, kv)
	}
	return out
}
