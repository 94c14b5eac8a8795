// Package runner provides a unified interface for invoking the external
// tools the deployment pipeline delegates to
package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// CommandRunner defines an interface for executing external commands.
// Run is used for tools whose progress the user should see (builds,
// downloads, the launcher); Output is used when the caller parses the
// result (discovery, remote existence checks).
type CommandRunner interface {
	// Run executes a command wired to the caller's stdio
	Run(ctx context.Context, name string, args ...string) error

	// Output executes a command and returns captured stdout and stderr
	Output(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// NativeRunner implements CommandRunner by executing commands on the host
type NativeRunner struct {
	// Stdin, Stdout and Stderr are wired to Run commands.
	// Defaults to the process stdio when nil.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Run implements CommandRunner.Run
func (r *NativeRunner) Run(ctx context.Context, name string, args ...string) error {
	slog.Debug("running command", "cmd", name, "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	return cmd.Run()
}

// Output implements CommandRunner.Output
func (r *NativeRunner) Output(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	slog.Debug("capturing command", "cmd", name, "args", strings.Join(args, " "))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// ExitCode extracts the process exit code from a Run error. Returns 0
// for nil, the child's code for exec.ExitError, and 1 for anything
// else (command not found, context cancelled).
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
