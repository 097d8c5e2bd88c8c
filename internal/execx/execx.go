// Package execx runs external tools with inherited output. The container
// engine is driven exclusively through here.
package execx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Run executes name with args in dir (empty dir means inherited cwd),
// streaming stdout/stderr through the process's own descriptors.
func Run(ctx context.Context, dir, name string, args ...string) error {
	return run(ctx, dir, nil, name, args...)
}

// RunWithStdin is Run with the given reader wired to the child's stdin.
// Used for `docker login --password-stdin` so the credential never
// appears in an argument vector.
func RunWithStdin(ctx context.Context, dir string, stdin io.Reader, name string, args ...string) error {
	return run(ctx, dir, stdin, name, args...)
}

func run(ctx context.Context, dir string, stdin io.Reader, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdin = stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()

	if err := cmd.Run(); err != nil {
		full := name + " " + Quote(args)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("command failed (exit=%d): %s", exitErr.ExitCode(), full)
		}
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("command canceled: %s", full)
		}
		return fmt.Errorf("failed to run command: %s: %w", full, err)
	}
	return nil
}

// Quote renders args as a printable, shell-safe command line for logs.
func Quote(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\n\"'`$\\*?[]{}()<>|&;") {
			a = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
		}
		quoted[i] = a
	}
	return strings.Join(quoted, " ")
}
