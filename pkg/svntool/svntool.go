// Package svntool launches the Subversion command line tools.
//
// Every invocation runs in its own process group, captures stdout and stderr
// into buffers and always reaps the child before returning.
package svntool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	Svnlook  = "svnlook"
	Svnadmin = "svnadmin"
)

// ExitError reports a tool that ran but exited with a non-zero status.
type ExitError struct {
	Tool     string
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s %s exited with code %d", e.Tool, strings.Join(e.Args, " "), e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Output holds what a finished invocation wrote.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Invocation describes a single tool call.
type Invocation struct {
	// ToolPath is the directory holding the svn binaries. Empty means PATH lookup.
	ToolPath string
	Tool     string
	Args     []string
	// Timeout bounds the invocation. Zero means no timeout.
	Timeout time.Duration
}

type Runner struct {
	// commandContext allows mocking os/exec for testing.
	commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// NewRunner creates a Runner. A nil commandContext uses exec.CommandContext.
func NewRunner(commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd) *Runner {
	if commandContext == nil {
		commandContext = exec.CommandContext
	}
	return &Runner{commandContext: commandContext}
}

// Binary returns the program name to execute for tool.
func Binary(toolPath, tool string) string {
	if toolPath == "" {
		return tool
	}
	return filepath.Join(toolPath, tool+exeSuffix)
}

// Run executes the invocation and waits for it to finish.
//
// A non-zero exit yields the captured Output together with an *ExitError.
// Any other error means the tool could not be run at all.
func (r *Runner) Run(ctx context.Context, inv Invocation) (Output, error) {
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := r.commandContext(ctx, Binary(inv.ToolPath, inv.Tool), inv.Args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	isolate(cmd)

	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return out, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return out, fmt.Errorf("%s timed out after %s: %w", inv.Tool, inv.Timeout, ctxErr)
		}
		return out, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		return out, &ExitError{
			Tool:     inv.Tool,
			Args:     inv.Args,
			ExitCode: out.ExitCode,
			Stderr:   stderr.String(),
		}
	}
	return out, fmt.Errorf("could not run %s: %w", inv.Tool, err)
}
