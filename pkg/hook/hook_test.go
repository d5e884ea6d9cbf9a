package hook_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/paulschiretz/pgl-svnbackup/pkg/hints"
	"github.com/paulschiretz/pgl-svnbackup/pkg/hook"
)

// TestHelperProcess is a helper for testing exec.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	if len(args) == 0 {
		os.Exit(0)
	}
	switch {
	case strings.Contains(args[0], "fail"):
		os.Exit(1)
	case strings.Contains(args[0], "checkenv"):
		if os.Getenv(hook.EnvBackupRoot) != "/backups" || os.Getenv(hook.EnvHookName) != "pre-backup" {
			os.Exit(2)
		}
		if _, err := time.Parse(time.RFC3339, os.Getenv(hook.EnvTimestampUTC)); err != nil {
			os.Exit(3)
		}
	}
	os.Exit(0)
}

var calls int

func mockExecutor(ctx context.Context, name string, arg ...string) *exec.Cmd {
	calls++
	// On Windows, the command is wrapped in `cmd /C`. We need to extract the actual command.
	var cmdLine string
	if len(arg) > 1 && (arg[0] == "/C" || arg[0] == "-c") {
		cmdLine = strings.Join(arg[1:], " ")
	} else {
		cmdLine = name + " " + strings.Join(arg, " ")
	}

	cs := []string{"-test.run=TestHelperProcess", "--", cmdLine}
	cmd := exec.CommandContext(ctx, os.Args[0], cs...)
	cmd.Env = []string{"GO_WANT_HELPER_PROCESS=1"}
	return cmd
}

func TestHookExecutor(t *testing.T) {
	tests := []struct {
		name          string
		plan          *hook.Plan
		hookType      string // "pre" or "post"
		expectError   bool
		errorContains string
		expectCalls   int
	}{
		{
			name: "Pre-hook success",
			plan: &hook.Plan{
				Enabled:         true,
				PreHookCommands: []string{"echo pre-hook-works"},
			},
			hookType:    "pre",
			expectCalls: 1,
		},
		{
			name: "Post-hook success",
			plan: &hook.Plan{
				Enabled:          true,
				PostHookCommands: []string{"echo post-hook-works", "echo again"},
			},
			hookType:    "post",
			expectCalls: 2,
		},
		{
			name: "Pre-hook sees environment",
			plan: &hook.Plan{
				Enabled:         true,
				PreHookCommands: []string{"checkenv"},
				BackupRoot:      "/backups",
				FailFast:        true,
			},
			hookType:    "pre",
			expectCalls: 1,
		},
		{
			name: "Pre-hook failure with FailFast",
			plan: &hook.Plan{
				Enabled:         true,
				PreHookCommands: []string{"fail this", "echo never"},
				FailFast:        true,
			},
			hookType:      "pre",
			expectError:   true,
			errorContains: "command 'fail this' failed",
			expectCalls:   1,
		},
		{
			name: "Pre-hook failure without FailFast continues",
			plan: &hook.Plan{
				Enabled:         true,
				PreHookCommands: []string{"fail this", "echo next"},
			},
			hookType:    "pre",
			expectCalls: 2,
		},
		{
			name: "Post-hook failure without FailFast",
			plan: &hook.Plan{
				Enabled:          true,
				PostHookCommands: []string{"fail this"},
			},
			hookType:    "post",
			expectCalls: 1,
		},
		{
			name: "Dry run",
			plan: &hook.Plan{
				Enabled:         true,
				PreHookCommands: []string{"echo should-not-run"},
				DryRun:          true,
			},
			hookType:    "pre",
			expectCalls: 0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			calls = 0
			executor := hook.NewHookExecutor(mockExecutor)
			var err error
			if tc.hookType == "pre" {
				err = executor.RunPreHook(context.Background(), "backup", tc.plan, time.Now())
			} else {
				err = executor.RunPostHook(context.Background(), "backup", tc.plan, time.Now())
			}

			if tc.expectError {
				if err == nil {
					t.Fatal("expected error, but got nil")
				}
				if tc.errorContains != "" && !strings.Contains(err.Error(), tc.errorContains) {
					t.Errorf("expected error to contain %q, but got: %v", tc.errorContains, err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if calls != tc.expectCalls {
				t.Errorf("expected %d command invocations, got %d", tc.expectCalls, calls)
			}
		})
	}
}

func TestHookExecutor_Skips(t *testing.T) {
	executor := hook.NewHookExecutor(mockExecutor)

	err := executor.RunPreHook(context.Background(), "backup", &hook.Plan{Enabled: false}, time.Now())
	if !errors.Is(err, hook.ErrDisabled) || !hints.IsHint(err) {
		t.Errorf("expected ErrDisabled hint, got %v", err)
	}

	err = executor.RunPostHook(context.Background(), "backup", &hook.Plan{Enabled: true}, time.Now())
	if !errors.Is(err, hook.ErrNothingToExecute) || !hints.IsHint(err) {
		t.Errorf("expected ErrNothingToExecute hint, got %v", err)
	}
}

func TestHookExecutor_CancelledContext(t *testing.T) {
	calls = 0
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	executor := hook.NewHookExecutor(mockExecutor)
	err := executor.RunPreHook(ctx, "backup", &hook.Plan{Enabled: true, PreHookCommands: []string{"echo x"}}, time.Now())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no command to start, got %d", calls)
	}
}
