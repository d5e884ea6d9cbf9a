// Package hook runs the user supplied shell commands around a backup run.
package hook

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/paulschiretz/pgl-svnbackup/pkg/hints"
	"github.com/paulschiretz/pgl-svnbackup/pkg/plog"
)

var ErrNothingToExecute = hints.New("nothing to execute")
var ErrDisabled = hints.New("hook execution is disabled")

// Environment variables visible to hook commands.
const (
	EnvHookName       = "PGL_SVNBACKUP_HOOK"
	EnvRepositoryRoot = "PGL_SVNBACKUP_REPOSITORY_ROOT"
	EnvBackupRoot     = "PGL_SVNBACKUP_BACKUP_ROOT"
	EnvTimestampUTC   = "PGL_SVNBACKUP_TIMESTAMP_UTC"
)

type HookExecutor struct {
	// commandContext allows mocking os/exec for testing hooks.
	commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// NewHookExecutor creates a new HookExecutor. A nil commandContext uses exec.CommandContext.
func NewHookExecutor(commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd) *HookExecutor {
	if commandContext == nil {
		commandContext = exec.CommandContext
	}
	return &HookExecutor{
		commandContext: commandContext,
	}
}

func (e *HookExecutor) RunPreHook(ctx context.Context, hookName string, p *Plan, timestampUTC time.Time) error {
	if !p.Enabled {
		return ErrDisabled
	}
	if len(p.PreHookCommands) == 0 {
		return ErrNothingToExecute
	}
	plog.Info(fmt.Sprintf("Running Pre-%s hook commands", hookName))
	return e.runCommands(ctx, "pre-"+hookName, p.PreHookCommands, p, timestampUTC)
}

func (e *HookExecutor) RunPostHook(ctx context.Context, hookName string, p *Plan, timestampUTC time.Time) error {
	if !p.Enabled {
		return ErrDisabled
	}
	if len(p.PostHookCommands) == 0 {
		return ErrNothingToExecute
	}
	plog.Info(fmt.Sprintf("Running Post-%s hook commands", hookName))
	return e.runCommands(ctx, "post-"+hookName, p.PostHookCommands, p, timestampUTC)
}

func (e *HookExecutor) runCommands(ctx context.Context, hookName string, commands []string, p *Plan, timestampUTC time.Time) error {
	for _, hookCommand := range commands {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if p.DryRun {
			plog.Info("[DRY RUN] Executing command", "command", hookCommand)
			continue
		}
		plog.Info("Executing command", "command", hookCommand)

		cmd := e.createCommand(ctx, hookCommand)
		if cmd.Env == nil {
			cmd.Env = os.Environ()
		}
		cmd.Env = append(cmd.Env,
			EnvHookName+"="+hookName,
			EnvRepositoryRoot+"="+p.RepositoryRoot,
			EnvBackupRoot+"="+p.BackupRoot,
			EnvTimestampUTC+"="+timestampUTC.UTC().Format(time.RFC3339),
		)

		// Pipe output to our logger's streams for visibility
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			// A cancelled context makes Wait fail too; report the cancellation instead.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if p.FailFast {
				return fmt.Errorf("command '%s' failed: %w", hookCommand, err)
			}
			plog.Warn("Hook command failed", "command", hookCommand, "error", err)
		}
	}
	return nil
}
