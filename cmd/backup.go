package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/paulschiretz/pgl-svnbackup/pkg/buildinfo"
	"github.com/paulschiretz/pgl-svnbackup/pkg/config"
	"github.com/paulschiretz/pgl-svnbackup/pkg/engine"
	"github.com/paulschiretz/pgl-svnbackup/pkg/flagparse"
	"github.com/paulschiretz/pgl-svnbackup/pkg/hook"
	"github.com/paulschiretz/pgl-svnbackup/pkg/hotcopy"
	"github.com/paulschiretz/pgl-svnbackup/pkg/pathcompression"
	"github.com/paulschiretz/pgl-svnbackup/pkg/pathretention"
	"github.com/paulschiretz/pgl-svnbackup/pkg/planner"
	"github.com/paulschiretz/pgl-svnbackup/pkg/plog"
	"github.com/paulschiretz/pgl-svnbackup/pkg/revprobe"
	"github.com/paulschiretz/pgl-svnbackup/pkg/svntool"
)

// RunBackup handles the logic for the main backup execution.
func RunBackup(ctx context.Context, flagMap map[string]any) error {
	// For backup, the backup-root flag is mandatory.
	backupRoot, ok := flagMap["backup-root"].(string)
	if !ok || backupRoot == "" {
		return fmt.Errorf("the -backup-root flag is required to run a backup")
	}

	// Load config from the backup root, or use defaults if not found.
	loadedConfig, err := config.Load(backupRoot)
	if err != nil {
		return fmt.Errorf("failed to load configuration from backup root: %w", err)
	}

	// Merge the flag values over the loaded config to get the final run config.
	runConfig := config.MergeConfigWithFlags(flagparse.Backup, loadedConfig, flagMap)

	// CRITICAL: Validate the config for the run
	if err := runConfig.Validate(true); err != nil {
		return err
	}

	// Set the global log level based on the final configuration.
	plog.SetLevel(plog.LevelFromString(runConfig.LogLevel))

	runConfig.LogSummary()

	runner := newRunner(runConfig)

	backupPlan, err := planner.GenerateBackupPlan(runConfig)
	if err != nil {
		return err
	}

	startTime := time.Now()
	_, err = runner.ExecuteBackup(ctx, runConfig.RepositoryRoot, runConfig.BackupRoot, backupPlan)
	duration := time.Since(startTime).Round(time.Millisecond)
	if err != nil {
		return err // The error will be logged with full details by main()
	}
	plog.Info(buildinfo.Name+" finished successfully.", "duration", duration)
	return nil
}

// newRunner feeds the engine with its leaf workers.
func newRunner(cfg config.Config) *engine.Runner {
	tools := svntool.NewRunner(nil)
	return engine.NewRunner(
		revprobe.NewProber(tools),
		hotcopy.NewExtractor(tools),
		pathcompression.NewPathCompressor(cfg.Engine.Performance.BufferSizeKB),
		pathretention.NewPathRetainer(cfg.Engine.Performance.DeleteWorkers),
		hook.NewHookExecutor(nil),
	)
}
