package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/paulschiretz/pgl-svnbackup/pkg/buildinfo"
	"github.com/paulschiretz/pgl-svnbackup/pkg/config"
	"github.com/paulschiretz/pgl-svnbackup/pkg/flagparse"
	"github.com/paulschiretz/pgl-svnbackup/pkg/planner"
	"github.com/paulschiretz/pgl-svnbackup/pkg/plog"
	"github.com/paulschiretz/pgl-svnbackup/pkg/util"
)

// RunPrune handles the logic for the prune command.
func RunPrune(ctx context.Context, flagMap map[string]any) error {
	backupRoot, ok := flagMap["backup-root"].(string)
	if !ok || backupRoot == "" {
		return fmt.Errorf("the -backup-root flag is required to run prune")
	}

	absBackupRoot, err := util.ResolvePath(backupRoot)
	if err != nil {
		return fmt.Errorf("could not resolve backup root: %w", err)
	}
	absBackupRoot = util.DenormalizePath(absBackupRoot)

	// NOTE: the backup root needs to exist for a prune run
	if _, err := os.Stat(absBackupRoot); os.IsNotExist(err) {
		return fmt.Errorf("backup root '%s' does not exist", absBackupRoot)
	}

	loadedConfig, err := config.Load(absBackupRoot)
	if err != nil {
		return fmt.Errorf("failed to load configuration from backup root: %w", err)
	}

	runConfig := config.MergeConfigWithFlags(flagparse.Prune, loadedConfig, flagMap)
	runConfig.BackupRoot = absBackupRoot

	// CRITICAL: Validate the config for the run
	if err := runConfig.Validate(false); err != nil {
		return err
	}

	plog.SetLevel(plog.LevelFromString(runConfig.LogLevel))
	runConfig.LogSummary()

	force := false
	if f, ok := flagMap["force"]; ok {
		force = f.(bool)
	}

	if !runConfig.Runtime.DryRun && !force && runConfig.Retention.History > 0 {
		fmt.Printf("This operation will permanently delete outdated backups based on the configured retention policy:\n")
		fmt.Printf("  Keep the newest %d backups per repository (mode: %s)\n", runConfig.Retention.History, runConfig.Retention.Mode)

		if !PromptForConfirmation("Are you sure you want to continue?", false) {
			plog.Info(buildinfo.Name + " prune operation canceled.")
			return nil
		}
	}

	runner := newRunner(runConfig)

	prunePlan, err := planner.GeneratePrunePlan(runConfig)
	if err != nil {
		return err
	}

	startTime := time.Now()
	_, err = runner.ExecutePrune(ctx, runConfig.BackupRoot, prunePlan)
	duration := time.Since(startTime).Round(time.Millisecond)
	if err != nil {
		return err
	}
	plog.Info(buildinfo.Name+" prune finished successfully.", "duration", duration)
	return nil
}
