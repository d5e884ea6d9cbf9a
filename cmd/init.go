package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulschiretz/pgl-svnbackup/pkg/buildinfo"
	"github.com/paulschiretz/pgl-svnbackup/pkg/config"
	"github.com/paulschiretz/pgl-svnbackup/pkg/flagparse"
	"github.com/paulschiretz/pgl-svnbackup/pkg/lockfile"
	"github.com/paulschiretz/pgl-svnbackup/pkg/plog"
	"github.com/paulschiretz/pgl-svnbackup/pkg/preflight"
	"github.com/paulschiretz/pgl-svnbackup/pkg/util"
)

// RunInit handles the logic for the 'init' command.
func RunInit(ctx context.Context, flagMap map[string]any) error {
	backupRoot, ok := flagMap["backup-root"].(string)
	if !ok || backupRoot == "" {
		return fmt.Errorf("the -backup-root flag is required for the init operation")
	}

	absBackupRoot, err := util.ResolvePath(backupRoot)
	if err != nil {
		return fmt.Errorf("could not resolve backup root: %w", err)
	}
	absBackupRoot = util.DenormalizePath(absBackupRoot)

	var baseConfig config.Config

	initDefault := false
	if v, ok := flagMap["default"]; ok {
		initDefault = v.(bool)
	}

	if initDefault {
		force := false
		if f, ok := flagMap["force"]; ok {
			force = f.(bool)
		}

		if !force {
			absConfigFilePath := filepath.Join(absBackupRoot, config.ConfigFileName)
			if _, err := os.Stat(absConfigFilePath); err == nil {
				fmt.Printf("WARNING: Configuration file already exists at %s.\n", absConfigFilePath)
				fmt.Printf("Using -default will overwrite it with default values. All custom settings will be lost.\n")
				if !PromptForConfirmation("Are you sure you want to continue?", false) {
					plog.Info(buildinfo.Name + " init operation canceled.")
					return nil
				}
			}
		}
		baseConfig = config.NewDefault()
		baseConfig.BackupRoot = absBackupRoot
	} else {
		// Keep the settings of an existing config. config.Load returns the
		// defaults if no file exists, so only a broken file ends up here.
		baseConfig, err = config.Load(absBackupRoot)
		if err != nil {
			plog.Warn("Could not load existing configuration, starting with defaults.", "reason", err)
			baseConfig = config.NewDefault()
			baseConfig.BackupRoot = absBackupRoot
		}
	}

	runConfig := config.MergeConfigWithFlags(flagparse.Init, baseConfig, flagMap)
	runConfig.BackupRoot = absBackupRoot

	if runConfig.RepositoryRoot == "" {
		return fmt.Errorf("the -repository-root flag is required for the init operation (unless updating an existing config)")
	}

	// CRITICAL: Validate the config for the run
	if err := runConfig.Validate(true); err != nil {
		return err
	}

	startTime := time.Now()

	if err := preflight.CheckRepositoryRootAccessible(runConfig.RepositoryRoot); err != nil {
		return fmt.Errorf("initialization preflight failed: %w", err)
	}
	if _, err := preflight.CheckRootsDistinct(runConfig.RepositoryRoot, runConfig.BackupRoot); err != nil {
		return fmt.Errorf("initialization preflight failed: %w", err)
	}

	if runConfig.Runtime.DryRun {
		if err := preflight.CheckBackupRootAccessible(runConfig.BackupRoot); err != nil {
			return fmt.Errorf("initialization preflight failed: %w", err)
		}
		plog.Info("[DRY RUN] Initialization complete. No changes made.", "config", filepath.Join(runConfig.BackupRoot, config.ConfigFileName))
		return nil
	}

	if err := preflight.CheckBackupRootWritable(runConfig.BackupRoot); err != nil {
		return fmt.Errorf("initialization preflight failed: %w", err)
	}

	// Ensure exclusive access to the backup root.
	appID := fmt.Sprintf("%s-init:%s", buildinfo.Name, runConfig.BackupRoot)
	lock, err := lockfile.Acquire(ctx, runConfig.BackupRoot, appID)
	if err != nil {
		return fmt.Errorf("failed to acquire lock on backup root: %w", err)
	}
	defer lock.Release()

	if err := config.Generate(runConfig); err != nil {
		return fmt.Errorf("failed to generate config file: %w", err)
	}

	duration := time.Since(startTime).Round(time.Millisecond)
	plog.Info(buildinfo.Name+" backup root successfully initialized.", "duration", duration)
	return nil
}

// PromptForConfirmation prompts the user for a yes/no response.
func PromptForConfirmation(prompt string, defaultYes bool) bool {
	suffix := "[y/N]"
	if defaultYes {
		suffix = "[Y/n]"
	}
	fmt.Printf("%s %s: ", prompt, suffix)

	var response string
	_, _ = fmt.Scanln(&response)
	response = strings.ToLower(strings.TrimSpace(response))

	if response == "" {
		return defaultYes
	}
	return response == "y" || response == "yes"
}
