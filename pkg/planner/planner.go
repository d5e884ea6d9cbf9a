package planner

import (
	"time"

	"github.com/paulschiretz/pgl-svnbackup/pkg/config"
	"github.com/paulschiretz/pgl-svnbackup/pkg/hook"
	"github.com/paulschiretz/pgl-svnbackup/pkg/hotcopy"
	"github.com/paulschiretz/pgl-svnbackup/pkg/pathcompression"
	"github.com/paulschiretz/pgl-svnbackup/pkg/pathretention"
	"github.com/paulschiretz/pgl-svnbackup/pkg/revprobe"
)

type BackupPlan struct {
	DryRun                bool
	FailFast              bool
	FailOnRepositoryError bool
	Metrics               bool

	// Workers is the number of repositories processed in parallel.
	Workers int

	Probe       *revprobe.Plan
	Hotcopy     *hotcopy.Plan
	Compression *pathcompression.Plan
	Retention   *pathretention.Plan
	Hooks       *hook.Plan
}

type PrunePlan struct {
	DryRun                bool
	FailOnRepositoryError bool
	Metrics               bool

	Workers int

	Retention *pathretention.Plan
}

func GenerateBackupPlan(cfg config.Config) (*BackupPlan, error) {

	// Global Flags
	dryRun := cfg.Runtime.DryRun
	failFast := cfg.Engine.FailFast
	metrics := cfg.Engine.Metrics

	retention, err := retentionPlan(cfg)
	if err != nil {
		return nil, err
	}

	compressionFormat, err := pathcompression.ParseFormat(cfg.Compression.Format)
	if err != nil {
		return nil, err
	}
	compressionLevel, err := pathcompression.ParseLevel(cfg.Compression.Level)
	if err != nil {
		return nil, err
	}

	toolTimeout := time.Duration(cfg.Subversion.ToolTimeoutSeconds) * time.Second
	hooksEnabled := len(cfg.Hooks.PreBackup) > 0 || len(cfg.Hooks.PostBackup) > 0

	return &BackupPlan{
		DryRun:                dryRun,
		FailFast:              failFast,
		FailOnRepositoryError: cfg.Engine.FailOnRepositoryError,
		Metrics:               metrics,
		Workers:               cfg.Engine.Performance.Workers,

		Probe: &revprobe.Plan{
			ToolPath: cfg.Subversion.ToolPath,
			Timeout:  toolTimeout,
		},
		Hotcopy: &hotcopy.Plan{
			ToolPath: cfg.Subversion.ToolPath,
			Timeout:  toolTimeout,
			// Global Flags
			DryRun: dryRun,
		},
		Compression: &pathcompression.Plan{
			Enabled: cfg.Compression.Enabled,
			Format:  compressionFormat,
			Level:   compressionLevel,
			// Global Flags
			DryRun:  dryRun,
			Metrics: metrics,
		},
		Retention: retention,
		Hooks: &hook.Plan{
			Enabled:          hooksEnabled,
			PreHookCommands:  cfg.Hooks.PreBackup,
			PostHookCommands: cfg.Hooks.PostBackup,
			RepositoryRoot:   cfg.RepositoryRoot,
			BackupRoot:       cfg.BackupRoot,
			// Global Flags
			DryRun:   dryRun,
			FailFast: failFast,
		},
	}, nil
}

func GeneratePrunePlan(cfg config.Config) (*PrunePlan, error) {
	retention, err := retentionPlan(cfg)
	if err != nil {
		return nil, err
	}
	return &PrunePlan{
		DryRun:                cfg.Runtime.DryRun,
		FailOnRepositoryError: cfg.Engine.FailOnRepositoryError,
		Metrics:               cfg.Engine.Metrics,
		Workers:               cfg.Engine.Performance.Workers,
		Retention:             retention,
	}, nil
}

// retentionPlan only considers archives of the configured format; archives
// written with another format are left alone.
func retentionPlan(cfg config.Config) (*pathretention.Plan, error) {
	mode, err := pathretention.ParseMode(cfg.Retention.Mode)
	if err != nil {
		return nil, err
	}
	format, err := pathcompression.ParseFormat(cfg.Compression.Format)
	if err != nil {
		return nil, err
	}
	return &pathretention.Plan{
		Enabled:   cfg.Retention.History > 0,
		History:   cfg.Retention.History,
		Mode:      mode,
		Extension: format.Extension(),
		// Global Flags
		DryRun:  cfg.Runtime.DryRun,
		Metrics: cfg.Engine.Metrics,
	}, nil
}
