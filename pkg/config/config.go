package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/paulschiretz/pgl-svnbackup/pkg/buildinfo"
	"github.com/paulschiretz/pgl-svnbackup/pkg/flagparse"
	"github.com/paulschiretz/pgl-svnbackup/pkg/pathcompression"
	"github.com/paulschiretz/pgl-svnbackup/pkg/pathretention"
	"github.com/paulschiretz/pgl-svnbackup/pkg/plog"
	"github.com/paulschiretz/pgl-svnbackup/pkg/util"
)

// ConfigFileName is the name of the JSON configuration file.
const ConfigFileName = "pgl-svnbackup.config.json"

// YAMLConfigFileName is read when no JSON configuration file exists.
const YAMLConfigFileName = "pgl-svnbackup.config.yaml"

type BackupHooksConfig struct {
	// Note: omitempty is intentionally not used so that the hook fields
	// appear in the generated config file for better discoverability.
	// SECURITY: These commands are executed as provided. Ensure they are from a trusted source.
	PreBackup  []string `json:"preBackup" yaml:"preBackup"`
	PostBackup []string `json:"postBackup" yaml:"postBackup"`
}

type EnginePerformanceConfig struct {
	Workers       int `json:"workers" yaml:"workers"`
	DeleteWorkers int `json:"deleteWorkers" yaml:"deleteWorkers"`
	BufferSizeKB  int `json:"bufferSizeKB" yaml:"bufferSizeKB"`
}

type BackupEngineConfig struct {
	Metrics               bool                    `json:"metrics" yaml:"metrics"`
	FailFast              bool                    `json:"failFast" yaml:"failFast"`
	FailOnRepositoryError bool                    `json:"failOnRepositoryError" yaml:"failOnRepositoryError"`
	Performance           EnginePerformanceConfig `json:"performance" yaml:"performance"`
}

type SubversionConfig struct {
	// ToolPath is the directory holding svnlook and svnadmin. Empty means PATH lookup.
	ToolPath           string `json:"toolPath" yaml:"toolPath"`
	ToolTimeoutSeconds int    `json:"toolTimeoutSeconds" yaml:"toolTimeoutSeconds"`
}

type CompressionConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Format  string `json:"format" yaml:"format"`
	Level   string `json:"level" yaml:"level"`
}

type RetentionConfig struct {
	// History is the number of revisions kept per repository. 0 disables pruning.
	History int    `json:"history" yaml:"history"`
	Mode    string `json:"mode" yaml:"mode"`
}

type RuntimeConfig struct {
	DryRun bool
}

type Config struct {
	Version        string             `json:"version" yaml:"version"`
	RepositoryRoot string             `json:"repositoryRoot" yaml:"repositoryRoot"`
	BackupRoot     string             `json:"-" yaml:"-"` // Never added to config file
	Runtime        RuntimeConfig      `json:"-" yaml:"-"` // Never added to config file
	LogLevel       string             `json:"logLevel" yaml:"logLevel"`
	Engine         BackupEngineConfig `json:"engine" yaml:"engine"`
	Subversion     SubversionConfig   `json:"subversion" yaml:"subversion"`
	Compression    CompressionConfig  `json:"compression" yaml:"compression"`
	Retention      RetentionConfig    `json:"retention" yaml:"retention"`
	Hooks          BackupHooksConfig  `json:"hooks" yaml:"hooks"`
}

// NewDefault creates and returns a Config struct with sensible default values.
func NewDefault() Config {
	return Config{
		Version:        buildinfo.Version,
		RepositoryRoot: "",     // Intentionally empty to force user configuration.
		BackupRoot:     "",     // Intentionally empty to force user configuration.
		LogLevel:       "info", // Default log level.
		Engine: BackupEngineConfig{
			Metrics:               true,
			FailFast:              false,
			FailOnRepositoryError: false, // A failing repository does not fail the run by default.
			Performance: EnginePerformanceConfig{
				Workers:       1,   // One repository at a time; svnadmin hotcopy is I/O bound.
				DeleteWorkers: 4,   // A sensible default for deleting entire snapshots.
				BufferSizeKB:  256, // Keep it between 64KB-4MB
			},
		},
		Subversion: SubversionConfig{
			ToolPath:           "",
			ToolTimeoutSeconds: 0,
		},
		Compression: CompressionConfig{
			Enabled: false,
			Format:  pathcompression.Zip.String(),
			Level:   pathcompression.Default.String(),
		},
		Retention: RetentionConfig{
			History: 0, // Pruning is opt-in.
			Mode:    pathretention.Independent.String(),
		},
		Hooks: BackupHooksConfig{
			PreBackup:  []string{},
			PostBackup: []string{},
		},
	}
}

// Load reads the configuration file from backupRoot. The JSON file wins when
// both a JSON and a YAML file exist. If neither exists the defaults are returned.
func Load(backupRoot string) (Config, error) {
	absBackupRoot, err := filepath.Abs(backupRoot)
	if err != nil {
		return Config{}, fmt.Errorf("could not determine absolute path for load directory %s: %w", backupRoot, err)
	}

	// Start with default values, then overwrite with the file's content.
	// This makes the config loading resilient to missing fields in the file.
	config := NewDefault()

	jsonPath := filepath.Join(absBackupRoot, ConfigFileName)
	yamlPath := filepath.Join(absBackupRoot, YAMLConfigFileName)

	data, err := os.ReadFile(jsonPath)
	switch {
	case err == nil:
		plog.Info("Loading configuration", "path", jsonPath)
		if err := json.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("error parsing config file %s: %w", jsonPath, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		data, err = os.ReadFile(yamlPath)
		switch {
		case err == nil:
			plog.Info("Loading configuration", "path", yamlPath)
			if err := yaml.Unmarshal(data, &config); err != nil {
				return Config{}, fmt.Errorf("error parsing config file %s: %w", yamlPath, err)
			}
		case errors.Is(err, fs.ErrNotExist):
			plog.Debug("No configuration file found, using defaults", "path", absBackupRoot)
		default:
			return Config{}, fmt.Errorf("error opening config file %s: %w", yamlPath, err)
		}
	default:
		return Config{}, fmt.Errorf("error opening config file %s: %w", jsonPath, err)
	}

	config.BackupRoot = absBackupRoot
	// NOTE: if config.Version differs from the app version a migration step goes here.
	config.Version = buildinfo.Version
	return config, nil
}

// Generate creates or overwrites the JSON configuration file in the backup root.
func Generate(configToGenerate Config) error {
	configPath := filepath.Join(configToGenerate.BackupRoot, ConfigFileName)
	jsonData, err := json.MarshalIndent(configToGenerate, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config to JSON: %w", err)
	}

	if err := os.WriteFile(configPath, jsonData, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	plog.Info("Successfully saved config file", "path", configPath)
	return nil
}

// Validate checks the configuration for logical errors and inconsistencies.
// Paths are expanded, made absolute and cleaned in place. The repository root is only
// required when checkRepositoryRoot is set.
func (c *Config) Validate(checkRepositoryRoot bool) error {
	if checkRepositoryRoot && c.RepositoryRoot == "" {
		return fmt.Errorf("repository root cannot be empty")
	}
	if c.BackupRoot == "" {
		return fmt.Errorf("backup root cannot be empty")
	}

	var err error
	if c.RepositoryRoot != "" {
		c.RepositoryRoot, err = util.ResolvePath(c.RepositoryRoot)
		if err != nil {
			return fmt.Errorf("could not resolve repository root: %w", err)
		}
	}

	c.BackupRoot, err = util.ResolvePath(c.BackupRoot)
	if err != nil {
		return fmt.Errorf("could not resolve backup root: %w", err)
	}

	if c.Subversion.ToolPath != "" {
		c.Subversion.ToolPath, err = util.ExpandPath(c.Subversion.ToolPath)
		if err != nil {
			return fmt.Errorf("could not expand subversion.toolPath: %w", err)
		}
		c.Subversion.ToolPath = filepath.Clean(c.Subversion.ToolPath)
		info, err := os.Stat(c.Subversion.ToolPath)
		if err != nil {
			return fmt.Errorf("subversion.toolPath '%s' is not accessible: %w", c.Subversion.ToolPath, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("subversion.toolPath '%s' is not a directory", c.Subversion.ToolPath)
		}
	}
	if c.Subversion.ToolTimeoutSeconds < 0 {
		return fmt.Errorf("subversion.toolTimeoutSeconds cannot be negative")
	}

	if c.Engine.Performance.Workers < 1 {
		return fmt.Errorf("engine.performance.workers must be at least 1")
	}
	if c.Engine.Performance.DeleteWorkers < 1 {
		return fmt.Errorf("engine.performance.deleteWorkers must be at least 1")
	}
	if c.Engine.Performance.BufferSizeKB <= 0 {
		return fmt.Errorf("engine.performance.bufferSizeKB must be greater than 0")
	}

	if _, err := pathcompression.ParseFormat(c.Compression.Format); err != nil {
		return fmt.Errorf("compression.format: %w", err)
	}
	if _, err := pathcompression.ParseLevel(c.Compression.Level); err != nil {
		return fmt.Errorf("compression.level: %w", err)
	}
	if _, err := pathretention.ParseMode(c.Retention.Mode); err != nil {
		return fmt.Errorf("retention.mode: %w", err)
	}
	return nil
}

// LogSummary logs the effective configuration as one structured line.
func (c *Config) LogSummary() {
	logArgs := []any{
		"log_level", c.LogLevel,
		"repository_root", c.RepositoryRoot,
		"backup_root", c.BackupRoot,
		"dry_run", c.Runtime.DryRun,
		"workers", c.Engine.Performance.Workers,
		"delete_workers", c.Engine.Performance.DeleteWorkers,
		"buffer_size_kb", c.Engine.Performance.BufferSizeKB,
		"metrics", c.Engine.Metrics,
		"fail_fast", c.Engine.FailFast,
		"fail_on_repository_error", c.Engine.FailOnRepositoryError,
	}

	toolPath := c.Subversion.ToolPath
	if toolPath == "" {
		toolPath = "PATH"
	}
	logArgs = append(logArgs, "svn_path", toolPath)
	if c.Subversion.ToolTimeoutSeconds > 0 {
		logArgs = append(logArgs, "tool_timeout", fmt.Sprintf("%ds", c.Subversion.ToolTimeoutSeconds))
	}

	if c.Compression.Enabled {
		logArgs = append(logArgs, "compression", fmt.Sprintf("enabled (f:%s l:%s)", c.Compression.Format, c.Compression.Level))
	} else {
		logArgs = append(logArgs, "compression", "disabled")
	}

	if c.Retention.History > 0 {
		logArgs = append(logArgs, "retention", fmt.Sprintf("enabled (h:%d m:%s)", c.Retention.History, c.Retention.Mode))
	} else {
		logArgs = append(logArgs, "retention", "disabled")
	}

	if len(c.Hooks.PreBackup) > 0 {
		logArgs = append(logArgs, "pre_backup_hooks", strings.Join(c.Hooks.PreBackup, "; "))
	}
	if len(c.Hooks.PostBackup) > 0 {
		logArgs = append(logArgs, "post_backup_hooks", strings.Join(c.Hooks.PostBackup, "; "))
	}
	plog.Info("Configuration loaded", logArgs...)
}

// MergeConfigWithFlags overlays the configuration values from flags on top of a base
// configuration. It iterates over the setFlags map, which contains only the flags
// explicitly provided by the user on the command line.
func MergeConfigWithFlags(command flagparse.Command, base Config, setFlags map[string]any) Config {
	merged := base

	for name, value := range setFlags {
		switch name {
		case "repository-root":
			merged.RepositoryRoot = value.(string)
		case "backup-root":
			merged.BackupRoot = value.(string)
		case "log-level":
			merged.LogLevel = value.(string)
		case "dry-run":
			merged.Runtime.DryRun = value.(bool)
		case "metrics":
			merged.Engine.Metrics = value.(bool)
		case "fail-fast":
			merged.Engine.FailFast = value.(bool)
		case "fail-on-error":
			merged.Engine.FailOnRepositoryError = value.(bool)
		case "workers":
			merged.Engine.Performance.Workers = value.(int)
		case "delete-workers":
			merged.Engine.Performance.DeleteWorkers = value.(int)
		case "buffer-size-kb":
			merged.Engine.Performance.BufferSizeKB = value.(int)
		case "svn-path":
			merged.Subversion.ToolPath = value.(string)
		case "tool-timeout":
			merged.Subversion.ToolTimeoutSeconds = value.(int)
		case "compress":
			merged.Compression.Enabled = value.(bool)
		case "compression-format":
			merged.Compression.Format = value.(string)
		case "compression-level":
			merged.Compression.Level = value.(string)
		case "history":
			merged.Retention.History = value.(int)
		case "retention-mode":
			merged.Retention.Mode = value.(string)
		case "pre-backup-hooks":
			merged.Hooks.PreBackup = value.([]string)
		case "post-backup-hooks":
			merged.Hooks.PostBackup = value.([]string)
		case "force", "default", "quiet":
			// command switches, not configuration
		default:
			plog.Debug("unhandled flag in MergeConfigWithFlags", "command", command, "flag", name)
		}
	}
	return merged
}
