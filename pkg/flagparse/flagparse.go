package flagparse

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulschiretz/pgl-svnbackup/pkg/buildinfo"
)

// cliFlags holds pointers to all possible command-line flags.
// Fields are pointers so we can distinguish between "not registered for this command" (nil)
// and "registered but not set by user" (non-nil pointer to zero value).
type cliFlags struct {
	// Global
	LogLevel *string
	DryRun   *bool
	Metrics  *bool
	Quiet    *bool

	// Shared: Backup / Init / Prune
	RepositoryRoot *string
	BackupRoot     *string
	FailFast       *bool
	FailOnError    *bool
	Workers        *int
	DeleteWorkers  *int
	BufferSizeKB   *int

	SvnPath     *string
	ToolTimeout *int

	PreBackupHooks  *string
	PostBackupHooks *string

	CompressionEnabled *bool
	CompressionFormat  *string
	CompressionLevel   *string

	History       *int
	RetentionMode *string

	// Init / Prune specific
	Force   *bool
	Default *bool
}

func registerGlobalFlags(fs *flag.FlagSet, f *cliFlags) {
	f.LogLevel = fs.String("log-level", "info", "Set the logging level: 'debug', 'notice', 'info', 'warn', 'error'.")
	f.DryRun = fs.Bool("dry-run", false, "Show what would be done without making any changes.")
	f.Metrics = fs.Bool("metrics", false, "Enable run, compression and retention metrics.")
	f.Quiet = fs.Bool("quiet", false, "Only log warnings and errors.")
}

func registerRunFlags(fs *flag.FlagSet, f *cliFlags) {
	f.RepositoryRoot = fs.String("repository-root", "", "A Subversion repository, or a directory whose subdirectories are repositories. (Required)")
	f.BackupRoot = fs.String("backup-root", "", "Destination directory for the backups. (Required)")

	f.FailFast = fs.Bool("fail-fast", false, "Stop the run on the first failing repository or hook.")
	f.FailOnError = fs.Bool("fail-on-error", false, "Exit with an error when any repository failed.")
	f.Workers = fs.Int("workers", 0, "Number of repositories processed in parallel.")
	f.DeleteWorkers = fs.Int("delete-workers", 0, "Number of worker goroutines for deleting outdated snapshots and archives.")
	f.BufferSizeKB = fs.Int("buffer-size-kb", 0, "Size of the I/O buffer in kilobytes for compression.")

	f.SvnPath = fs.String("svn-path", "", "Directory containing svnlook and svnadmin. Empty uses PATH.")
	f.ToolTimeout = fs.Int("tool-timeout", 0, "Seconds after which a svnlook or svnadmin call is killed (0=no timeout).")

	f.PreBackupHooks = fs.String("pre-backup-hooks", "", "Comma-separated list of commands to run before the backup.")
	f.PostBackupHooks = fs.String("post-backup-hooks", "", "Comma-separated list of commands to run after the backup.")

	f.CompressionEnabled = fs.Bool("compress", false, "Compress every new snapshot into an archive.")
	f.CompressionFormat = fs.String("compression-format", "", "Compression format: 'zip', 'tar.gz', or 'tar.zst'.")
	f.CompressionLevel = fs.String("compression-level", "", "Compression level: 'default', 'fastest', 'better', 'best'.")

	f.History = fs.Int("history", 0, "Number of revisions kept per repository (0=no pruning).")
	f.RetentionMode = fs.String("retention-mode", "", "Retention mode: 'independent' or 'revision'.")
}

func registerInitFlags(fs *flag.FlagSet, f *cliFlags) {
	// Init supports all backup flags (to generate config) plus 'force' and 'default'.
	registerRunFlags(fs, f)
	f.Force = fs.Bool("force", false, "Bypass confirmation prompts.")
	f.Default = fs.Bool("default", false, "Overwrite existing configuration with defaults.")
}

func registerPruneFlags(fs *flag.FlagSet, f *cliFlags) {
	f.BackupRoot = fs.String("backup-root", "", "Destination directory of the backups to prune. (Required)")
	f.DeleteWorkers = fs.Int("delete-workers", 0, "Number of worker goroutines for deleting outdated snapshots and archives.")
	f.Workers = fs.Int("workers", 0, "Number of repository folders pruned in parallel.")
	f.FailOnError = fs.Bool("fail-on-error", false, "Exit with an error when pruning any repository folder failed.")
	f.History = fs.Int("history", 0, "Number of revisions kept per repository.")
	f.RetentionMode = fs.String("retention-mode", "", "Retention mode: 'independent' or 'revision'.")
	f.CompressionFormat = fs.String("compression-format", "", "Format of the archives to prune: 'zip', 'tar.gz', or 'tar.zst'.")
	f.Force = fs.Bool("force", false, "Bypass confirmation prompts.")
}

// Parse parses the provided arguments (usually os.Args[1:]) and returns the action and config map.
func Parse(args []string) (Command, map[string]any, error) {
	// If no arguments provided, print help and exit.
	if len(args) == 0 {
		fs := flag.NewFlagSet("main", flag.ContinueOnError)
		printTopLevelUsage(fs)
		return None, nil, nil
	}

	cmdStr := strings.ToLower(args[0])

	if cmdStr == "help" || cmdStr == "-h" || cmdStr == "-help" || cmdStr == "--help" {
		fs := flag.NewFlagSet("main", flag.ContinueOnError)
		printTopLevelUsage(fs)
		return None, nil, nil
	}

	command, err := ParseCommand(cmdStr)
	if err != nil {
		return None, nil, err
	}

	f := &cliFlags{}
	fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
	var desc string

	switch command {
	case Backup:
		registerGlobalFlags(fs, f)
		registerRunFlags(fs, f)
		desc = "Back up every Subversion repository found under the repository root."
	case Init:
		registerGlobalFlags(fs, f)
		registerInitFlags(fs, f)
		desc = "Write a configuration file into the backup root."
	case Prune:
		registerGlobalFlags(fs, f)
		registerPruneFlags(fs, f)
		desc = "Apply the retention policy to every repository folder in the backup root."
	case Version:
		return command, nil, nil
	default:
		return None, nil, fmt.Errorf("unknown command: %s", args[0])
	}

	fs.Usage = func() {
		printSubcommandUsage(command, desc, fs)
	}

	if err := fs.Parse(args[1:]); err != nil {
		return command, nil, err
	}
	if fs.NArg() > 0 {
		return command, nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	flagMap, err := flagsToMap(fs, f)
	return command, flagMap, err
}

func flagsToMap(fs *flag.FlagSet, f *cliFlags) (map[string]any, error) {
	// Only flags explicitly set by the user end up in the map, so they can
	// selectively override the loaded configuration.
	usedFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { usedFlags[f.Name] = true })

	flagMap := make(map[string]any)

	addIfUsed(flagMap, usedFlags, "log-level", f.LogLevel)
	addIfUsed(flagMap, usedFlags, "dry-run", f.DryRun)
	addIfUsed(flagMap, usedFlags, "metrics", f.Metrics)
	addIfUsed(flagMap, usedFlags, "quiet", f.Quiet)

	addIfUsed(flagMap, usedFlags, "repository-root", f.RepositoryRoot)
	addIfUsed(flagMap, usedFlags, "backup-root", f.BackupRoot)
	addIfUsed(flagMap, usedFlags, "fail-fast", f.FailFast)
	addIfUsed(flagMap, usedFlags, "fail-on-error", f.FailOnError)
	addIfUsed(flagMap, usedFlags, "workers", f.Workers)
	addIfUsed(flagMap, usedFlags, "delete-workers", f.DeleteWorkers)
	addIfUsed(flagMap, usedFlags, "buffer-size-kb", f.BufferSizeKB)

	addIfUsed(flagMap, usedFlags, "svn-path", f.SvnPath)
	addIfUsed(flagMap, usedFlags, "tool-timeout", f.ToolTimeout)

	addIfUsed(flagMap, usedFlags, "compress", f.CompressionEnabled)
	addIfUsed(flagMap, usedFlags, "compression-format", f.CompressionFormat)
	addIfUsed(flagMap, usedFlags, "compression-level", f.CompressionLevel)

	addIfUsed(flagMap, usedFlags, "history", f.History)
	addIfUsed(flagMap, usedFlags, "retention-mode", f.RetentionMode)

	addIfUsed(flagMap, usedFlags, "force", f.Force)
	addIfUsed(flagMap, usedFlags, "default", f.Default)

	addParsedIfUsed(flagMap, usedFlags, "pre-backup-hooks", f.PreBackupHooks, ParseCmdList)
	addParsedIfUsed(flagMap, usedFlags, "post-backup-hooks", f.PostBackupHooks, ParseCmdList)

	return flagMap, nil
}

// addIfUsed adds the value of ptr to flagMap if ptr is not nil and the flag was set.
func addIfUsed[T any](flagMap map[string]any, usedFlags map[string]bool, name string, ptr *T) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = *ptr
	}
}

// addParsedIfUsed adds the parsed value of ptr to flagMap if ptr is not nil and the flag was set.
func addParsedIfUsed(flagMap map[string]any, usedFlags map[string]bool, name string, ptr *string, parser func(string) []string) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = parser(*ptr)
	}
}

// printTopLevelUsage prints the main help message.
func printTopLevelUsage(fs *flag.FlagSet) {
	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "Incremental hot-copy backups of Subversion repositories.\n\n")
	fmt.Fprintf(fs.Output(), "Usage: %s <command> [flags]\n\n", execName)
	fmt.Fprintf(fs.Output(), "Commands:\n")
	fmt.Fprintf(fs.Output(), "  backup      Back up the repositories that have new revisions\n")
	fmt.Fprintf(fs.Output(), "  prune       Apply the retention policy to existing backups\n")
	fmt.Fprintf(fs.Output(), "  init        Initialize a new configuration\n")
	fmt.Fprintf(fs.Output(), "  version     Print the application version\n")
	fmt.Fprintf(fs.Output(), "\nRun '%s <command> -help' for more information on a command.\n", execName)
}

// printSubcommandUsage prints the help message for a specific subcommand.
func printSubcommandUsage(command Command, desc string, fs *flag.FlagSet) {
	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "Incremental hot-copy backups of Subversion repositories.\n\n")
	fmt.Fprintf(fs.Output(), "Usage of the %s command: %s %s [flags]\n\n", command, execName, command)
	fmt.Fprintf(fs.Output(), "%s\n\n", desc)
	fmt.Fprintf(fs.Output(), "Flags:\n")
	fs.PrintDefaults()
}

// ParseCmdList parses a comma-separated list of shell-like commands.
// It preserves quotes and handles backslash escapes so they can be interpreted by the shell.
func ParseCmdList(s string) []string {
	var list []string
	var current strings.Builder
	var quoteChar rune

	appendItem := func() {
		trimmed := strings.TrimSpace(current.String())
		if trimmed != "" {
			list = append(list, trimmed)
		}
		current.Reset()
	}

	var isEscaped bool
	for _, r := range s {
		if isEscaped {
			current.WriteRune(r)
			isEscaped = false
			continue
		}

		switch {
		case r == '\\':
			isEscaped = true
			// The shell interprets the escape, keep the backslash.
			current.WriteRune(r)
		case r == '\'' || r == '"':
			switch quoteChar {
			case 0:
				quoteChar = r
			case r:
				quoteChar = 0
			}
			current.WriteRune(r)
		case r == ',' && quoteChar == 0:
			appendItem()
		default:
			current.WriteRune(r)
		}
	}
	appendItem()
	return list
}
