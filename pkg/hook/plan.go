package hook

type Plan struct {
	Enabled bool

	PreHookCommands  []string
	PostHookCommands []string

	// Exported to every hook command as environment variables.
	RepositoryRoot string
	BackupRoot     string

	// Global Flags
	DryRun   bool
	FailFast bool
}
