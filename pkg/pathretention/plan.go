package pathretention

type Plan struct {
	Enabled bool
	// History is the number of revisions kept per category. Values below 1
	// disable pruning.
	History int
	Mode    Mode
	// Extension of the archive files to consider, e.g. ".zip".
	Extension string

	// Global Flags
	DryRun  bool
	Metrics bool
}
