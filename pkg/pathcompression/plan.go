package pathcompression

type Plan struct {
	Enabled bool
	Format  Format
	Level   Level

	// Global Flags
	DryRun  bool
	Metrics bool
}
