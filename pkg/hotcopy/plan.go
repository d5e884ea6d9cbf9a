package hotcopy

import "time"

type Plan struct {
	ToolPath string
	Timeout  time.Duration

	// Global Flags
	DryRun bool
}
