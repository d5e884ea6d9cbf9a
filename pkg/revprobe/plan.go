package revprobe

import "time"

type Plan struct {
	ToolPath string
	Timeout  time.Duration
}
