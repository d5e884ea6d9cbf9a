// Package metrics collects the per-run counters of a backup or prune run.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/paulschiretz/pgl-svnbackup/pkg/plog"
)

// Stage names a step of the per-repository pipeline.
type Stage int

const (
	StageProbe Stage = iota
	StageExtract
	StageCompress
	StagePrune
	numStages
)

var stageNames = [numStages]string{"probe", "extract", "compress", "prune"}

func (s Stage) String() string {
	if s >= 0 && s < numStages {
		return stageNames[s]
	}
	return "unknown"
}

// Metrics defines the interface for collecting and reporting run statistics.
type Metrics interface {
	AddBackedUp(n int64)
	AddUpToDate(n int64)
	AddSkipped(n int64)
	AddFailed(n int64)
	ObserveStage(s Stage, d time.Duration)
	LogSummary(msg string)
}

// RunMetrics is safe for use by concurrent repository workers.
type RunMetrics struct {
	BackedUp atomic.Int64
	UpToDate atomic.Int64
	Skipped  atomic.Int64
	Failed   atomic.Int64

	stageNanos [numStages]atomic.Int64
	startTime  time.Time
}

// NewRunMetrics starts the run clock.
func NewRunMetrics() *RunMetrics {
	return &RunMetrics{startTime: time.Now()}
}

func (m *RunMetrics) AddBackedUp(n int64) { m.BackedUp.Add(n) }
func (m *RunMetrics) AddUpToDate(n int64) { m.UpToDate.Add(n) }
func (m *RunMetrics) AddSkipped(n int64)  { m.Skipped.Add(n) }
func (m *RunMetrics) AddFailed(n int64)   { m.Failed.Add(n) }

func (m *RunMetrics) ObserveStage(s Stage, d time.Duration) {
	if s >= 0 && s < numStages {
		m.stageNanos[s].Add(int64(d))
	}
}

// StageTotal is the time spent in s summed over all repositories.
func (m *RunMetrics) StageTotal(s Stage) time.Duration {
	if s < 0 || s >= numStages {
		return 0
	}
	return time.Duration(m.stageNanos[s].Load())
}

func (m *RunMetrics) LogSummary(msg string) {
	duration := time.Duration(0)
	if !m.startTime.IsZero() {
		duration = time.Since(m.startTime)
	}
	args := []any{
		"backed_up", m.BackedUp.Load(),
		"up_to_date", m.UpToDate.Load(),
		"skipped", m.Skipped.Load(),
		"failed", m.Failed.Load(),
	}
	for s := StageProbe; s < numStages; s++ {
		args = append(args, s.String()+"_time", m.StageTotal(s).Round(time.Millisecond))
	}
	args = append(args, "duration", duration.Round(time.Millisecond))
	plog.Info(msg, args...)
}

// NoopMetrics is an implementation of the Metrics interface that performs no operations.
type NoopMetrics struct{}

func (m *NoopMetrics) AddBackedUp(n int64)                   {}
func (m *NoopMetrics) AddUpToDate(n int64)                   {}
func (m *NoopMetrics) AddSkipped(n int64)                    {}
func (m *NoopMetrics) AddFailed(n int64)                     {}
func (m *NoopMetrics) ObserveStage(s Stage, d time.Duration) {}
func (m *NoopMetrics) LogSummary(msg string)                 {}

var _ Metrics = (*RunMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
