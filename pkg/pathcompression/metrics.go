package pathcompression

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/paulschiretz/pgl-svnbackup/pkg/plog"
	"github.com/paulschiretz/pgl-svnbackup/pkg/util"
)

// Metrics collects the statistics of a single archive run.
type Metrics interface {
	AddFiles(n int64)
	AddDirs(n int64)
	AddBytesRead(n int64)
	AddBytesWritten(n int64)
	LogSummary(msg string)
}

// CompressionMetrics counts what went into one archive and how much came out.
type CompressionMetrics struct {
	Files        atomic.Int64
	Dirs         atomic.Int64
	BytesRead    atomic.Int64
	BytesWritten atomic.Int64

	start time.Time
}

// NewCompressionMetrics starts the clock for the reported duration.
func NewCompressionMetrics() *CompressionMetrics {
	return &CompressionMetrics{start: time.Now()}
}

func (m *CompressionMetrics) AddFiles(n int64)        { m.Files.Add(n) }
func (m *CompressionMetrics) AddDirs(n int64)         { m.Dirs.Add(n) }
func (m *CompressionMetrics) AddBytesRead(n int64)    { m.BytesRead.Add(n) }
func (m *CompressionMetrics) AddBytesWritten(n int64) { m.BytesWritten.Add(n) }

// Ratio is the archive size in percent of the snapshot size.
func (m *CompressionMetrics) Ratio() float64 {
	read := m.BytesRead.Load()
	if read == 0 {
		return 0
	}
	return float64(m.BytesWritten.Load()) / float64(read) * 100.0
}

func (m *CompressionMetrics) LogSummary(msg string) {
	var elapsed time.Duration
	if !m.start.IsZero() {
		elapsed = time.Since(m.start)
	}
	plog.Info(msg,
		"files", m.Files.Load(),
		"dirs", m.Dirs.Load(),
		"snapshot_size", util.ByteCountIEC(m.BytesRead.Load()),
		"archive_size", util.ByteCountIEC(m.BytesWritten.Load()),
		"ratio", fmt.Sprintf("%.1f%%", m.Ratio()),
		"duration", elapsed.Round(time.Millisecond),
	)
}

// NoopMetrics drops everything.
type NoopMetrics struct{}

func (*NoopMetrics) AddFiles(int64)        {}
func (*NoopMetrics) AddDirs(int64)         {}
func (*NoopMetrics) AddBytesRead(int64)    {}
func (*NoopMetrics) AddBytesWritten(int64) {}
func (*NoopMetrics) LogSummary(string)     {}

var _ Metrics = (*CompressionMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
