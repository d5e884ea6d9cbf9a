package pathretention

import (
	"sync/atomic"

	"github.com/paulschiretz/pgl-svnbackup/pkg/plog"
)

// Metrics counts the outcome of the deletions of one Prune call.
type Metrics interface {
	AddSnapshotsDeleted(n int64)
	AddArchivesDeleted(n int64)
	AddDeletesFailed(n int64)
	LogSummary(msg string)
}

type RetentionMetrics struct {
	SnapshotsDeleted atomic.Int64
	ArchivesDeleted  atomic.Int64
	DeletesFailed    atomic.Int64
}

func (m *RetentionMetrics) AddSnapshotsDeleted(n int64) { m.SnapshotsDeleted.Add(n) }
func (m *RetentionMetrics) AddArchivesDeleted(n int64)  { m.ArchivesDeleted.Add(n) }
func (m *RetentionMetrics) AddDeletesFailed(n int64)    { m.DeletesFailed.Add(n) }

func (m *RetentionMetrics) LogSummary(msg string) {
	args := []any{
		"snapshots_deleted", m.SnapshotsDeleted.Load(),
		"archives_deleted", m.ArchivesDeleted.Load(),
	}
	if failed := m.DeletesFailed.Load(); failed > 0 {
		plog.Warn(msg, append(args, "deletes_failed", failed)...)
		return
	}
	plog.Info(msg, args...)
}

type NoopMetrics struct{}

func (*NoopMetrics) AddSnapshotsDeleted(int64) {}
func (*NoopMetrics) AddArchivesDeleted(int64)  {}
func (*NoopMetrics) AddDeletesFailed(int64)    {}
func (*NoopMetrics) LogSummary(string)         {}

var _ Metrics = (*RetentionMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
