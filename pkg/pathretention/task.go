package pathretention

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/paulschiretz/pgl-svnbackup/pkg/plog"
	"github.com/paulschiretz/pgl-svnbackup/pkg/util"
)

// task holds the mutable state for a single Prune call.
type task struct {
	*PathRetainer

	ctx            context.Context
	repoBackupPath string
	toDelete       []entry

	metrics Metrics
	dryRun  bool

	deleteTasksChan chan entry
	deleteWg        sync.WaitGroup

	mu   sync.Mutex
	errs []error
}

func (t *task) execute() error {
	plog.Info("Deleting outdated backups", "path", t.repoBackupPath, "count", len(t.toDelete))

	defer t.metrics.LogSummary("Delete finished")

	t.deleteTasksChan = make(chan entry, t.numWorkers*2)

	for range t.numWorkers {
		t.deleteWg.Add(1)
		go t.deleteWorker()
	}
	go t.deleteTaskProducer()

	t.deleteWg.Wait()

	if err := t.ctx.Err(); err != nil {
		return err
	}
	return errors.Join(t.errs...)
}

func (t *task) deleteTaskProducer() {
	defer close(t.deleteTasksChan)
	for _, e := range t.toDelete {
		select {
		case <-t.ctx.Done():
			plog.Debug("Cancellation received, stopping retention job feeding.")
			return
		case t.deleteTasksChan <- e:
		}
	}
}

func (t *task) deleteWorker() {
	defer t.deleteWg.Done()
	for e := range t.deleteTasksChan {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		if t.dryRun {
			plog.Info("[DRY RUN] DELETE", "kind", e.kind, "path", e.name)
			continue
		}

		plog.Info("DELETE", "kind", e.kind, "path", e.name)
		if err := util.RemoveAllForce(joinPath(t.repoBackupPath, e)); err != nil {
			t.metrics.AddDeletesFailed(1)
			plog.Warn("Failed to delete outdated backup", "kind", e.kind, "path", e.name, "error", err)
			t.mu.Lock()
			t.errs = append(t.errs, fmt.Errorf("delete %s: %w", e.name, err))
			t.mu.Unlock()
			continue
		}

		if e.kind == archiveEntry {
			t.metrics.AddArchivesDeleted(1)
		} else {
			t.metrics.AddSnapshotsDeleted(1)
		}
	}
}
