// Package pathretention bounds the history kept for a repository.
//
// A repository's backup folder holds snapshot directories named by revision
// tag (v0000042) and archive files named tag plus extension (v0000042.zip).
// Every other entry, including temporary snapshots and the metadata file,
// is invisible to retention.
package pathretention

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/paulschiretz/pgl-svnbackup/pkg/hints"
	"github.com/paulschiretz/pgl-svnbackup/pkg/plog"
	"github.com/paulschiretz/pgl-svnbackup/pkg/revprobe"
)

var ErrDisabled = hints.New("retention policy is disabled")
var ErrNothingToPrune = hints.New("nothing to prune")

// entryKind tells snapshot directories and archive files apart.
type entryKind int

const (
	snapshotEntry entryKind = iota
	archiveEntry
)

func (k entryKind) String() string {
	if k == archiveEntry {
		return "archive"
	}
	return "snapshot"
}

type entry struct {
	name     string
	revision int64
	kind     entryKind
}

type PathRetainer struct {
	numWorkers int
}

// NewPathRetainer creates a PathRetainer that deletes with numWorkers goroutines.
func NewPathRetainer(numWorkers int) *PathRetainer {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &PathRetainer{numWorkers: numWorkers}
}

// Prune deletes the oldest snapshots and archives in repoBackupPath beyond
// the configured history. Every deletion is attempted, the returned error
// joins all failures.
func (r *PathRetainer) Prune(ctx context.Context, repoBackupPath string, p *Plan) error {
	if !p.Enabled || p.History < 1 {
		plog.Debug("Retention is disabled, skipping", "path", repoBackupPath)
		return ErrDisabled
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	snapshots, archives, err := scan(repoBackupPath, p.Extension)
	if err != nil {
		return err
	}

	var toDelete []entry
	switch p.Mode {
	case Revision:
		toDelete = selectByRevision(snapshots, archives, p.History)
	default:
		toDelete = append(selectOldest(snapshots, p.History), selectOldest(archives, p.History)...)
	}

	if len(toDelete) == 0 {
		plog.Debug("No backups need deletion", "path", repoBackupPath)
		return ErrNothingToPrune
	}

	var m Metrics
	if p.Metrics {
		m = &RetentionMetrics{}
	} else {
		m = &NoopMetrics{}
	}

	t := &task{
		PathRetainer:   r,
		ctx:            ctx,
		repoBackupPath: repoBackupPath,
		toDelete:       toDelete,
		dryRun:         p.DryRun,
		metrics:        m,
	}
	return t.execute()
}

// scan lists the tag shaped entries of dirPath, each sorted oldest first.
func scan(dirPath, extension string) (snapshots, archives []entry, err error) {
	dirEntries, err := os.ReadDir(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	for _, de := range dirEntries {
		name := de.Name()
		switch {
		case de.IsDir():
			if rev, ok := revprobe.ParseTag(name); ok {
				snapshots = append(snapshots, entry{name: name, revision: rev, kind: snapshotEntry})
			}
		case de.Type().IsRegular() && extension != "" && strings.HasSuffix(name, extension):
			if rev, ok := revprobe.ParseTag(strings.TrimSuffix(name, extension)); ok {
				archives = append(archives, entry{name: name, revision: rev, kind: archiveEntry})
			}
		}
	}

	sortEntries(snapshots)
	sortEntries(archives)
	return snapshots, archives, nil
}

// sortEntries orders by revision. For tags below 10^7 this is the same as
// ordering by name.
func sortEntries(entries []entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].revision != entries[j].revision {
			return entries[i].revision < entries[j].revision
		}
		return entries[i].name < entries[j].name
	})
}

// selectOldest returns all but the newest keep entries of a sorted list.
func selectOldest(sorted []entry, keep int) []entry {
	if len(sorted) <= keep {
		return nil
	}
	return sorted[:len(sorted)-keep]
}

// selectByRevision keeps the newest keep revisions across both lists and
// returns every entry of the older ones.
func selectByRevision(snapshots, archives []entry, keep int) []entry {
	byRev := make(map[int64][]entry)
	var revs []int64
	for _, e := range append(append([]entry{}, snapshots...), archives...) {
		if _, seen := byRev[e.revision]; !seen {
			revs = append(revs, e.revision)
		}
		byRev[e.revision] = append(byRev[e.revision], e)
	}
	if len(revs) <= keep {
		return nil
	}
	sort.Slice(revs, func(i, j int) bool { return revs[i] < revs[j] })

	var toDelete []entry
	for _, rev := range revs[:len(revs)-keep] {
		toDelete = append(toDelete, byRev[rev]...)
	}
	return toDelete
}

func joinPath(base string, e entry) string {
	return filepath.Join(base, e.name)
}
