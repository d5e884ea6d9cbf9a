// Package engine runs the backup and prune pipelines over a set of repositories.
package engine

import (
	"context"
	"time"

	"github.com/paulschiretz/pgl-svnbackup/pkg/hook"
	"github.com/paulschiretz/pgl-svnbackup/pkg/hotcopy"
	"github.com/paulschiretz/pgl-svnbackup/pkg/pathcompression"
	"github.com/paulschiretz/pgl-svnbackup/pkg/pathretention"
	"github.com/paulschiretz/pgl-svnbackup/pkg/revprobe"
)

// --- ARCHITECTURAL OVERVIEW ---
//
// A run walks every repository found under the repository root through the
// same pipeline: probe the youngest revision, hot-copy it into a snapshot
// named after the revision, optionally compress the snapshot and finally
// prune the repository's backup folder.
//
// Each step is a no-op when its artifact already exists, so a run over
// unchanged repositories only probes. Repositories are isolated from each
// other: an error or panic in one is recorded in the Report and the run
// carries on with the next one. Only problems with the roots themselves,
// the lock or the configuration abort a run.

// Prober reports the youngest revision of a repository.
type Prober interface {
	Probe(ctx context.Context, repoPath string, p *revprobe.Plan) (revprobe.Result, error)
}

// Extractor produces a snapshot of a repository.
type Extractor interface {
	Extract(ctx context.Context, repoPath, snapshotPath string, p *hotcopy.Plan) error
}

// Compressor turns a snapshot into an archive.
type Compressor interface {
	Compress(ctx context.Context, snapshotPath, archivePath string, p *pathcompression.Plan) error
}

// Retainer prunes a repository's backup folder.
type Retainer interface {
	Prune(ctx context.Context, repoBackupPath string, p *pathretention.Plan) error
}

// HookRunner runs the pre and post backup commands.
type HookRunner interface {
	RunPreHook(ctx context.Context, hookName string, p *hook.Plan, timestampUTC time.Time) error
	RunPostHook(ctx context.Context, hookName string, p *hook.Plan, timestampUTC time.Time) error
}

type Runner struct {
	prober     Prober
	extractor  Extractor
	compressor Compressor
	retainer   Retainer
	hooks      HookRunner
}

// NewRunner creates a Runner from its leaf workers.
func NewRunner(prober Prober, extractor Extractor, compressor Compressor, retainer Retainer, hooks HookRunner) *Runner {
	return &Runner{
		prober:     prober,
		extractor:  extractor,
		compressor: compressor,
		retainer:   retainer,
		hooks:      hooks,
	}
}
