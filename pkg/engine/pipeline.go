package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/paulschiretz/pgl-svnbackup/pkg/buildinfo"
	"github.com/paulschiretz/pgl-svnbackup/pkg/hints"
	"github.com/paulschiretz/pgl-svnbackup/pkg/hotcopy"
	"github.com/paulschiretz/pgl-svnbackup/pkg/metafile"
	"github.com/paulschiretz/pgl-svnbackup/pkg/metrics"
	"github.com/paulschiretz/pgl-svnbackup/pkg/planner"
	"github.com/paulschiretz/pgl-svnbackup/pkg/plog"
	"github.com/paulschiretz/pgl-svnbackup/pkg/util"
)

// backupRepository runs the pipeline for a single repository. Every step
// is skipped when its artifact already exists.
func (r *Runner) backupRepository(ctx context.Context, c candidate, backupRoot string, p *planner.BackupPlan, m metrics.Metrics, timestampUTC time.Time) RepositoryResult {
	res := RepositoryResult{Name: c.name, Path: c.path, Outcome: UpToDate}
	fail := func(step string, err error) RepositoryResult {
		plog.Error("Repository backup failed", "repository", c.name, "step", step, "error", err)
		res.Outcome = Failed
		res.Err = fmt.Errorf("%s: %w", step, err)
		return res
	}

	// Probe
	probed := c.probed
	if probed == nil {
		start := time.Now()
		result, err := r.prober.Probe(ctx, c.path, p.Probe)
		m.ObserveStage(metrics.StageProbe, time.Since(start))
		if err != nil {
			return fail("probe", err)
		}
		probed = &result
	}
	if !probed.Found {
		plog.Info("No revision found, skipping", "repository", c.name, "path", c.path)
		res.Outcome = Skipped
		return res
	}
	res.Revision = probed.Revision

	tag := probed.Tag()
	repoBackupPath := filepath.Join(backupRoot, c.name)
	snapshotPath := filepath.Join(repoBackupPath, tag)
	archivePath := snapshotPath + p.Compression.Format.Extension()

	if p.DryRun {
		plog.Debug("[DRY RUN] MKDIR", "path", repoBackupPath)
	} else if err := os.MkdirAll(repoBackupPath, util.UserWritableDirPerms); err != nil {
		return fail("prepare", fmt.Errorf("could not create %s: %w", repoBackupPath, err))
	}

	artifact := metafile.ArtifactSnapshot
	if exists(archivePath) {
		plog.Info("Already backed up", "repository", c.name, "revision", tag, "archive", archivePath)
		artifact = metafile.ArtifactArchive
	} else {
		if exists(snapshotPath) {
			plog.Info("Already backed up", "repository", c.name, "revision", tag, "snapshot", snapshotPath)
		} else {
			start := time.Now()
			err := r.extractor.Extract(ctx, c.path, snapshotPath, p.Hotcopy)
			m.ObserveStage(metrics.StageExtract, time.Since(start))
			switch {
			case err == nil:
				res.Outcome = BackedUp
			case errors.Is(err, hotcopy.ErrAlreadyExists):
				plog.Info("Already backed up", "repository", c.name, "revision", tag, "snapshot", snapshotPath)
			default:
				return fail("extract", err)
			}
		}

		if p.Compression.Enabled {
			start := time.Now()
			err := r.compressor.Compress(ctx, snapshotPath, archivePath, p.Compression)
			m.ObserveStage(metrics.StageCompress, time.Since(start))
			if err != nil && !hints.IsHint(err) {
				return fail("compress", err)
			}
			if err == nil {
				res.Outcome = BackedUp
			}
			artifact = metafile.ArtifactArchive
		} else {
			plog.Info("Compression inactive, keeping snapshot", "repository", c.name, "snapshot", snapshotPath)
		}
	}

	if res.Outcome == BackedUp {
		plog.Notice("BACKED UP", "repository", c.name, "revision", tag)
	}

	if !p.DryRun {
		content := &metafile.MetafileContent{
			Version:      buildinfo.Version,
			Repository:   c.name,
			SourcePath:   c.path,
			Revision:     probed.Revision,
			Tag:          tag,
			Artifact:     artifact,
			TimestampUTC: timestampUTC,
		}
		if artifact == metafile.ArtifactArchive {
			content.CompressionFormat = p.Compression.Format.String()
		}
		if err := metafile.Write(repoBackupPath, content); err != nil {
			plog.Warn("Could not write repository metadata", "repository", c.name, "error", err)
		}
	}

	// Prune always runs, also when nothing new was written.
	start := time.Now()
	err := r.retainer.Prune(ctx, repoBackupPath, p.Retention)
	m.ObserveStage(metrics.StagePrune, time.Since(start))
	if err != nil && !hints.IsHint(err) {
		return fail("prune", err)
	}
	return res
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
