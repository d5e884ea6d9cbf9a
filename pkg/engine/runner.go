package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/paulschiretz/pgl-svnbackup/pkg/buildinfo"
	"github.com/paulschiretz/pgl-svnbackup/pkg/hints"
	"github.com/paulschiretz/pgl-svnbackup/pkg/lockfile"
	"github.com/paulschiretz/pgl-svnbackup/pkg/metrics"
	"github.com/paulschiretz/pgl-svnbackup/pkg/planner"
	"github.com/paulschiretz/pgl-svnbackup/pkg/plog"
	"github.com/paulschiretz/pgl-svnbackup/pkg/preflight"
	"github.com/paulschiretz/pgl-svnbackup/pkg/revprobe"
	"github.com/paulschiretz/pgl-svnbackup/pkg/util"
)

// candidate is a directory that may hold a repository.
type candidate struct {
	name string
	path string
	// probed is set when the revision is already known from discovery.
	probed *revprobe.Result
}

// ExecuteBackup backs up the repository at repoRoot, or every repository
// directly below it, into backupRoot. The returned error is only non-nil
// for fatal problems, or when failOnRepositoryError is set and a
// repository failed.
func (r *Runner) ExecuteBackup(ctx context.Context, repoRoot, backupRoot string, p *planner.BackupPlan) (*Report, error) {
	report := &Report{}

	// Check for cancellation at the very beginning.
	select {
	case <-ctx.Done():
		return report, ctx.Err()
	default:
	}

	// save the execution timestamp
	timestampUTC := time.Now().UTC()

	// Repository names and backup folders derive from these paths, so they
	// must be absolute: filepath.Base(".") would name the backup root itself.
	repoRoot, err := util.ResolvePath(repoRoot)
	if err != nil {
		return report, fmt.Errorf("preflight failed: %w", err)
	}
	if backupRoot, err = util.ResolvePath(backupRoot); err != nil {
		return report, fmt.Errorf("preflight failed: %w", err)
	}

	if err := preflight.CheckRepositoryRootAccessible(repoRoot); err != nil {
		return report, fmt.Errorf("preflight failed: %w", err)
	}
	nested, err := preflight.CheckRootsDistinct(repoRoot, backupRoot)
	if err != nil {
		return report, fmt.Errorf("preflight failed: %w", err)
	}
	if nested {
		plog.Warn("Repository root and backup root are nested", "repository_root", repoRoot, "backup_root", backupRoot)
	}

	releaseLock, proceed, err := r.prepareBackupRoot(ctx, backupRoot, p.DryRun)
	if err != nil || !proceed {
		return report, err
	}
	defer releaseLock()

	// --- Pre-Backup Hooks ---
	if err := r.hooks.RunPreHook(ctx, "backup", p.Hooks, timestampUTC); err != nil && !hints.IsHint(err) {
		errMsg := "pre-backup hook failed"
		if errors.Is(err, context.Canceled) {
			errMsg = "pre-backup hook canceled"
		}
		return report, fmt.Errorf("%s: %w", errMsg, err)
	}

	// --- Post-Backup Hooks (deferred) ---
	// These run at the end of the function, even if the backup fails.
	defer func() {
		if err := r.hooks.RunPostHook(ctx, "backup", p.Hooks, timestampUTC); err != nil && !hints.IsHint(err) {
			if errors.Is(err, context.Canceled) {
				plog.Info("post-backup hooks skipped due to cancellation.")
			} else {
				plog.Warn("post-backup hook failed", "error", err)
			}
		}
	}()

	plog.Info("Starting backup", "repository_root", repoRoot, "backup_root", backupRoot)

	candidates, err := r.discover(ctx, repoRoot, backupRoot, p)
	if err != nil {
		return report, err
	}

	var m metrics.Metrics
	if p.Metrics {
		m = metrics.NewRunMetrics()
	} else {
		m = &metrics.NoopMetrics{}
	}

	err = r.forEach(ctx, candidates, p.Workers, p.FailFast, report, func(ctx context.Context, c candidate) RepositoryResult {
		return r.backupRepository(ctx, c, backupRoot, p, m, timestampUTC)
	})

	for _, res := range report.Results() {
		switch res.Outcome {
		case BackedUp:
			m.AddBackedUp(1)
		case UpToDate:
			m.AddUpToDate(1)
		case Skipped:
			m.AddSkipped(1)
		case Failed:
			m.AddFailed(1)
		}
	}
	report.LogSummary("Backup finished")
	m.LogSummary("Backup metrics")

	if err != nil {
		return report, err
	}
	if p.FailOnRepositoryError && report.Count(Failed) > 0 {
		return report, fmt.Errorf("%w: %w", ErrRepositoriesFailed, report.Err())
	}
	return report, nil
}

// ExecutePrune applies the retention policy to every repository folder in backupRoot.
func (r *Runner) ExecutePrune(ctx context.Context, backupRoot string, p *planner.PrunePlan) (*Report, error) {
	report := &Report{}

	select {
	case <-ctx.Done():
		return report, ctx.Err()
	default:
	}

	backupRoot, err := util.ResolvePath(backupRoot)
	if err != nil {
		return report, fmt.Errorf("preflight failed: %w", err)
	}
	if err := preflight.CheckBackupRootAccessible(backupRoot); err != nil {
		return report, fmt.Errorf("preflight failed: %w", err)
	}
	info, err := os.Stat(backupRoot)
	if err != nil {
		return report, fmt.Errorf("preflight failed: backup root %s does not exist: %w", backupRoot, err)
	}
	if !info.IsDir() {
		return report, fmt.Errorf("preflight failed: backup root %s is not a directory", backupRoot)
	}

	if !p.Retention.Enabled || p.Retention.History < 1 {
		plog.Info("Retention is disabled, nothing to prune", "history", p.Retention.History)
		return report, nil
	}

	releaseLock, err := r.acquireTargetLock(ctx, backupRoot)
	if err != nil {
		return report, err
	}
	if releaseLock == nil {
		return report, nil
	}
	defer releaseLock()

	plog.Info("Starting prune", "backup_root", backupRoot, "history", p.Retention.History, "mode", p.Retention.Mode)

	entries, err := os.ReadDir(backupRoot)
	if err != nil {
		return report, fmt.Errorf("failed to read backup root %s: %w", backupRoot, err)
	}
	var candidates []candidate
	for _, entry := range entries {
		if entry.IsDir() {
			candidates = append(candidates, candidate{name: entry.Name(), path: filepath.Join(backupRoot, entry.Name())})
		}
	}

	err = r.forEach(ctx, candidates, p.Workers, false, report, func(ctx context.Context, c candidate) RepositoryResult {
		res := RepositoryResult{Name: c.name, Path: c.path, Outcome: Pruned}
		err := r.retainer.Prune(ctx, c.path, p.Retention)
		switch {
		case err == nil:
		case hints.IsHint(err):
			res.Outcome = UpToDate
		default:
			plog.Error("Prune failed", "repository", c.name, "error", err)
			res.Outcome = Failed
			res.Err = err
		}
		return res
	})
	report.LogSummary("Prune finished")

	if err != nil {
		return report, err
	}
	if p.FailOnRepositoryError && report.Count(Failed) > 0 {
		return report, fmt.Errorf("%w: %w", ErrRepositoriesFailed, report.Err())
	}
	return report, nil
}

// prepareBackupRoot makes sure the backup root exists and takes the lock.
// proceed is false when another run holds the lock or a dry run finds no
// backup root to lock.
func (r *Runner) prepareBackupRoot(ctx context.Context, backupRoot string, dryRun bool) (release func(), proceed bool, err error) {
	if err := preflight.CheckBackupRootAccessible(backupRoot); err != nil {
		return nil, false, fmt.Errorf("preflight failed: %w", err)
	}

	if dryRun {
		if _, err := os.Stat(backupRoot); os.IsNotExist(err) {
			plog.Info("[DRY RUN] MKDIR", "path", backupRoot)
			return func() {}, true, nil
		}
	} else if err := preflight.CheckBackupRootWritable(backupRoot); err != nil {
		return nil, false, fmt.Errorf("preflight failed: %w", err)
	}

	releaseLock, err := r.acquireTargetLock(ctx, backupRoot)
	if err != nil {
		return nil, false, err
	}
	if releaseLock == nil {
		return nil, false, nil
	}
	return releaseLock, true, nil
}

// acquireTargetLock acquires a file lock within the backup root.
// It returns a release function that must be called to unlock the directory,
// or nil when another run holds the lock.
func (r *Runner) acquireTargetLock(ctx context.Context, backupRoot string) (func(), error) {
	appID := fmt.Sprintf("%s:%s", buildinfo.Name, backupRoot)

	plog.Debug("Attempting to acquire lock", "path", backupRoot)
	lock, err := lockfile.Acquire(ctx, backupRoot, appID)
	if err != nil {
		var lockErr *lockfile.ErrLockActive
		if errors.As(err, &lockErr) {
			plog.Warn("Operation is already running for this backup root, skipping run.", "details", lockErr.Error())
			return nil, nil
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	plog.Debug("Lock acquired successfully.")

	return lock.Release, nil
}

// discover decides between single repository mode and multi repository mode.
// The root itself is probed once; failure to run the tool at all is fatal.
func (r *Runner) discover(ctx context.Context, repoRoot, backupRoot string, p *planner.BackupPlan) ([]candidate, error) {
	result, err := r.prober.Probe(ctx, repoRoot, p.Probe)
	if err != nil {
		return nil, fmt.Errorf("could not probe repository root %s: %w", repoRoot, err)
	}
	if result.Found {
		plog.Info("Repository root is a repository", "path", repoRoot, "revision", result.Revision)
		return []candidate{{name: filepath.Base(repoRoot), path: repoRoot, probed: &result}}, nil
	}

	entries, err := os.ReadDir(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read repository root %s: %w", repoRoot, err)
	}

	// os.ReadDir returns the entries sorted by name.
	var candidates []candidate
	for _, entry := range entries {
		path := filepath.Join(repoRoot, entry.Name())
		info, err := os.Stat(path) // follows symlinked repositories
		if err != nil || !info.IsDir() {
			continue
		}
		if path == backupRoot {
			plog.Debug("Skipping backup root inside repository root", "path", path)
			continue
		}
		candidates = append(candidates, candidate{name: entry.Name(), path: path})
	}
	plog.Info("Scanning repository root", "path", repoRoot, "candidates", len(candidates))
	return candidates, nil
}

// forEach runs fn for every candidate on a bounded pool. Each call is
// isolated: a panic is recovered and recorded as a failure. With failFast
// the first failure cancels the remaining candidates and is returned.
func (r *Runner) forEach(ctx context.Context, candidates []candidate, workers int, failFast bool, report *Report, fn func(context.Context, candidate) RepositoryResult) error {
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, c := range candidates {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res := isolate(gctx, c, fn)
			report.add(res)
			if failFast && res.Outcome == Failed {
				return fmt.Errorf("repository %s failed: %w", res.Name, res.Err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func isolate(ctx context.Context, c candidate, fn func(context.Context, candidate) RepositoryResult) (res RepositoryResult) {
	defer func() {
		if rec := recover(); rec != nil {
			plog.Error("Repository pipeline panicked", "repository", c.name, "panic", rec, "stack", string(debug.Stack()))
			res = RepositoryResult{
				Name:    c.name,
				Path:    c.path,
				Outcome: Failed,
				Err:     fmt.Errorf("panic: %v", rec),
			}
		}
	}()
	return fn(ctx, c)
}
