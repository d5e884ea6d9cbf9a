// Package hotcopy captures a consistent copy of a live repository using
// "svnadmin hotcopy".
//
// The copy is written next to its final location under a temporary name and
// only renamed into place when svnadmin succeeded, so a snapshot directory
// with a revision tag name is always complete.
package hotcopy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/paulschiretz/pgl-svnbackup/pkg/hints"
	"github.com/paulschiretz/pgl-svnbackup/pkg/plog"
	"github.com/paulschiretz/pgl-svnbackup/pkg/svntool"
	"github.com/paulschiretz/pgl-svnbackup/pkg/util"
)

// TempSuffix marks a snapshot that is still being written.
const TempSuffix = ".tmp"

var ErrAlreadyExists = hints.New("snapshot already exists")

type Extractor struct {
	runner *svntool.Runner
}

func NewExtractor(runner *svntool.Runner) *Extractor {
	return &Extractor{runner: runner}
}

// Extract hot-copies repoPath to snapshotPath.
func (e *Extractor) Extract(ctx context.Context, repoPath, snapshotPath string, plan *Plan) error {
	if _, err := os.Lstat(snapshotPath); err == nil {
		return hints.Wrapf(ErrAlreadyExists, "%s", snapshotPath)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("could not stat snapshot %s: %w", snapshotPath, err)
	}

	tempPath := snapshotPath + TempSuffix

	if plan.DryRun {
		plog.Info("[DRY RUN] HOTCOPY", "source", repoPath, "target", snapshotPath)
		return nil
	}

	if _, err := os.Lstat(tempPath); err == nil {
		plog.Notice("Removing stale temporary snapshot", "path", tempPath)
		if err := util.RemoveAllForce(tempPath); err != nil {
			return fmt.Errorf("could not remove stale temporary snapshot %s: %w", tempPath, err)
		}
	}

	plog.Info("Extracting snapshot", "source", repoPath, "target", snapshotPath)

	out, err := e.runner.Run(ctx, svntool.Invocation{
		ToolPath: plan.ToolPath,
		Tool:     svntool.Svnadmin,
		Args:     []string{"hotcopy", repoPath, tempPath},
		Timeout:  plan.Timeout,
	})
	if stderr := strings.TrimSpace(string(out.Stderr)); stderr != "" {
		plog.Info("svnadmin reported", "source", repoPath, "stderr", stderr)
	}
	if err != nil {
		if rmErr := util.RemoveAllForce(tempPath); rmErr != nil {
			plog.Warn("Could not remove temporary snapshot", "path", tempPath, "error", rmErr)
		}
		var exitErr *svntool.ExitError
		if errors.As(err, &exitErr) {
			return err
		}
		return fmt.Errorf("hotcopy of %s failed: %w", repoPath, err)
	}

	if _, err := os.Stat(tempPath); err != nil {
		return fmt.Errorf("svnadmin left no snapshot at %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, snapshotPath); err != nil {
		return fmt.Errorf("could not publish snapshot %s: %w", snapshotPath, err)
	}
	plog.Notice("Snapshot published", "path", snapshotPath)
	return nil
}
