// Package preflight validates the repository root and the backup root before
// a run touches anything. A failed check is fatal for the whole run.
package preflight

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulschiretz/pgl-svnbackup/pkg/util"
)

var ErrSameRoot = errors.New("repository root and backup root must differ")

// CheckRepositoryRootAccessible validates that the repository root exists and is a directory.
func CheckRepositoryRootAccessible(repoRoot string) error {
	info, err := os.Stat(repoRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("repository root %s does not exist", repoRoot)
		}
		return fmt.Errorf("cannot stat repository root %s: %w", repoRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("repository root %s is not a directory", repoRoot)
	}
	return nil
}

// CheckBackupRootAccessible gives friendlier errors than a failing os.MkdirAll.
// An existing backup root must be a directory. A missing one is fine, it is
// created together with its missing parents.
func CheckBackupRootAccessible(backupRoot string) error {
	if err := checkVolumeExists(backupRoot); err != nil {
		return err
	}

	info, err := os.Stat(backupRoot)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return fmt.Errorf("cannot access backup root: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("backup root exists but is not a directory: %s", backupRoot)
	}
	return nil
}

// CheckBackupRootWritable creates the backup root if needed and verifies
// that new entries can be created in it.
func CheckBackupRootWritable(backupRoot string) error {
	if err := os.MkdirAll(backupRoot, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create backup root %s: %w", backupRoot, err)
	}
	if err := checkWritable(backupRoot); err != nil {
		return fmt.Errorf("backup root %s is not writable: %w", backupRoot, err)
	}
	return nil
}

// CheckRootsDistinct rejects a backup root equal to the repository root.
// It reports nested as true when one root lies inside the other, which is
// allowed but usually a mistake.
func CheckRootsDistinct(repoRoot, backupRoot string) (nested bool, err error) {
	a, err := filepath.Abs(repoRoot)
	if err != nil {
		return false, fmt.Errorf("could not resolve repository root %s: %w", repoRoot, err)
	}
	b, err := filepath.Abs(backupRoot)
	if err != nil {
		return false, fmt.Errorf("could not resolve backup root %s: %w", backupRoot, err)
	}
	if a == b {
		return false, fmt.Errorf("%w: %s", ErrSameRoot, a)
	}
	return isWithin(a, b) || isWithin(b, a), nil
}

func isWithin(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
