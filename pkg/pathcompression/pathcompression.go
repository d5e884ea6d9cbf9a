// Package pathcompression packs a snapshot directory into a single archive file.
//
// The archive is written to a temporary file next to its final location and
// renamed into place once complete. Only then is the snapshot directory
// removed, so at every point in time either the directory or the finished
// archive holds the snapshot.
package pathcompression

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/paulschiretz/pgl-svnbackup/pkg/hints"
	"github.com/paulschiretz/pgl-svnbackup/pkg/plog"
	"github.com/paulschiretz/pgl-svnbackup/pkg/util"
)

const tempPrefix = "pgl-svnbackup-"

var ErrDisabled = hints.New("compression is disabled")
var ErrArchiveExists = hints.New("archive already exists")

type PathCompressor struct {
	ioBufferSize int
	ioBufferPool *sync.Pool
}

// NewPathCompressor creates a new PathCompressor with the given buffer size.
func NewPathCompressor(bufferSizeKB int) *PathCompressor {
	if bufferSizeKB <= 0 {
		bufferSizeKB = 256
	}
	bufferSize := bufferSizeKB * 1024
	return &PathCompressor{
		ioBufferSize: bufferSize,
		ioBufferPool: &sync.Pool{
			New: func() any {
				b := make([]byte, bufferSize)
				return &b
			},
		},
	}
}

// Compress archives snapshotPath into archivePath and removes snapshotPath.
func (c *PathCompressor) Compress(ctx context.Context, snapshotPath, archivePath string, p *Plan) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !p.Enabled {
		return ErrDisabled
	}

	if _, err := os.Lstat(archivePath); err == nil {
		return hints.Wrapf(ErrArchiveExists, "%s", archivePath)
	}

	// A dry run never extracted the snapshot, so there is nothing to inspect.
	if p.DryRun {
		plog.Info("[DRY RUN] COMPRESS", "source", snapshotPath, "archive", archivePath)
		return nil
	}

	info, err := os.Stat(snapshotPath)
	if err != nil {
		return fmt.Errorf("snapshot not found: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("snapshot is not a directory: %s", snapshotPath)
	}

	var m Metrics
	if p.Metrics {
		m = NewCompressionMetrics()
	} else {
		m = &NoopMetrics{}
	}
	defer m.LogSummary("Compression finished")

	plog.Info("Compressing snapshot", "source", snapshotPath, "archive", archivePath, "format", p.Format)

	cleanupStaleTempFiles(filepath.Dir(archivePath))

	if err := c.writeArchive(ctx, snapshotPath, archivePath, p, m); err != nil {
		return err
	}

	if err := util.RemoveAllForce(snapshotPath); err != nil {
		return fmt.Errorf("archive created but snapshot %s could not be removed: %w", snapshotPath, err)
	}
	plog.Notice("COMPRESSED", "archive", archivePath)
	return nil
}

func (c *PathCompressor) writeArchive(ctx context.Context, srcDir, archivePath string, p *Plan, m Metrics) (retErr error) {
	trgF, err := os.CreateTemp(filepath.Dir(archivePath), tempPrefix+"*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp archive: %w", err)
	}
	tempPath := trgF.Name()

	defer func() {
		if retErr != nil {
			trgF.Close()
			os.Remove(tempPath)
		}
	}()

	bufWriter := bufio.NewWriterSize(&compressMetricWriter{w: trgF, metrics: m}, c.ioBufferSize)
	aw, err := newArchiveWriter(bufWriter, p.Format, p.Level)
	if err != nil {
		return err
	}

	walkErr := c.walk(ctx, srcDir, aw, m)

	if err := aw.Close(); err != nil && walkErr == nil {
		walkErr = err
	}
	if err := bufWriter.Flush(); err != nil && walkErr == nil {
		walkErr = fmt.Errorf("buffer flush failed: %w", err)
	}
	if walkErr != nil {
		return walkErr
	}

	if err := trgF.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp archive: %w", err)
	}
	if err := trgF.Close(); err != nil {
		return fmt.Errorf("failed to close temp archive: %w", err)
	}
	if err := os.Rename(tempPath, archivePath); err != nil {
		return fmt.Errorf("failed to rename temp archive to final path: %w", err)
	}
	return nil
}

func (c *PathCompressor) walk(ctx context.Context, srcDir string, aw archiveWriter, m Metrics) error {
	bufPtr := c.ioBufferPool.Get().(*[]byte)
	defer c.ioBufferPool.Put(bufPtr)

	return filepath.WalkDir(srcDir, func(absSrcPath string, d fs.DirEntry, walkErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if walkErr != nil {
			return walkErr
		}
		if absSrcPath == srcDir {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to get file info for %s: %w", absSrcPath, err)
		}
		relPathKey, err := filepath.Rel(srcDir, absSrcPath)
		if err != nil {
			return fmt.Errorf("failed to get relative path for %s: %w", absSrcPath, err)
		}
		relPathKey = util.NormalizePath(relPathKey)

		plog.Debug("ADD", "file", relPathKey)

		switch {
		case info.IsDir():
			m.AddDirs(1)
			return aw.AddDir(relPathKey, info)
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(absSrcPath)
			if err != nil {
				return fmt.Errorf("failed to read link %s: %w", absSrcPath, err)
			}
			m.AddFiles(1)
			return aw.AddSymlink(target, relPathKey, info)
		case info.Mode().IsRegular():
			f, err := secureFileOpen(absSrcPath, info)
			if err != nil {
				return fmt.Errorf("failed to open file %s: %w", absSrcPath, err)
			}
			defer f.Close()
			m.AddFiles(1)
			if _, err := aw.AddFile(&compressMetricReader{r: f, metrics: m}, relPathKey, info, *bufPtr); err != nil {
				return fmt.Errorf("failed to add %s: %w", relPathKey, err)
			}
			return f.Close()
		default:
			plog.Warn("Skipping special file", "file", relPathKey, "mode", info.Mode().String())
			return nil
		}
	})
}

// cleanupStaleTempFiles removes temp archives left behind by crashed runs.
func cleanupStaleTempFiles(dirPath string) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), tempPrefix) && strings.HasSuffix(entry.Name(), ".tmp") {
			plog.Debug("Removing stale temporary archive", "file", entry.Name())
			if err := os.Remove(filepath.Join(dirPath, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
				plog.Warn("Could not remove stale temporary archive", "file", entry.Name(), "error", err)
			}
		}
	}
}
