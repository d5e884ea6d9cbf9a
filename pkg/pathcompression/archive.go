package pathcompression

import (
	"archive/tar"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
)

// archiveWriter hides the container format from the walk in Compress.
type archiveWriter interface {
	AddDir(relPath string, info os.FileInfo) error
	AddFile(src io.Reader, relPath string, info os.FileInfo, buf []byte) (int64, error)
	AddSymlink(target, relPath string, info os.FileInfo) error
	Close() error
}

func newArchiveWriter(w io.Writer, format Format, level Level) (archiveWriter, error) {
	switch format {
	case Zip:
		zw := zip.NewWriter(w)
		lvl := level.flateLevel()
		zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, lvl)
		})
		return &zipArchiveWriter{zw: zw}, nil
	case TarGz:
		gw, err := pgzip.NewWriterLevel(w, level.gzipLevel())
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip writer: %w", err)
		}
		return &tarArchiveWriter{tw: tar.NewWriter(gw), compressed: gw}, nil
	case TarZst:
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(level.zstdLevel()))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		return &tarArchiveWriter{tw: tar.NewWriter(zw), compressed: zw}, nil
	default:
		return nil, fmt.Errorf("unsupported compression format: %s", format)
	}
}

type zipArchiveWriter struct {
	zw *zip.Writer
}

func (a *zipArchiveWriter) header(relPath string, info os.FileInfo) (*zip.FileHeader, error) {
	// FileInfoHeader keeps mode and modification time. Non-ASCII names get
	// the UTF-8 flag and oversized entries get zip64 records from the writer.
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return nil, fmt.Errorf("failed to create zip header for %s: %w", relPath, err)
	}
	header.Name = relPath
	return header, nil
}

func (a *zipArchiveWriter) AddDir(relPath string, info os.FileInfo) error {
	header, err := a.header(relPath+"/", info)
	if err != nil {
		return err
	}
	header.Method = zip.Store
	header.UncompressedSize64 = 0
	header.UncompressedSize = 0
	_, err = a.zw.CreateHeader(header)
	return err
}

func (a *zipArchiveWriter) AddFile(src io.Reader, relPath string, info os.FileInfo, buf []byte) (int64, error) {
	header, err := a.header(relPath, info)
	if err != nil {
		return 0, err
	}
	header.Method = zip.Deflate
	w, err := a.zw.CreateHeader(header)
	if err != nil {
		return 0, fmt.Errorf("failed to write zip header for %s: %w", relPath, err)
	}
	return io.CopyBuffer(w, src, buf)
}

func (a *zipArchiveWriter) AddSymlink(target, relPath string, info os.FileInfo) error {
	header, err := a.header(relPath, info)
	if err != nil {
		return err
	}
	// Link targets are stored, not compressed.
	header.Method = zip.Store
	w, err := a.zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = w.Write([]byte(target))
	return err
}

func (a *zipArchiveWriter) Close() error {
	if err := a.zw.Close(); err != nil {
		return fmt.Errorf("zip writer close failed: %w", err)
	}
	return nil
}

type tarArchiveWriter struct {
	tw         *tar.Writer
	compressed io.WriteCloser
}

func (a *tarArchiveWriter) AddDir(relPath string, info os.FileInfo) error {
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("failed to create tar header for %s: %w", relPath, err)
	}
	header.Name = relPath + "/"
	return a.tw.WriteHeader(header)
}

func (a *tarArchiveWriter) AddFile(src io.Reader, relPath string, info os.FileInfo, buf []byte) (int64, error) {
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return 0, fmt.Errorf("failed to create tar header for %s: %w", relPath, err)
	}
	header.Name = relPath
	if err := a.tw.WriteHeader(header); err != nil {
		return 0, fmt.Errorf("failed to write tar header for %s: %w", relPath, err)
	}
	return io.CopyBuffer(a.tw, src, buf)
}

func (a *tarArchiveWriter) AddSymlink(target, relPath string, info os.FileInfo) error {
	header, err := tar.FileInfoHeader(info, target)
	if err != nil {
		return fmt.Errorf("failed to create tar header for %s: %w", relPath, err)
	}
	header.Name = relPath
	return a.tw.WriteHeader(header)
}

// Close finalizes the tar stream first, then the compressor beneath it.
func (a *tarArchiveWriter) Close() error {
	if err := a.tw.Close(); err != nil {
		return fmt.Errorf("tar writer close failed: %w", err)
	}
	if err := a.compressed.Close(); err != nil {
		return fmt.Errorf("compressed writer close failed: %w", err)
	}
	return nil
}
