package pathcompression

import (
	"fmt"
	"io"
	"os"
)

// compressMetricWriter counts the bytes that reach the archive file.
type compressMetricWriter struct {
	w       io.Writer
	metrics Metrics
}

func (mw *compressMetricWriter) Write(p []byte) (n int, err error) {
	n, err = mw.w.Write(p)
	if n > 0 {
		mw.metrics.AddBytesWritten(int64(n))
	}
	return
}

// compressMetricReader counts the bytes read from snapshot files.
type compressMetricReader struct {
	r       io.Reader
	metrics Metrics
}

func (mr *compressMetricReader) Read(p []byte) (n int, err error) {
	n, err = mr.r.Read(p)
	if n > 0 {
		mr.metrics.AddBytesRead(int64(n))
	}
	return
}

// secureFileOpen verifies that the file at path is the one the walk discovered.
// A size change would corrupt a tar header that was already computed.
func secureFileOpen(absFilePath string, expected os.FileInfo) (*os.File, error) {
	f, err := os.Open(absFilePath)
	if err != nil {
		return nil, err
	}

	openedInfo, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat opened file: %w", err)
	}
	if !os.SameFile(expected, openedInfo) {
		f.Close()
		return nil, fmt.Errorf("file changed during compression: %s", absFilePath)
	}
	if openedInfo.Size() != expected.Size() {
		f.Close()
		return nil, fmt.Errorf("file size changed during compression: %s", absFilePath)
	}
	return f, nil
}
