// Package metafile reads and writes the per-repository backup record.
package metafile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/paulschiretz/pgl-svnbackup/pkg/util"
)

// MetaFileName is the name of the metadata file inside a repository's backup folder.
// It is neither a snapshot nor an archive and retention never touches it.
const MetaFileName = ".pgl-svnbackup.meta.json"

// Artifact names the form in which the last revision is retained.
type Artifact string

const (
	ArtifactSnapshot Artifact = "snapshot"
	ArtifactArchive  Artifact = "archive"
)

// MetafileContent holds the contents of the metadata file.
type MetafileContent struct {
	Version           string    `json:"version"`
	Repository        string    `json:"repository"`
	SourcePath        string    `json:"sourcePath"`
	Revision          int64     `json:"revision"`
	Tag               string    `json:"tag"`
	Artifact          Artifact  `json:"artifact"`
	CompressionFormat string    `json:"compressionFormat,omitempty"`
	TimestampUTC      time.Time `json:"timestampUTC"`
}

// Write replaces the metadata file in dirPath. The content is written to a
// temporary file first so a crash never leaves a truncated record.
func Write(dirPath string, content *MetafileContent) error {
	metaFilePath := filepath.Join(dirPath, MetaFileName)
	jsonData, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal meta data: %w", err)
	}

	tmp, err := os.CreateTemp(dirPath, MetaFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("could not create meta file in %s: %w", dirPath, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(jsonData); err != nil {
		tmp.Close()
		return fmt.Errorf("could not write meta file %s: %w", metaFilePath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not write meta file %s: %w", metaFilePath, err)
	}
	// Group-writable: the record belongs to the backup data, not to the tool's config.
	if err := os.Chmod(tmp.Name(), util.UserGroupWritableFilePerms); err != nil {
		return fmt.Errorf("could not set permissions on meta file %s: %w", metaFilePath, err)
	}
	if err := os.Rename(tmp.Name(), metaFilePath); err != nil {
		return fmt.Errorf("could not write meta file %s: %w", metaFilePath, err)
	}
	return nil
}

// Read parses the metadata file in dirPath. A missing file yields an error
// for which os.IsNotExist is true.
func Read(dirPath string) (MetafileContent, error) {
	metaFilePath := filepath.Join(dirPath, MetaFileName)
	metaFile, err := os.Open(metaFilePath)
	if err != nil {
		return MetafileContent{}, err
	}
	defer metaFile.Close()

	var content MetafileContent
	if err := json.NewDecoder(metaFile).Decode(&content); err != nil {
		return MetafileContent{}, fmt.Errorf("could not parse metafile %s: %w. It may be corrupt", metaFilePath, err)
	}
	return content, nil
}
