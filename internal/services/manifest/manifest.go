// Package manifest appends artifact records to the backup directory's list.txt.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fgeck/hotbackup/internal/models"
)

// FileName is the manifest file inside the backup directory.
const FileName = "list.txt"

// Writer defines the interface for recording artifacts.
type Writer interface {
	Append(backupDir, artifactPath string) (*models.ManifestEntry, error)
}

// Impl implements Writer on the local filesystem.
type Impl struct{}

// New creates a new manifest writer.
func New() *Impl {
	return &Impl{}
}

// Entry builds the manifest entry for an artifact from its current metadata.
func Entry(artifactPath string) (*models.ManifestEntry, error) {
	info, err := os.Stat(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat artifact %s: %w", artifactPath, err)
	}

	created, err := changeTime(artifactPath, info)
	if err != nil {
		return nil, fmt.Errorf("failed to read change time of %s: %w", artifactPath, err)
	}

	return &models.ManifestEntry{
		Filename:  filepath.Base(artifactPath),
		SizeBytes: info.Size(),
		CreatedAt: created,
	}, nil
}

// Line renders an entry as "filename;size;seconds\n".
func Line(entry *models.ManifestEntry) string {
	return entry.Filename + ";" +
		strconv.FormatInt(entry.SizeBytes, 10) + ";" +
		strconv.FormatFloat(unixSeconds(entry.CreatedAt), 'f', -1, 64) + "\n"
}

// Append writes one line for artifactPath to <backupDir>/list.txt, creating it if needed.
// The line goes out in a single write so a failure never leaves half an entry behind.
func (m *Impl) Append(backupDir, artifactPath string) (*models.ManifestEntry, error) {
	entry, err := Entry(artifactPath)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(backupDir, FileName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644) //nolint:gosec // manifest is not secret
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest %s: %w", path, err)
	}

	if _, err := f.WriteString(Line(entry)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to write manifest %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close manifest %s: %w", path, err)
	}

	return entry, nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}
