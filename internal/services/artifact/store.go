// Package artifact manages the backup directory and the per-host staging area.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fgeck/hotbackup/internal/models"
	"github.com/rs/zerolog"
)

const (
	// TempDirName is the staging area inside the backup directory.
	TempDirName = "temp"
	// Extension is appended to every artifact name.
	Extension = ".tar.gz"
)

// Name returns the artifact file name for a host at the run timestamp.
func Name(hostName, timestamp string) string {
	return hostName + "-" + timestamp + Extension
}

// Timestamp formats t the way artifact names expect.
func Timestamp(t time.Time) string {
	return t.Format(models.TimestampFormat)
}

// Staging is a host's private staging directory and the file the pipeline writes.
type Staging struct {
	Dir      string
	Path     string
	Filename string
}

// Store defines the interface for backup directory operations.
type Store interface {
	EnsureDir(backupDir string) (string, error)
	Available(backupDir, filename string) error
	Stage(backupDir, hostName, filename, token string) (*Staging, error)
	Promote(backupDir string, staging *Staging) (string, error)
	Discard(staging *Staging)
}

// Impl implements the artifact Store interface.
type Impl struct {
	logger zerolog.Logger
}

// New creates a new artifact store.
func New(logger zerolog.Logger) *Impl {
	return &Impl{logger: logger}
}

// EnsureDir resolves backupDir to an absolute path and creates it with parents.
// An existing directory is fine.
func (s *Impl) EnsureDir(backupDir string) (string, error) {
	abs, err := filepath.Abs(backupDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve backup directory %s: %w", backupDir, err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil { //nolint:gosec // backups are readable by the owner group
		return "", fmt.Errorf("failed to create backup directory %s: %w", abs, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("failed to stat backup directory %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("backup directory %s is not a directory", abs)
	}

	return abs, nil
}

// Available reports an error when <backupDir>/<filename> is already taken.
func (s *Impl) Available(backupDir, filename string) error {
	target := filepath.Join(backupDir, filename)
	if _, err := os.Lstat(target); err == nil {
		return fmt.Errorf("refusing to overwrite existing artifact %s", target)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check artifact %s: %w", target, err)
	}
	return nil
}

// Stage creates <backupDir>/temp/<hostName>-<token>/ and returns where the artifact goes.
func (s *Impl) Stage(backupDir, hostName, filename, token string) (*Staging, error) {
	dir := filepath.Join(backupDir, TempDirName, hostName+"-"+token)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create staging directory %s: %w", dir, err)
	}

	return &Staging{
		Dir:      dir,
		Path:     filepath.Join(dir, filename),
		Filename: filename,
	}, nil
}

// Promote moves the staged artifact into backupDir. It never replaces an existing
// file. The host's staging directory is removed either way.
func (s *Impl) Promote(backupDir string, staging *Staging) (string, error) {
	defer s.Discard(staging)

	target := filepath.Join(backupDir, staging.Filename)
	if err := s.Available(backupDir, staging.Filename); err != nil {
		return "", err
	}

	if err := os.Rename(staging.Path, target); err != nil {
		return "", fmt.Errorf("failed to move %s to %s: %w", staging.Path, target, err)
	}

	s.logger.Debug().
		Str("from", staging.Path).
		Str("to", target).
		Msg("artifact promoted")

	return target, nil
}

// Discard removes the host's staging directory and then temp/ if nothing else is in it.
func (s *Impl) Discard(staging *Staging) {
	if staging == nil {
		return
	}

	if err := os.RemoveAll(staging.Dir); err != nil {
		s.logger.Warn().Err(err).Str("dir", staging.Dir).Msg("failed to remove staging directory")
		return
	}

	// os.Remove fails on a non-empty directory, which leaves other runs' staging alone.
	_ = os.Remove(filepath.Dir(staging.Dir))
}
