package models

import "time"

// TimestampFormat is the layout of the per-run timestamp (YYYYMMDD-HHMMSS).
const TimestampFormat = "20060102-150405"

// Owner is a resolved target owner for artifact files.
type Owner struct {
	Username string
	UID      int
	GID      int
}

// RunContext holds the values shared by every host in a run.
type RunContext struct {
	BackupDir string
	Timestamp string
	RunID     string
	Owner     *Owner // nil keeps the invoking process's identity
}

// PipelineResult holds the result of one backup-and-compress pipeline.
type PipelineResult struct {
	OutputPath string
	SizeBytes  int64
	Duration   time.Duration
	Error      error
}

// ManifestEntry is one line of the backup manifest.
type ManifestEntry struct {
	Filename  string
	SizeBytes int64
	CreatedAt time.Time
}

// HostResult holds the outcome of backing up a single host.
type HostResult struct {
	Host         string
	ArtifactPath string
	SizeBytes    int64
	Duration     time.Duration
	FailedStep   string
	Error        error
	ManifestErr  error // non-fatal
}

// RunSummary aggregates the outcome of a run.
type RunSummary struct {
	Timestamp string
	BackupDir string
	StartTime time.Time
	Duration  time.Duration
	Results   []HostResult
	Skipped   []string // hosts left unprocessed after an aborting failure
}

// Failed returns the results of hosts that failed.
func (s *RunSummary) Failed() []HostResult {
	var failed []HostResult
	for _, r := range s.Results {
		if r.Error != nil {
			failed = append(failed, r)
		}
	}
	return failed
}
