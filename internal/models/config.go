// Package models contains the data structures used throughout hotbackup.
package models

import "time"

// RunConfig holds the complete configuration for a backup run.
type RunConfig struct {
	Hosts       []HostRecord
	BackupDir   string
	Owner       string        // username owning the artifacts, empty keeps the invoking user
	Timeout     time.Duration // per-host bound on the backup pipeline
	KeepGoing   bool          // continue with the next host after a host failure
	Compression CompressionConfig
	Telegram    *TelegramConfig // nil if not configured
}

// CompressionConfig selects the filter the tar stream is piped through.
type CompressionConfig struct {
	Command string   // external filter (e.g. "pigz"), empty uses the built-in gzip writer
	Args    []string // arguments for Command
	Level   int      // built-in gzip level
}
