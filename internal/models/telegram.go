package models

import "time"

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// TelegramMessage holds the data for a run notification.
type TelegramMessage struct {
	Success   bool
	Hostname  string
	BackupDir string
	StartTime time.Time
	Duration  time.Duration

	Hosts   []HostResult
	Skipped []string

	// Set when the run failed before any host was processed.
	ErrorMessage string
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	Error       error
}
