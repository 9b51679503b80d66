package runner

import (
	"fmt"
	"strings"
)

// Step names a per-host stage of a run.
type Step string

// Per-host steps in execution order.
const (
	StepWake      Step = "wake"
	StepBackup    Step = "backup"
	StepPromote   Step = "promote"
	StepManifest  Step = "manifest"
	StepOwnership Step = "ownership"
)

// StepError records which step failed for which host.
type StepError struct {
	Host string
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("host %s: %s failed: %v", e.Host, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Fatal reports whether the failure fails the host. Only manifest updates are best effort.
func (e *StepError) Fatal() bool {
	return e.Step != StepManifest
}

// RunError is returned when at least one host failed or was never attempted.
type RunError struct {
	Failed  []string
	Skipped []string
	// Cause is set when the run was cut short by cancellation.
	Cause error
}

func (e *RunError) Error() string {
	var parts []string
	if len(e.Failed) > 0 {
		parts = append(parts, fmt.Sprintf("%d host(s) failed: %s", len(e.Failed), strings.Join(e.Failed, ", ")))
	}
	if len(e.Skipped) > 0 {
		parts = append(parts, fmt.Sprintf("%d host(s) skipped: %s", len(e.Skipped), strings.Join(e.Skipped, ", ")))
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, "; ")
}

func (e *RunError) Unwrap() error {
	return e.Cause
}
