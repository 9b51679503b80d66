// Package backuptool builds invocations of the external hot-backup utilities.
package backuptool

import (
	"fmt"
	"strings"

	"github.com/fgeck/hotbackup/internal/models"
	"github.com/kballard/go-shellquote"
)

// Tool turns a host record into a command that streams a tar archive to stdout.
type Tool interface {
	Command(host models.HostRecord) models.ToolCommand
}

// ForEngine returns the tool for a host's engine.
func ForEngine(engine string) (Tool, error) {
	switch engine {
	case models.EngineXtrabackup, "":
		return &Xtrabackup{}, nil
	case models.EnginePgBasebackup:
		return &PgBasebackup{}, nil
	default:
		return nil, fmt.Errorf("unsupported engine %q", engine)
	}
}

// ShellCommand renders cmd as a single POSIX shell command line, for transports
// that only accept a string (SSH).
func ShellCommand(cmd models.ToolCommand) string {
	words := make([]string, 0, len(cmd.Env)+len(cmd.Args)+2)
	if len(cmd.Env) > 0 {
		words = append(words, "env")
		words = append(words, cmd.Env...)
	}
	words = append(words, cmd.Name)
	words = append(words, cmd.Args...)
	return shellquote.Join(words...)
}

// Redact returns a copy of cmd with credentials masked, for logging.
func Redact(cmd models.ToolCommand) models.ToolCommand {
	out := models.ToolCommand{Name: cmd.Name}
	for _, a := range cmd.Args {
		if strings.HasPrefix(a, "--password=") {
			a = "--password=***"
		}
		out.Args = append(out.Args, a)
	}
	for _, e := range cmd.Env {
		if k, _, ok := strings.Cut(e, "="); ok && strings.Contains(k, "PASSWORD") {
			e = k + "=***"
		}
		out.Env = append(out.Env, e)
	}
	return out
}
