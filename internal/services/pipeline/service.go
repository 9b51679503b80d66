// Package pipeline streams a backup tool's tar output through compression into a file.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/fgeck/hotbackup/internal/models"
	"github.com/fgeck/hotbackup/internal/services/backuptool"
	"github.com/fgeck/hotbackup/internal/services/compress"
	"github.com/fgeck/hotbackup/internal/services/ssh"
	"github.com/rs/zerolog"
)

// stderrLimit bounds how much tool stderr is kept for error messages.
const stderrLimit = 4096

// Service defines the interface for running a host's backup pipeline.
type Service interface {
	Run(ctx context.Context, host models.HostRecord, outputPath string) (*models.PipelineResult, error)
}

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	Stream(ctx context.Context, env []string, stdout, stderr io.Writer, name string, args ...string) error
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// Stream runs a command with stdout and stderr attached to the given writers.
func (e *DefaultExecutor) Stream(ctx context.Context, env []string, stdout, stderr io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = 10 * time.Second

	return cmd.Run()
}

// Impl implements the pipeline Service interface.
type Impl struct {
	executor   CommandExecutor
	sshSvc     ssh.Service
	compressor compress.Filter
	logger     zerolog.Logger
}

// New creates a new pipeline service.
func New(logger zerolog.Logger, compressor compress.Filter) *Impl {
	return &Impl{
		executor:   &DefaultExecutor{},
		sshSvc:     ssh.New(logger),
		compressor: compressor,
		logger:     logger,
	}
}

// NewWithServices creates a new pipeline service with custom collaborators (for testing).
func NewWithServices(logger zerolog.Logger, executor CommandExecutor, sshSvc ssh.Service, compressor compress.Filter) *Impl {
	return &Impl{
		executor:   executor,
		sshSvc:     sshSvc,
		compressor: compressor,
		logger:     logger,
	}
}

// Run executes the backup tool for host and writes the compressed stream to outputPath.
// Both the tool and the compression stage must succeed; otherwise the partial
// output is removed and the failure is reported in the result.
func (s *Impl) Run(ctx context.Context, host models.HostRecord, outputPath string) (*models.PipelineResult, error) {
	start := time.Now()
	result := &models.PipelineResult{
		OutputPath: outputPath,
	}

	tool, err := backuptool.ForEngine(host.Engine)
	if err != nil {
		return nil, err
	}
	command := tool.Command(host)

	logCmd := backuptool.Redact(command)
	s.logger.Debug().
		Str("host", host.Name).
		Str("tool", logCmd.Name).
		Strs("args", logCmd.Args).
		Bool("remote", host.SSH != nil).
		Str("compressor", s.compressor.Name()).
		Str("output", outputPath).
		Msg("starting backup pipeline")

	output, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600) //nolint:gosec // outputPath is controlled by caller
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	counter := &countingWriter{w: output}
	compressed, err := s.compressor.Wrap(ctx, counter)
	if err != nil {
		_ = output.Close()
		_ = os.Remove(outputPath)
		return nil, err
	}

	stderr := &tailBuffer{limit: stderrLimit}
	var toolErr error
	if host.SSH != nil {
		toolErr = s.sshSvc.Stream(ctx, *host.SSH, backuptool.ShellCommand(command), compressed, stderr)
	} else {
		toolErr = s.executor.Stream(ctx, command.Env, compressed, stderr, command.Name, command.Args...)
	}

	// Close every stage even after a failure so no process is left behind.
	compressErr := compressed.Close()
	fileErr := output.Close()

	if toolErr != nil {
		toolErr = s.describeToolError(ctx, command.Name, toolErr, stderr)
	}
	if compressErr != nil {
		compressErr = fmt.Errorf("compression (%s) failed: %w", s.compressor.Name(), compressErr)
	}
	if fileErr != nil {
		fileErr = fmt.Errorf("failed to close output file: %w", fileErr)
	}

	result.Duration = time.Since(start)
	if stageErr := errors.Join(toolErr, compressErr, fileErr); stageErr != nil {
		_ = os.Remove(outputPath)
		result.Error = stageErr
		return result, nil //nolint:nilerr // error is stored in result struct by design
	}

	result.SizeBytes = counter.n
	if info, err := os.Stat(outputPath); err == nil {
		result.SizeBytes = info.Size()
	}

	s.logger.Debug().
		Str("host", host.Name).
		Int64("size_bytes", result.SizeBytes).
		Dur("duration", result.Duration).
		Msg("backup pipeline completed")

	return result, nil
}

func (s *Impl) describeToolError(ctx context.Context, name string, err error, stderr *tailBuffer) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return fmt.Errorf("%s timed out: %w", name, ctxErr)
		}
		return fmt.Errorf("%s cancelled: %w", name, ctxErr)
	}

	msg := strings.TrimSpace(stderr.String())
	if msg == "" {
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return fmt.Errorf("%s failed: %w: %s", name, err, msg)
}

// countingWriter counts bytes written through it.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
