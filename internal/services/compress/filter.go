// Package compress provides the compression stage of the backup pipeline.
package compress

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/fgeck/hotbackup/internal/models"
	"github.com/klauspost/compress/gzip"
)

// Filter wraps a destination so that bytes written are compressed into it.
// Close flushes the stream and reports any failure of the compression stage.
type Filter interface {
	Wrap(ctx context.Context, dst io.Writer) (io.WriteCloser, error)
	Name() string
}

// New returns the filter described by cfg.
func New(cfg models.CompressionConfig) Filter {
	if cfg.Command != "" {
		return &ExternalFilter{Command: cfg.Command, Args: cfg.Args}
	}
	return &GzipFilter{Level: cfg.Level}
}

// GzipFilter compresses in-process.
type GzipFilter struct {
	Level int
}

// Name returns the filter name.
func (g *GzipFilter) Name() string {
	return "gzip"
}

// Wrap returns a gzip writer on dst.
func (g *GzipFilter) Wrap(_ context.Context, dst io.Writer) (io.WriteCloser, error) {
	level := g.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	w, err := gzip.NewWriterLevel(dst, level)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	return w, nil
}

// ExternalFilter pipes the stream through a separate process (gzip, pigz, ...).
type ExternalFilter struct {
	Command string
	Args    []string
}

// Name returns the filter command.
func (e *ExternalFilter) Name() string {
	return e.Command
}

// Wrap starts the filter process with stdout on dst.
func (e *ExternalFilter) Wrap(ctx context.Context, dst io.Writer) (io.WriteCloser, error) {
	cmd := exec.CommandContext(ctx, e.Command, e.Args...)
	cmd.Stdout = dst
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe for %s: %w", e.Command, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", e.Command, err)
	}

	return &processWriter{cmd: cmd, stdin: stdin, stderr: stderr}, nil
}

type processWriter struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *bytes.Buffer
}

func (p *processWriter) Write(b []byte) (int, error) {
	return p.stdin.Write(b)
}

// Close ends the input and waits for the process; a non-zero exit is an error.
func (p *processWriter) Close() error {
	_ = p.stdin.Close()
	if err := p.cmd.Wait(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", p.cmd.Path, err, strings.TrimSpace(p.stderr.String()))
	}
	return nil
}
