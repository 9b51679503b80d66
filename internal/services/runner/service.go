// Package runner backs up every configured database host in order.
package runner

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/fgeck/hotbackup/internal/models"
	"github.com/fgeck/hotbackup/internal/services/artifact"
	"github.com/fgeck/hotbackup/internal/services/compress"
	"github.com/fgeck/hotbackup/internal/services/manifest"
	"github.com/fgeck/hotbackup/internal/services/owner"
	"github.com/fgeck/hotbackup/internal/services/pipeline"
	"github.com/fgeck/hotbackup/internal/services/telegram"
	"github.com/fgeck/hotbackup/internal/services/wol"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// notifyTimeout bounds the Telegram request, which may run after the run context is cancelled.
const notifyTimeout = 30 * time.Second

// Service defines the interface for the backup runner.
type Service interface {
	Run(ctx context.Context, cfg models.RunConfig) (*models.RunSummary, error)
}

// Impl implements the runner Service interface.
type Impl struct {
	pipelineSvc pipeline.Service
	store       artifact.Store
	manifest    manifest.Writer
	ownerSvc    owner.Service
	wolSvc      wol.Service
	telegramSvc telegram.Service
	logger      zerolog.Logger
	now         func() time.Time
	newRunID    func() string
}

// New creates a new runner service.
func New(logger zerolog.Logger, compressor compress.Filter) *Impl {
	return &Impl{
		pipelineSvc: pipeline.New(logger, compressor),
		store:       artifact.New(logger),
		manifest:    manifest.New(),
		ownerSvc:    owner.New(logger),
		wolSvc:      wol.New(logger),
		telegramSvc: telegram.New(logger),
		logger:      logger,
		now:         time.Now,
		newRunID:    func() string { return uuid.NewString() },
	}
}

// NewWithServices creates a new runner service with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	pipelineSvc pipeline.Service,
	store artifact.Store,
	manifestWriter manifest.Writer,
	ownerSvc owner.Service,
	wolSvc wol.Service,
	telegramSvc telegram.Service,
	now func() time.Time,
	newRunID func() string,
) *Impl {
	return &Impl{
		pipelineSvc: pipelineSvc,
		store:       store,
		manifest:    manifestWriter,
		ownerSvc:    ownerSvc,
		wolSvc:      wolSvc,
		telegramSvc: telegramSvc,
		logger:      logger,
		now:         now,
		newRunID:    newRunID,
	}
}

// Run backs up every host in cfg.Hosts in order. All artifacts of a run share one
// timestamp. A failed host ends the run unless cfg.KeepGoing is set; the summary is
// returned in both cases and the error is a *RunError when any host did not succeed.
func (s *Impl) Run(ctx context.Context, cfg models.RunConfig) (*models.RunSummary, error) {
	startTime := s.now()
	summary := &models.RunSummary{
		StartTime: startTime,
	}
	var runErr error

	defer func() {
		summary.Duration = s.now().Sub(startTime)
		if cfg.Telegram != nil {
			s.sendNotification(ctx, *cfg.Telegram, summary, runErr)
		}
	}()

	rc, err := s.prepare(cfg, startTime)
	if err != nil {
		runErr = err
		return nil, err
	}
	summary.Timestamp = rc.Timestamp
	summary.BackupDir = rc.BackupDir

	log := s.logger.With().Str("run_id", rc.RunID).Logger()
	log.Info().
		Str("backup_dir", rc.BackupDir).
		Str("timestamp", rc.Timestamp).
		Int("hosts", len(cfg.Hosts)).
		Bool("keep_going", cfg.KeepGoing).
		Msg("starting backup run")

	for i, host := range cfg.Hosts {
		if ctx.Err() != nil {
			summary.Skipped = hostNames(cfg.Hosts[i:])
			break
		}

		result := s.backupHost(ctx, log, cfg, rc, host)
		summary.Results = append(summary.Results, result)

		if result.Error != nil && !cfg.KeepGoing && i < len(cfg.Hosts)-1 {
			summary.Skipped = hostNames(cfg.Hosts[i+1:])
			log.Warn().
				Strs("skipped", summary.Skipped).
				Msg("aborting run after host failure")
			break
		}
	}

	failed := summary.Failed()
	if len(failed) > 0 || len(summary.Skipped) > 0 {
		re := &RunError{Skipped: summary.Skipped}
		for _, r := range failed {
			re.Failed = append(re.Failed, r.Host)
		}
		if ctx.Err() != nil {
			re.Cause = fmt.Errorf("run cancelled: %w", ctx.Err())
		}
		runErr = re
		return summary, re
	}

	log.Info().
		Int("hosts", len(summary.Results)).
		Dur("duration", s.now().Sub(startTime)).
		Msg("backup run completed successfully")

	return summary, nil
}

// prepare creates the backup directory and fixes the values shared by every host.
func (s *Impl) prepare(cfg models.RunConfig, startTime time.Time) (models.RunContext, error) {
	backupDir, err := s.store.EnsureDir(cfg.BackupDir)
	if err != nil {
		return models.RunContext{}, err
	}

	rc := models.RunContext{
		BackupDir: backupDir,
		Timestamp: artifact.Timestamp(startTime),
		RunID:     s.newRunID(),
	}

	if cfg.Owner != "" {
		o, err := s.ownerSvc.Resolve(cfg.Owner)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("owner", cfg.Owner).
				Msg("cannot resolve owner, artifacts keep the current user's ownership")
		} else {
			rc.Owner = o
			s.logger.Debug().
				Str("owner", o.Username).
				Int("uid", o.UID).
				Int("gid", o.GID).
				Msg("owner resolved")
		}
	}

	return rc, nil
}

//nolint:gocognit,gocyclo // per-host workflow has multiple steps by design
func (s *Impl) backupHost(
	ctx context.Context,
	log zerolog.Logger,
	cfg models.RunConfig,
	rc models.RunContext,
	host models.HostRecord,
) models.HostResult {
	start := s.now()
	result := models.HostResult{Host: host.Name}
	log = log.With().Str("host", host.Name).Logger()

	// record stores err against step and reports whether the host has failed.
	record := func(step Step, err error) bool {
		stepErr := &StepError{Host: host.Name, Step: step, Err: err}
		if !stepErr.Fatal() {
			result.ManifestErr = stepErr
			log.Warn().
				Err(err).
				Str("step", string(step)).
				Msg("step failed, artifact kept")
			return false
		}
		result.FailedStep = string(step)
		result.Error = stepErr
		result.Duration = s.now().Sub(start)
		log.Error().
			Err(err).
			Str("step", string(step)).
			Msg("host backup failed")
		return true
	}
	fail := func(step Step, err error) models.HostResult {
		record(step, err)
		return result
	}

	filename := artifact.Name(host.Name, rc.Timestamp)
	if err := s.store.Available(rc.BackupDir, filename); err != nil {
		return fail(StepBackup, err)
	}

	// Step 0: Wake-on-LAN (if configured)
	if host.WOL != nil {
		target := net.JoinHostPort(host.Host, strconv.Itoa(host.Port))
		wolResult, err := s.wolSvc.Wake(ctx, *host.WOL, target)
		if err != nil {
			return fail(StepWake, err)
		}
		if wolResult.Error != nil {
			return fail(StepWake, wolResult.Error)
		}
		log.Info().
			Dur("wait_duration", wolResult.WaitDuration).
			Msg("host is awake")
	}

	// Step 1: Stage and run the pipeline
	staging, err := s.store.Stage(rc.BackupDir, host.Name, filename, rc.RunID)
	if err != nil {
		return fail(StepBackup, err)
	}

	log.Info().
		Str("engine", host.Engine).
		Str("file", filename).
		Msg("starting backup")

	hostCtx, cancel := ctx, context.CancelFunc(func() {})
	if cfg.Timeout > 0 {
		hostCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
	}
	pipelineResult, err := s.pipelineSvc.Run(hostCtx, host, staging.Path)
	cancel()
	if err == nil && pipelineResult.Error != nil {
		err = pipelineResult.Error
	}
	if err != nil {
		s.store.Discard(staging)
		return fail(StepBackup, err)
	}

	// Step 2: Promote into the backup directory
	artifactPath, err := s.store.Promote(rc.BackupDir, staging)
	if err != nil {
		return fail(StepPromote, err)
	}
	result.ArtifactPath = artifactPath
	result.SizeBytes = pipelineResult.SizeBytes

	// Step 3: Manifest (best effort)
	if entry, err := s.manifest.Append(rc.BackupDir, artifactPath); err != nil {
		if record(StepManifest, err) {
			return result
		}
	} else {
		result.SizeBytes = entry.SizeBytes
	}

	// Step 4: Ownership (if an owner was resolved)
	if rc.Owner != nil {
		if err := s.ownerSvc.Apply(artifactPath, rc.Owner); err != nil && record(StepOwnership, err) {
			return result
		}
	}

	result.Duration = s.now().Sub(start)
	log.Info().
		Str("artifact", artifactPath).
		Int64("size_bytes", result.SizeBytes).
		Dur("duration", result.Duration).
		Msg("host backup completed")

	return result
}

func (s *Impl) sendNotification(
	ctx context.Context,
	cfg models.TelegramConfig,
	summary *models.RunSummary,
	runErr error,
) {
	hostname, _ := os.Hostname()

	msg := models.TelegramMessage{
		Success:   runErr == nil,
		Hostname:  hostname,
		BackupDir: summary.BackupDir,
		StartTime: summary.StartTime,
		Duration:  summary.Duration,
		Hosts:     summary.Results,
		Skipped:   summary.Skipped,
	}
	if runErr != nil && len(summary.Results) == 0 {
		msg.ErrorMessage = runErr.Error()
	}

	// Report even when the run itself was interrupted.
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	result, err := s.telegramSvc.SendNotification(notifyCtx, cfg, msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}
	if result.Error != nil {
		s.logger.Error().Err(result.Error).Msg("failed to send Telegram notification")
		return
	}

	s.logger.Info().Msg("Telegram notification sent")
}

func hostNames(hosts []models.HostRecord) []string {
	names := make([]string, 0, len(hosts))
	for _, h := range hosts {
		names = append(names, h.Name)
	}
	return names
}
