package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fgeck/hotbackup/internal/config"
	"github.com/fgeck/hotbackup/internal/models"
	"github.com/fgeck/hotbackup/internal/services/compress"
	"github.com/fgeck/hotbackup/internal/services/runner"
	"github.com/fgeck/hotbackup/internal/services/ssh"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func loadConfig(cmd *cobra.Command) (*models.RunConfig, error) {
	parser := config.NewParser()
	if err := parser.BindFlags(cmd.Flags()); err != nil {
		return nil, err
	}

	cfg, err := parser.LoadFile(hostFile)
	if err != nil {
		log.Error().Err(err).Str("file", hostFile).Msg("failed to load host file")
		return nil, err
	}

	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return nil, err
	}

	return cfg, nil
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if checkOnly {
		printSummary(cmd.OutOrStdout(), cfg)
		return checkConnections(cmd.Context(), cmd.OutOrStdout(), cfg, ssh.New(log.Logger))
	}

	log.Info().
		Str("hostfile", hostFile).
		Str("backup_dir", cfg.BackupDir).
		Int("hosts", len(cfg.Hosts)).
		Msg("configuration loaded")

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	runnerSvc := runner.New(log.Logger, compress.New(cfg.Compression))
	summary, err := runnerSvc.Run(ctx, *cfg)
	if err != nil {
		log.Error().Err(err).Msg("backup failed")
		return err
	}

	log.Info().
		Int("hosts", len(summary.Results)).
		Dur("duration", summary.Duration).
		Msg("backup completed successfully")

	fmt.Fprintln(cmd.OutOrStdout(), "Done")
	return nil
}
