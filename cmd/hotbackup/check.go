package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fgeck/hotbackup/internal/models"
	"github.com/fgeck/hotbackup/internal/services/ssh"
)

const sshCheckTimeout = 30 * time.Second

func printSummary(w io.Writer, cfg *models.RunConfig) {
	fmt.Fprintln(w, "Configuration is valid!")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "  Backup dir: %s\n", cfg.BackupDir)
	if cfg.Owner != "" {
		fmt.Fprintf(w, "  Owner: %s\n", cfg.Owner)
	}
	fmt.Fprintf(w, "  Timeout per host: %s\n", cfg.Timeout)
	fmt.Fprintf(w, "  Keep going: %v\n", cfg.KeepGoing)
	if cfg.Compression.Command != "" {
		fmt.Fprintf(w, "  Compression: %s %s\n", cfg.Compression.Command, strings.Join(cfg.Compression.Args, " "))
	} else {
		fmt.Fprintf(w, "  Compression: gzip (level %d)\n", cfg.Compression.Level)
	}
	fmt.Fprintf(w, "  Telegram: %v\n", cfg.Telegram != nil)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Hosts (%d):\n", len(cfg.Hosts))
	for _, h := range cfg.Hosts {
		fmt.Fprintf(w, "  - %s: %s %s@%s:%d", h.Name, h.Engine, h.User, h.Host, h.Port)
		if h.Datadir != "" && h.Engine == models.EngineXtrabackup {
			fmt.Fprintf(w, " %s", h.Datadir)
		}
		fmt.Fprintln(w)
		if h.SSH != nil {
			fmt.Fprintf(w, "      via SSH %s@%s:%d\n", h.SSH.Username, h.SSH.Host, h.SSH.Port)
		}
		if h.WOL != nil {
			fmt.Fprintf(w, "      Wake-on-LAN %s (wait up to %s)\n", h.WOL.MACAddress, h.WOL.Timeout)
		}
	}
}

// checkConnections tries an SSH session to every host that is reached over SSH.
// Hosts with Wake-on-LAN may be asleep, so their failures are only reported.
func checkConnections(ctx context.Context, w io.Writer, cfg *models.RunConfig, sshSvc ssh.Service) error {
	var failed []string
	header := false
	for _, h := range cfg.Hosts {
		if h.SSH == nil {
			continue
		}
		if !header {
			fmt.Fprintln(w)
			fmt.Fprintln(w, "SSH connections:")
			header = true
		}

		checkCtx, cancel := context.WithTimeout(ctx, sshCheckTimeout)
		err := sshSvc.TestConnection(checkCtx, *h.SSH)
		cancel()

		switch {
		case err == nil:
			fmt.Fprintf(w, "  - %s: ok\n", h.Name)
		case h.WOL != nil:
			fmt.Fprintf(w, "  - %s: unreachable, may be asleep (%v)\n", h.Name, err)
		default:
			fmt.Fprintf(w, "  - %s: FAILED (%v)\n", h.Name, err)
			failed = append(failed, h.Name)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("ssh connection failed for: %s", strings.Join(failed, ", "))
	}
	return nil
}
