package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/fgeck/hotbackup/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSSHService struct {
	testConnectionFunc func(ctx context.Context, cfg models.SSHConfig) error
}

func (m *mockSSHService) Stream(ctx context.Context, cfg models.SSHConfig, command string, stdout, stderr io.Writer) error {
	return nil
}

func (m *mockSSHService) TestConnection(ctx context.Context, cfg models.SSHConfig) error {
	if m.testConnectionFunc != nil {
		return m.testConnectionFunc(ctx, cfg)
	}
	return nil
}

func TestPrintSummary(t *testing.T) {
	cfg := &models.RunConfig{
		BackupDir:   "/srv/backup",
		Owner:       "backup",
		Timeout:     6 * time.Hour,
		Compression: models.CompressionConfig{Level: 6},
		Hosts: []models.HostRecord{
			{Name: "db1", Engine: models.EngineXtrabackup, User: "root", Host: "10.0.0.5", Port: 3306, Datadir: "/var/lib/mysql"},
			{
				Name: "pg1", Engine: models.EnginePgBasebackup, User: "replicator", Host: "10.0.0.6", Port: 5432,
				SSH: &models.SSHConfig{Host: "10.0.0.6", Port: 22, Username: "root"},
				WOL: &models.WOLConfig{MACAddress: "AA:BB:CC:DD:EE:FF", Timeout: 5 * time.Minute},
			},
		},
	}

	var out bytes.Buffer
	printSummary(&out, cfg)

	text := out.String()
	assert.Contains(t, text, "Configuration is valid!")
	assert.Contains(t, text, "Backup dir: /srv/backup")
	assert.Contains(t, text, "Owner: backup")
	assert.Contains(t, text, "gzip (level 6)")
	assert.Contains(t, text, "Hosts (2):")
	assert.Contains(t, text, "db1: xtrabackup root@10.0.0.5:3306 /var/lib/mysql")
	assert.Contains(t, text, "pg1: pg_basebackup replicator@10.0.0.6:5432\n")
	assert.Contains(t, text, "via SSH root@10.0.0.6:22")
	assert.Contains(t, text, "Wake-on-LAN AA:BB:CC:DD:EE:FF (wait up to 5m0s)")
}

func TestPrintSummary_ExternalCompressor(t *testing.T) {
	cfg := &models.RunConfig{
		BackupDir:   "/srv/backup",
		Compression: models.CompressionConfig{Command: "pigz", Args: []string{"-c", "-p", "4"}},
	}

	var out bytes.Buffer
	printSummary(&out, cfg)

	assert.Contains(t, out.String(), "Compression: pigz -c -p 4")
	assert.NotContains(t, out.String(), "Owner:")
}

func TestCheckConnections(t *testing.T) {
	cfg := &models.RunConfig{
		Hosts: []models.HostRecord{
			{Name: "local"},
			{Name: "db1", SSH: &models.SSHConfig{Host: "10.0.0.5", Port: 22, Username: "root"}},
			{Name: "db2", SSH: &models.SSHConfig{Host: "10.0.0.6", Port: 22, Username: "root"}},
			{
				Name: "db3", SSH: &models.SSHConfig{Host: "10.0.0.7", Port: 22, Username: "root"},
				WOL: &models.WOLConfig{MACAddress: "AA:BB:CC:DD:EE:FF"},
			},
		},
	}

	var dialed []string
	sshSvc := &mockSSHService{
		testConnectionFunc: func(ctx context.Context, cfg models.SSHConfig) error {
			dialed = append(dialed, cfg.Host)
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			if cfg.Host == "10.0.0.5" {
				return nil
			}
			return errors.New("connection refused")
		},
	}

	var out bytes.Buffer
	err := checkConnections(context.Background(), &out, cfg, sshSvc)

	require.Error(t, err)
	assert.Equal(t, "ssh connection failed for: db2", err.Error())
	assert.Equal(t, []string{"10.0.0.5", "10.0.0.6", "10.0.0.7"}, dialed)
	text := out.String()
	assert.Contains(t, text, "db1: ok")
	assert.Contains(t, text, "db2: FAILED (connection refused)")
	assert.Contains(t, text, "db3: unreachable, may be asleep")
	assert.NotContains(t, text, "local")
}

func TestCheckConnections_NoSSHHosts(t *testing.T) {
	cfg := &models.RunConfig{Hosts: []models.HostRecord{{Name: "local"}}}
	sshSvc := &mockSSHService{
		testConnectionFunc: func(ctx context.Context, cfg models.SSHConfig) error {
			t.Fatal("no host uses SSH")
			return nil
		},
	}

	var out bytes.Buffer
	require.NoError(t, checkConnections(context.Background(), &out, cfg, sshSvc))
	assert.Empty(t, out.String())
}
