// Package ssh runs backup tools on remote machines and streams their output.
package ssh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/fgeck/hotbackup/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Service defines the interface for SSH operations.
type Service interface {
	Stream(ctx context.Context, cfg models.SSHConfig, command string, stdout, stderr io.Writer) error
	TestConnection(ctx context.Context, cfg models.SSHConfig) error
}

// SSHClient wraps ssh.Client for mocking.
type SSHClient interface {
	NewSession() (SSHSession, error)
	Close() error
}

// SSHSession wraps ssh.Session for mocking.
type SSHSession interface {
	Run(cmd string, stdout, stderr io.Writer) error
	Close() error
}

// ClientFactory creates SSH clients.
type ClientFactory interface {
	NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error)
}

// DefaultClientFactory is the default SSH client factory.
type DefaultClientFactory struct{}

// NewClient creates a new SSH client.
func (f *DefaultClientFactory) NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
	client, err := ssh.Dial(network, addr, config)
	if err != nil {
		return nil, err
	}
	return &defaultSSHClient{client: client}, nil
}

type defaultSSHClient struct {
	client *ssh.Client
}

func (c *defaultSSHClient) NewSession() (SSHSession, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, err
	}
	return &defaultSSHSession{session: session}, nil
}

func (c *defaultSSHClient) Close() error {
	return c.client.Close()
}

type defaultSSHSession struct {
	session *ssh.Session
}

func (s *defaultSSHSession) Run(cmd string, stdout, stderr io.Writer) error {
	s.session.Stdout = stdout
	s.session.Stderr = stderr
	return s.session.Run(cmd)
}

func (s *defaultSSHSession) Close() error {
	return s.session.Close()
}

// Impl implements the SSH Service interface.
type Impl struct {
	clientFactory ClientFactory
	logger        zerolog.Logger
}

// New creates a new SSH service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		clientFactory: &DefaultClientFactory{},
		logger:        logger,
	}
}

// NewWithClientFactory creates a new SSH service with a custom client factory (for testing).
func NewWithClientFactory(logger zerolog.Logger, factory ClientFactory) *Impl {
	return &Impl{
		clientFactory: factory,
		logger:        logger,
	}
}

func (s *Impl) buildConfig(cfg models.SSHConfig) (*ssh.ClientConfig, error) {
	var key []byte
	var err error

	// Load private key from file or use provided key
	if len(cfg.PrivateKey) > 0 {
		key = cfg.PrivateKey
	} else if cfg.KeyPath != "" {
		key, err = os.ReadFile(cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key from %s: %w", cfg.KeyPath, err)
		}
	} else {
		return nil, fmt.Errorf("no private key provided")
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey() //nolint:gosec // opt-in verification via known_hosts
	if cfg.KnownHostsFile != "" {
		hostKeyCallback, err = knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts from %s: %w", cfg.KnownHostsFile, err)
		}
	}

	return &ssh.ClientConfig{
		User: cfg.Username,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         30 * time.Second,
	}, nil
}

// connect dials the host, giving up when ctx is done.
func (s *Impl) connect(ctx context.Context, cfg models.SSHConfig) (SSHClient, error) {
	sshConfig, err := s.buildConfig(cfg)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))

	type dialResult struct {
		client SSHClient
		err    error
	}
	clientChan := make(chan dialResult, 1)

	go func() {
		client, err := s.clientFactory.NewClient("tcp", addr, sshConfig)
		clientChan <- dialResult{client, err}
	}()

	select {
	case <-ctx.Done():
		// Close a client that connects after we gave up.
		go func() {
			if res := <-clientChan; res.client != nil {
				_ = res.client.Close()
			}
		}()
		return nil, ctx.Err()
	case res := <-clientChan:
		if res.err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", addr, res.err)
		}
		return res.client, nil
	}
}

// Stream runs command on the remote host, copying its output to stdout and stderr.
// The command's exit status decides success; cancelling ctx tears the session down.
func (s *Impl) Stream(ctx context.Context, cfg models.SSHConfig, command string, stdout, stderr io.Writer) error {
	s.logger.Debug().
		Str("ssh_host", cfg.Host).
		Int("ssh_port", cfg.Port).
		Str("ssh_user", cfg.Username).
		Msg("connecting to remote host")

	client, err := s.connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer func() { _ = session.Close() }()

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command, stdout, stderr)
	}()

	select {
	case <-ctx.Done():
		_ = session.Close()
		_ = client.Close()
		<-done
		return fmt.Errorf("remote command aborted: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("remote command failed: %w", err)
		}
	}

	return nil
}

// TestConnection verifies SSH connectivity without running a backup.
func (s *Impl) TestConnection(ctx context.Context, cfg models.SSHConfig) error {
	var out bytes.Buffer
	if err := s.Stream(ctx, cfg, "echo OK", &out, io.Discard); err != nil {
		return err
	}
	if strings.TrimSpace(out.String()) != "OK" {
		return fmt.Errorf("unexpected test output %q", out.String())
	}
	return nil
}
