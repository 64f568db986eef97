package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// Client is a Transport over one SSH connection.
type Client struct {
	config *Config
	client *ssh.Client
	logger zerolog.Logger
}

// NetDialer dials real servers.
type NetDialer struct {
	Logger zerolog.Logger
}

// Dial implements Dialer.
func (d NetDialer) Dial(ctx context.Context, cfg *Config) (Transport, error) {
	return Connect(ctx, cfg, d.Logger)
}

// Connect dials cfg and completes the SSH handshake within ctx.
func Connect(ctx context.Context, cfg *Config, logger zerolog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	clientConfig, err := cfg.BuildSSHClientConfig()
	if err != nil {
		return nil, &TransportError{Op: "connect", Err: err, IsAuthError: true}
	}

	address := cfg.Address()
	logger = logger.With().Str("component", "ssh").Str("address", address).Logger()
	logger.Debug().Str("user", cfg.User).Str("auth", string(cfg.AuthMethod)).Msg("establishing SSH connection")

	dialer := net.Dialer{Timeout: cfg.ConnectionTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &TransportError{Op: "connect", Err: err, IsTemporary: true}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(cfg.ConnectionTimeout))
	}

	ncc, chans, reqs, err := ssh.NewClientConn(conn, address, clientConfig)
	if err != nil {
		_ = conn.Close()
		return nil, &TransportError{Op: "connect", Err: err, IsTemporary: !isAuthFailure(err), IsAuthError: isAuthFailure(err)}
	}
	_ = conn.SetDeadline(time.Time{})

	logger.Info().Msg("SSH connection established")
	return &Client{config: cfg, client: ssh.NewClient(ncc, chans, reqs), logger: logger}, nil
}

func isAuthFailure(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}

// IsAuthError reports whether err is a rejected login.
func IsAuthError(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.IsAuthError
}

// Run implements Transport.
func (c *Client) Run(ctx context.Context, cmd string) (*ExecResult, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, &TransportError{Op: "exec", Err: fmt.Errorf("failed to create session: %w", err), IsTemporary: true}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	var runErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		return nil, &TransportError{Op: "exec", Err: ctx.Err()}
	case runErr = <-done:
	}

	res := &ExecResult{
		Stdout:   strings.TrimSpace(stdout.String()),
		Stderr:   strings.TrimSpace(stderr.String()),
		Duration: time.Since(start),
	}
	c.logger.Debug().Int("stdout_len", len(res.Stdout)).Dur("duration", res.Duration).Err(runErr).Msg("command completed")

	var exitErr *ssh.ExitError
	switch {
	case runErr == nil:
	case errors.As(runErr, &exitErr):
		res.ExitCode = exitErr.ExitStatus()
	default:
		return nil, &TransportError{Op: "exec", Err: runErr, IsTemporary: true}
	}
	return res, nil
}

// Close implements Transport.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return &TransportError{Op: "disconnect", Err: err}
	}
	return nil
}
