// Package ssh provides the SSH and SFTP operations the wizard performs on a new
// server: reachability checks, command execution and small file edits.
package ssh

import (
	"context"
	"os"
	"time"
)

// Transport is an open connection to a server.
type Transport interface {
	// Run executes cmd. A nonzero exit is reported in ExecResult, not as an error.
	Run(ctx context.Context, cmd string) (*ExecResult, error)

	// ReadFile returns the content of path, or an error wrapping os.ErrNotExist.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// WriteFile replaces path with data and sets mode, creating parent directories.
	WriteFile(ctx context.Context, path string, data []byte, mode os.FileMode) error

	Close() error
}

// Dialer opens transports. It is the seam tests replace.
type Dialer interface {
	Dial(ctx context.Context, cfg *Config) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, cfg *Config) (Transport, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, cfg *Config) (Transport, error) { return f(ctx, cfg) }

// ExecResult is the outcome of a remote command.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// TransportError is an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g., "connect", "exec", "sftp")
	Op string

	Err error

	// IsTemporary indicates the operation may succeed when retried
	IsTemporary bool

	// IsAuthError indicates the server rejected the credentials
	IsAuthError bool
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}
