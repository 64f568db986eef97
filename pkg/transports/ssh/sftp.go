package ssh

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/pkg/sftp"
)

func (c *Client) sftp() (*sftp.Client, error) {
	s, err := sftp.NewClient(c.client)
	if err != nil {
		return nil, &TransportError{Op: "sftp-init", Err: fmt.Errorf("failed to create SFTP client: %w", err), IsTemporary: true}
	}
	return s, nil
}

// ReadFile implements Transport. Relative paths resolve against the login
// user's home directory.
func (c *Client) ReadFile(ctx context.Context, p string) ([]byte, error) {
	s, err := c.sftp()
	if err != nil {
		return nil, err
	}
	defer s.Close()

	f, err := s.Open(p)
	if err != nil {
		return nil, &TransportError{Op: "sftp-read", Err: fmt.Errorf("open %s: %w", p, err)}
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &TransportError{Op: "sftp-read", Err: err, IsTemporary: true}
	}
	return data, ctx.Err()
}

// WriteFile implements Transport.
func (c *Client) WriteFile(ctx context.Context, p string, data []byte, mode os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s, err := c.sftp()
	if err != nil {
		return err
	}
	defer s.Close()

	if dir := path.Dir(p); dir != "." {
		if err := s.MkdirAll(dir); err != nil {
			return &TransportError{Op: "sftp-write", Err: fmt.Errorf("create %s: %w", dir, err)}
		}
	}
	f, err := s.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return &TransportError{Op: "sftp-write", Err: fmt.Errorf("open %s: %w", p, err)}
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return &TransportError{Op: "sftp-write", Err: err, IsTemporary: true}
	}
	if err := f.Close(); err != nil {
		return &TransportError{Op: "sftp-write", Err: err}
	}
	if err := s.Chmod(p, mode); err != nil {
		c.logger.Warn().Err(err).Str("path", p).Msg("failed to set file permissions")
	}
	c.logger.Debug().Str("path", p).Int("bytes", len(data)).Msg("file written")
	return nil
}
