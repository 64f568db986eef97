package ssh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openfroyo/launchpad/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func TestConfigValidate(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id")
	require.NoError(t, os.WriteFile(keyPath, []byte("key"), 0o600))

	valid := &Config{
		Host:              "203.0.113.10",
		Port:              22,
		User:              "root",
		AuthMethod:        AuthMethodKey,
		PrivateKeyPath:    keyPath,
		ConnectionTimeout: time.Second,
	}
	require.NoError(t, valid.Validate())
	assert.Equal(t, "203.0.113.10:22", valid.Address())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"missing host", func(c *Config) { c.Host = "" }, "host is required"},
		{"bad port", func(c *Config) { c.Port = 70000 }, "invalid port"},
		{"missing user", func(c *Config) { c.User = "" }, "user is required"},
		{"missing key file", func(c *Config) { c.PrivateKeyPath = keyPath + ".nope" }, "not found"},
		{"empty password", func(c *Config) { c.AuthMethod = AuthMethodPassword }, "password is required"},
		{"unknown auth", func(c *Config) { c.AuthMethod = "agent" }, "unsupported auth method"},
		{"zero timeout", func(c *Config) { c.ConnectionTimeout = 0 }, "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *valid
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	pw := valid.WithPassword("s3cret")
	assert.NoError(t, pw.Validate())
	assert.Equal(t, AuthMethodKey, valid.AuthMethod, "WithPassword must not modify the receiver")
}

func newHostKey(t *testing.T) ssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	key, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return key
}

func TestTrustOnFirstUse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ssh", "known_hosts")
	cb, err := TrustOnFirstUse(path)
	require.NoError(t, err)

	addr := &net.TCPAddr{IP: net.ParseIP("203.0.113.10"), Port: 22}
	first := newHostKey(t)

	require.NoError(t, cb("203.0.113.10:22", addr, first), "unknown host is trusted")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "\n"))
	assert.Contains(t, string(data), "203.0.113.10")

	require.NoError(t, cb("203.0.113.10:22", addr, first), "recorded key is accepted")
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "\n"), "known key is not appended twice")

	assert.Error(t, cb("203.0.113.10:22", addr, newHostKey(t)), "changed key is rejected")
}

func TestMergeAuthorizedKey(t *testing.T) {
	const key = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIK0 launchpad"

	out, added := MergeAuthorizedKey(nil, key)
	assert.True(t, added)
	assert.Equal(t, key+"\n", string(out))

	existing := []byte("ssh-rsa AAAAB3Nza other\n\n")
	out, added = MergeAuthorizedKey(existing, key)
	assert.True(t, added)
	assert.Equal(t, "ssh-rsa AAAAB3Nza other\n"+key+"\n", string(out))

	withOptions := []byte(`no-pty,command="x" ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIK0 another-comment` + "\n")
	out, added = MergeAuthorizedKey(withOptions, key)
	assert.False(t, added)
	assert.Equal(t, withOptions, out)
}

type memTransport struct {
	files   map[string][]byte
	modes   map[string]os.FileMode
	exit    int
	closed  int
	readErr error
}

func (m *memTransport) Run(context.Context, string) (*ExecResult, error) {
	return &ExecResult{ExitCode: m.exit}, nil
}

func (m *memTransport) ReadFile(_ context.Context, p string) ([]byte, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	data, ok := m.files[p]
	if !ok {
		return nil, &TransportError{Op: "sftp-read", Err: os.ErrNotExist}
	}
	return data, nil
}

func (m *memTransport) WriteFile(_ context.Context, p string, data []byte, mode os.FileMode) error {
	if m.files == nil {
		m.files = map[string][]byte{}
		m.modes = map[string]os.FileMode{}
	}
	m.files[p] = data
	m.modes[p] = mode
	return nil
}

func (m *memTransport) Close() error {
	m.closed++
	return nil
}

func TestInstallAuthorizedKey(t *testing.T) {
	ctx := context.Background()
	const key = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIK0 launchpad"
	mt := &memTransport{}

	added, err := InstallAuthorizedKey(ctx, mt, key)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, os.FileMode(0o600), mt.modes[AuthorizedKeysPath])

	added, err = InstallAuthorizedKey(ctx, mt, key)
	require.NoError(t, err)
	assert.False(t, added)

	_, err = InstallAuthorizedKey(ctx, &memTransport{readErr: errors.New("permission denied")}, key)
	assert.ErrorContains(t, err, "permission denied")
}

func TestWaitReachable(t *testing.T) {
	ctx := context.Background()
	cfg := &Config{Host: "203.0.113.10", Port: 22}
	poll := engine.PollConfig{MaxAttempts: 4, Delay: engine.Constant(time.Second), Sleep: engine.NoSleep}

	t.Run("succeeds once the server answers", func(t *testing.T) {
		mt := &memTransport{}
		calls := 0
		d := DialerFunc(func(context.Context, *Config) (Transport, error) {
			calls++
			if calls < 3 {
				return nil, &TransportError{Op: "connect", Err: errors.New("connection refused"), IsTemporary: true}
			}
			return mt, nil
		})
		attempts, err := WaitReachable(ctx, d, cfg, poll)
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
		assert.Equal(t, 1, mt.closed)
	})

	t.Run("exhaustion reports the last cause", func(t *testing.T) {
		d := DialerFunc(func(context.Context, *Config) (Transport, error) {
			return nil, errors.New("i/o timeout")
		})
		attempts, err := WaitReachable(ctx, d, cfg, poll)
		require.Error(t, err)
		assert.Equal(t, 4, attempts)
		assert.ErrorIs(t, err, engine.ErrPollExhausted)
		assert.ErrorContains(t, err, "i/o timeout")
	})

	t.Run("rejected login stops at once", func(t *testing.T) {
		d := DialerFunc(func(context.Context, *Config) (Transport, error) {
			return nil, &TransportError{Op: "connect", Err: errors.New("unable to authenticate"), IsAuthError: true}
		})
		attempts, err := WaitReachable(ctx, d, cfg, poll)
		assert.Equal(t, 1, attempts)
		assert.True(t, IsAuthError(err))
		assert.NotErrorIs(t, err, engine.ErrPollExhausted)
	})

	t.Run("nonzero exit keeps polling", func(t *testing.T) {
		mt := &memTransport{exit: 1}
		d := DialerFunc(func(context.Context, *Config) (Transport, error) { return mt, nil })
		_, err := WaitReachable(ctx, d, cfg, poll)
		assert.ErrorIs(t, err, engine.ErrPollExhausted)
		assert.Equal(t, 4, mt.closed)
	})
}

func TestTransportErrorClassification(t *testing.T) {
	err := error(&TransportError{Op: "connect", Err: errors.New("unable to authenticate"), IsAuthError: true})
	assert.True(t, IsAuthError(err))
	assert.False(t, engine.IsRetryable(err))

	temp := &TransportError{Op: "connect", Err: errors.New("refused"), IsTemporary: true}
	assert.True(t, temp.Temporary())
	assert.Equal(t, "connect: refused", temp.Error())
}
