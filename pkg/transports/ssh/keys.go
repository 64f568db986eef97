package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openfroyo/launchpad/pkg/engine"
)

// AuthorizedKeysPath is relative to the login user's home directory.
const AuthorizedKeysPath = ".ssh/authorized_keys"

// MergeAuthorizedKey appends key to an authorized_keys file unless a line with
// the same key type and material is present.
func MergeAuthorizedKey(existing []byte, key string) ([]byte, bool) {
	want := keyMaterial(key)
	for _, line := range strings.Split(string(existing), "\n") {
		if want != "" && keyMaterial(line) == want {
			return existing, false
		}
	}
	out := bytes.TrimRight(existing, "\n")
	if len(out) > 0 {
		out = append(out, '\n')
	}
	out = append(out, strings.TrimSpace(key)...)
	return append(out, '\n'), true
}

// keyMaterial returns "type base64" ignoring options and comments.
func keyMaterial(line string) string {
	fields := strings.Fields(line)
	for i := 0; i+1 < len(fields); i++ {
		if strings.HasPrefix(fields[i], "ssh-") || strings.HasPrefix(fields[i], "ecdsa-") {
			return fields[i] + " " + fields[i+1]
		}
	}
	return ""
}

// InstallAuthorizedKey adds key to the login user's authorized_keys over t.
func InstallAuthorizedKey(ctx context.Context, t Transport, key string) (bool, error) {
	existing, err := t.ReadFile(ctx, AuthorizedKeysPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("read authorized_keys: %w", err)
	}
	merged, added := MergeAuthorizedKey(existing, key)
	if !added {
		return false, nil
	}
	if err := t.WriteFile(ctx, AuthorizedKeysPath, merged, 0o600); err != nil {
		return false, fmt.Errorf("write authorized_keys: %w", err)
	}
	return true, nil
}

// ReachablePoll is the budget WaitReachable uses by default.
var ReachablePoll = engine.PollConfig{MaxAttempts: 30, Delay: engine.Constant(5 * time.Second)}

// WaitReachable polls until cfg accepts a login and runs a trivial command. It
// returns the attempts made; exhausting the budget wraps engine.ErrPollExhausted.
// A rejected login stops polling at once and is returned as is.
func WaitReachable(ctx context.Context, d Dialer, cfg *Config, poll engine.PollConfig) (int, error) {
	var last error
	attempts, err := engine.Poll(ctx, poll, func(ctx context.Context, attempt int) (bool, error) {
		t, err := d.Dial(ctx, cfg)
		if IsAuthError(err) {
			return false, err
		}
		if err != nil {
			last = err
			return false, nil
		}
		defer t.Close()
		res, err := t.Run(ctx, "true")
		if err != nil {
			last = err
			return false, nil
		}
		return res.ExitCode == 0, nil
	})
	if err != nil && last != nil && errors.Is(err, engine.ErrPollExhausted) {
		return attempts, fmt.Errorf("%w: %w", err, last)
	}
	return attempts, err
}
