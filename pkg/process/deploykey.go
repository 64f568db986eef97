package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DeployKeyName is the file name of the deploy key under ~/.ssh.
const DeployKeyName = "launchpad_deploy_ed25519"

// DeployKey is a key pair on disk.
type DeployKey struct {
	PrivatePath string
	PublicPath  string
	PublicKey   string
	Generated   bool
}

// DefaultDeployKeyPath returns ~/.ssh/launchpad_deploy_ed25519.
func DefaultDeployKeyPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".ssh", DeployKeyName), nil
}

// EnsureDeployKey returns the key pair at path. When the pair exists, reuse is asked
// whether to keep it; keeping it skips generation. Otherwise any old pair is moved
// aside and ssh-keygen creates a new ed25519 key without a passphrase.
func EnsureDeployKey(ctx context.Context, r Runner, path, comment string, reuse func(path string) (bool, error)) (*DeployKey, error) {
	key := &DeployKey{PrivatePath: path, PublicPath: path + ".pub"}

	if fileExists(key.PrivatePath) && fileExists(key.PublicPath) {
		keep, err := reuse(path)
		if err != nil {
			return nil, err
		}
		if keep {
			return key, key.load()
		}
		for _, p := range []string{key.PrivatePath, key.PublicPath} {
			if err := os.Rename(p, p+".old"); err != nil {
				return nil, fmt.Errorf("move aside %s: %w", p, err)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}
	_, err := RunOrFail(ctx, r, Command{
		Name: "ssh-keygen",
		Args: []string{"-t", "ed25519", "-N", "", "-f", path, "-C", comment},
	})
	if err != nil {
		return nil, fmt.Errorf("generate deploy key: %w", err)
	}
	key.Generated = true
	return key, key.load()
}

func (k *DeployKey) load() error {
	data, err := os.ReadFile(k.PublicPath)
	if err != nil {
		return fmt.Errorf("read public key: %w", err)
	}
	k.PublicKey = strings.TrimSpace(string(data))
	if k.PublicKey == "" {
		return errors.New("public key file is empty")
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
