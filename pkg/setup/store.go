package setup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// AppName names the per-user configuration and state directories.
	AppName = "launchpad"

	settingsFile  = "settings.yaml"
	referenceFile = "reference.md"

	dirPerm  = 0o700
	filePerm = 0o600
)

// Paths locates the files a run reads and writes.
type Paths struct {
	ConfigDir string
	StateDir  string
}

// DefaultPaths resolves the XDG config and state directories for the current user.
func DefaultPaths() Paths {
	home, _ := os.UserHomeDir()
	return Paths{
		ConfigDir: filepath.Join(envOr("XDG_CONFIG_HOME", filepath.Join(home, ".config")), AppName),
		StateDir:  filepath.Join(envOr("XDG_STATE_HOME", filepath.Join(home, ".local", "state")), AppName),
	}
}

// WithConfigDir overrides the config directory; the state directory follows it.
func (p Paths) WithConfigDir(dir string) Paths {
	if dir == "" {
		return p
	}
	return Paths{ConfigDir: dir, StateDir: filepath.Join(dir, "state")}
}

// Settings is the path of the persisted context.
func (p Paths) Settings() string { return filepath.Join(p.ConfigDir, settingsFile) }

// Reference is the path of the human-oriented reference document.
func (p Paths) Reference() string { return filepath.Join(p.ConfigDir, referenceFile) }

// Journal is the path of the run journal database.
func (p Paths) Journal() string { return filepath.Join(p.StateDir, "journal.db") }

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// FileStore persists a Context as YAML.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the settings file location.
func (s *FileStore) Path() string { return s.path }

// Load reads the saved context. A missing file yields (nil, nil).
func (s *FileStore) Load() (*Context, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	var saved Context
	if err := yaml.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("failed to parse settings %s: %w", s.path, err)
	}
	return &saved, nil
}

// Save writes the context atomically with owner-only permissions.
func (s *FileStore) Save(c *Context) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
