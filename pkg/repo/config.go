package repo

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
)

// Config is the per-repository configuration stored as TOML in .fig/config.
type Config struct {
	User    UserConfig              `toml:"user"`
	Remotes map[string]RemoteConfig `toml:"remotes"`
}

// UserConfig identifies the committer recorded in new commits.
type UserConfig struct {
	Name  string `toml:"name,omitempty"`
	Email string `toml:"email,omitempty"`
}

// RemoteConfig names a sync target: a path to another repository on the
// local filesystem.
type RemoteConfig struct {
	Path string `toml:"path"`
}

func (r *Repo) configPath() string {
	return filepath.Join(r.FigDir, "config")
}

// ReadConfig loads .fig/config. A missing file yields an empty config.
func (r *Repo) ReadConfig() (*Config, error) {
	cfg := &Config{Remotes: make(map[string]RemoteConfig)}

	data, err := os.ReadFile(r.configPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("read config: parse: %w", err)
	}
	if cfg.Remotes == nil {
		cfg.Remotes = make(map[string]RemoteConfig)
	}
	return cfg, nil
}

// WriteConfig atomically rewrites .fig/config.
func (r *Repo) WriteConfig(cfg *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("write config: encode: %w", err)
	}
	return atomicWriteFile(r.FigDir, r.configPath(), buf.Bytes())
}

// SetRemote adds or replaces a named remote.
func (r *Repo) SetRemote(name, path string) error {
	if name == "" {
		return fmt.Errorf("set remote: empty name")
	}
	cfg, err := r.ReadConfig()
	if err != nil {
		return err
	}
	cfg.Remotes[name] = RemoteConfig{Path: path}
	return r.WriteConfig(cfg)
}

// RemoveRemote deletes a named remote; removing an unknown remote is an
// error so typos surface.
func (r *Repo) RemoveRemote(name string) error {
	cfg, err := r.ReadConfig()
	if err != nil {
		return err
	}
	if _, ok := cfg.Remotes[name]; !ok {
		return fmt.Errorf("remove remote: no remote %q", name)
	}
	delete(cfg.Remotes, name)
	return r.WriteConfig(cfg)
}

// RemotePath resolves a remote name to its configured path.
func (r *Repo) RemotePath(name string) (string, error) {
	cfg, err := r.ReadConfig()
	if err != nil {
		return "", err
	}
	rc, ok := cfg.Remotes[name]
	if !ok {
		return "", fmt.Errorf("no remote %q", name)
	}
	return rc.Path, nil
}

// RemoteNames lists configured remotes in sorted order.
func (r *Repo) RemoteNames() ([]string, error) {
	cfg, err := r.ReadConfig()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(cfg.Remotes))
	for name := range cfg.Remotes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DefaultAuthor builds the author string for commits created without an
// explicit author: config [user] first, then the OS user, then "unknown".
func (r *Repo) DefaultAuthor() string {
	cfg, err := r.ReadConfig()
	if err == nil && cfg.User.Name != "" {
		if cfg.User.Email != "" {
			return fmt.Sprintf("%s <%s>", cfg.User.Name, cfg.User.Email)
		}
		return cfg.User.Name
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}
