// Package config loads the per-user settings file and supplies the model API
// key at request time.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/amirbrooks/quicktask/internal/fsutil"
)

const (
	FileName     = "config.yaml"
	EnvRoot      = "QUICKTASK_ROOT"
	EnvAPIKey    = "GEMINI_API_KEY"
	BackendFile  = "file"
	BackendSQL   = "sqlite"
	DefaultModel = "gemini-2.5-flash"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	APIKey       string        `yaml:"api_key,omitempty" json:"-"`
	Model        string        `yaml:"model,omitempty" json:"model"`
	BaseURL      string        `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Backend      string        `yaml:"backend,omitempty" json:"backend"`
	ArchiveDelay time.Duration `yaml:"archive_delay,omitempty" json:"archive_delay"`
	RetryBase    time.Duration `yaml:"retry_base,omitempty" json:"retry_base"`
	LogLevel     string        `yaml:"log_level,omitempty" json:"log_level"`
}

func defaultConfig() Config {
	return Config{
		Model:        DefaultModel,
		Backend:      BackendFile,
		ArchiveDelay: 1200 * time.Millisecond,
		RetryBase:    time.Second,
		LogLevel:     "info",
	}
}

// withDefaults fills every unset field from defaultConfig.
func (c Config) withDefaults() Config {
	d := defaultConfig()
	if strings.TrimSpace(c.Model) == "" {
		c.Model = d.Model
	}
	if strings.TrimSpace(c.Backend) == "" {
		c.Backend = d.Backend
	}
	if c.ArchiveDelay == 0 {
		c.ArchiveDelay = d.ArchiveDelay
	}
	if c.RetryBase <= 0 {
		c.RetryBase = d.RetryBase
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = d.LogLevel
	}
	return c
}

func (c Config) validate() error {
	switch c.Backend {
	case "", BackendFile, BackendSQL:
	default:
		return fmt.Errorf("%w: backend %q (want %s|%s)", ErrInvalid, c.Backend, BackendFile, BackendSQL)
	}
	return nil
}

// ResolveRoot picks the data directory: the flag value, then $QUICKTASK_ROOT,
// then ~/.quicktask.
func ResolveRoot(flagValue string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return fsutil.ExpandHome(v)
	}
	if env := strings.TrimSpace(os.Getenv(EnvRoot)); env != "" {
		return fsutil.ExpandHome(env)
	}
	home, _ := os.UserHomeDir()
	if home != "" {
		return filepath.Join(home, ".quicktask")
	}
	return ".quicktask"
}

// Manager holds the loaded settings. It is safe for concurrent use.
type Manager struct {
	root string

	mu   sync.RWMutex
	file Config
}

// Load reads <root>/config.yaml. A missing file yields the defaults.
func Load(root string) (*Manager, error) {
	m := &Manager{root: root}
	b, err := os.ReadFile(m.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, FileName, err)
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	m.file = cfg
	return m, nil
}

func (m *Manager) Root() string { return m.root }

func (m *Manager) Path() string { return filepath.Join(m.root, FileName) }

// Config returns the effective settings, including an API key taken from the
// environment when the file has none.
func (m *Manager) Config() Config {
	m.mu.RLock()
	cfg := m.file
	m.mu.RUnlock()
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.APIKey) == "" {
		cfg.APIKey = strings.TrimSpace(os.Getenv(EnvAPIKey))
	}
	return cfg
}

// APIKey returns the current credential, or "" when none is configured.
func (m *Manager) APIKey() string {
	return m.Config().APIKey
}

// KeySource reports where APIKey comes from: "config", "env" or "".
func (m *Manager) KeySource() string {
	m.mu.RLock()
	fileKey := strings.TrimSpace(m.file.APIKey)
	m.mu.RUnlock()
	switch {
	case fileKey != "":
		return "config"
	case strings.TrimSpace(os.Getenv(EnvAPIKey)) != "":
		return "env"
	default:
		return ""
	}
}

// SetAPIKey stores key in the config file. An empty key clears it.
func (m *Manager) SetAPIKey(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.file
	next.APIKey = strings.TrimSpace(key)
	if err := m.saveLocked(next); err != nil {
		return err
	}
	m.file = next
	return nil
}

func (m *Manager) saveLocked(cfg Config) error {
	b, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	// The file may hold a credential.
	return fsutil.AtomicWriteFile(m.Path(), b, 0o600)
}

// MaskKey hides all but the last four characters of key.
func MaskKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
