// Package config loads crewclock settings from defaults, an optional TOML
// file and CREWCLOCK_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default data directory name under the home directory
	ConfigDir = ".crewclock"
	// ConfigFile is the default config file name inside the data directory
	ConfigFile = "config.toml"
	// EnvPrefix prefixes every environment override
	EnvPrefix = "CREWCLOCK"
)

// Config holds every runtime setting
type Config struct {
	DataDir   string `toml:"data_dir" envconfig:"DATA_DIR"`
	DBPath    string `toml:"db_path" envconfig:"DB_PATH"`
	QueueFile string `toml:"queue_file" envconfig:"QUEUE_FILE"`
	InboxDir  string `toml:"inbox_dir" envconfig:"INBOX_DIR"`

	// Remote is either an http(s) URL of a record service or the path of
	// a shared SQLite record store.
	Remote     string `toml:"remote" envconfig:"REMOTE"`
	Zone       string `toml:"zone" envconfig:"ZONE"`
	LinkScheme string `toml:"link_scheme" envconfig:"LINK_SCHEME"`

	DrainInterval  Duration `toml:"drain_interval" envconfig:"DRAIN_INTERVAL"`
	ProbeInterval  Duration `toml:"probe_interval" envconfig:"PROBE_INTERVAL"`
	StartTimeout   Duration `toml:"start_timeout" envconfig:"START_TIMEOUT"`
	RequestTimeout Duration `toml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`

	LogFile  string `toml:"log_file" envconfig:"LOG_FILE"`
	LogLevel string `toml:"log_level" envconfig:"LOG_LEVEL"`

	ServerAddr string `toml:"server_addr" envconfig:"SERVER_ADDR"`
	ServerDB   string `toml:"server_db" envconfig:"SERVER_DB"`
}

// Duration lets TOML and env values use Go duration strings ("5m", "30s")
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for toml and envconfig
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in settings rooted at dataDir
func Default(dataDir string) *Config {
	return &Config{
		DataDir:        dataDir,
		DBPath:         filepath.Join(dataDir, "crewclock.db"),
		QueueFile:      filepath.Join(dataDir, "pending_uploads.json"),
		InboxDir:       filepath.Join(dataDir, "inbox"),
		Remote:         filepath.Join(dataDir, "remote.db"),
		Zone:           "groups",
		LinkScheme:     "crewclock",
		DrainInterval:  Duration{5 * time.Minute},
		ProbeInterval:  Duration{10 * time.Second},
		StartTimeout:   Duration{2 * time.Second},
		RequestTimeout: Duration{30 * time.Second},
		LogLevel:       "info",
		ServerAddr:     "127.0.0.1:7420",
		ServerDB:       filepath.Join(dataDir, "server.db"),
	}
}

// DefaultDataDir returns ~/.crewclock, or CREWCLOCK_HOME when set
func DefaultDataDir() (string, error) {
	if h := strings.TrimSpace(os.Getenv(EnvPrefix + "_HOME")); h != "" {
		return h, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir), nil
}

// Load builds the effective config. path may be empty, in which case the
// default config file is read if it exists.
func Load(path string) (*Config, error) {
	dataDir, err := DefaultDataDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	cfg := Default(dataDir)

	explicit := path != ""
	if !explicit {
		path = filepath.Join(dataDir, ConfigFile)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if !errors.Is(err, os.ErrNotExist) || explicit {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	// Paths left at their defaults follow a relocated data dir
	if cfg.DataDir != dataDir {
		cfg.rebase(dataDir)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// rebase moves every path that still points into oldDir under DataDir
func (c *Config) rebase(oldDir string) {
	move := func(p *string) {
		if rel, err := filepath.Rel(oldDir, *p); err == nil && !strings.HasPrefix(rel, "..") {
			*p = filepath.Join(c.DataDir, rel)
		}
	}
	move(&c.DBPath)
	move(&c.QueueFile)
	move(&c.InboxDir)
	move(&c.ServerDB)
	if !c.RemoteIsHTTP() {
		move(&c.Remote)
	}
}

// Validate rejects settings the sync engine cannot run with
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Zone) == "" {
		return fmt.Errorf("config: zone cannot be empty")
	}
	if c.DrainInterval.Duration <= 0 {
		return fmt.Errorf("config: drain_interval must be positive")
	}
	if c.ProbeInterval.Duration <= 0 {
		return fmt.Errorf("config: probe_interval must be positive")
	}
	if c.RequestTimeout.Duration <= 0 {
		return fmt.Errorf("config: request_timeout must be positive")
	}
	if c.Remote == "" {
		return fmt.Errorf("config: remote cannot be empty")
	}
	return nil
}

// RemoteIsHTTP reports whether Remote points at a record service
func (c *Config) RemoteIsHTTP() bool {
	return strings.HasPrefix(c.Remote, "http://") || strings.HasPrefix(c.Remote, "https://")
}

// EnsureDirs creates the data and inbox directories
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, filepath.Dir(c.DBPath), filepath.Dir(c.QueueFile), c.InboxDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
