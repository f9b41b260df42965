// Package config loads berrymon settings from YAML
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rusenback/berrymon/internal/backend"
)

// TokenEnv overrides the stored bearer token
const TokenEnv = "BERRYMON_TOKEN"

// Config is the top-level configuration
type Config struct {
	Backend BackendConfig  `yaml:"backend"`
	Poll    PollConfig     `yaml:"poll"`
	DataDir string         `yaml:"data_dir"`
	LogFile string         `yaml:"log_file"`
	Feeds   []backend.Feed `yaml:"feeds"`

	// LoadedFrom is the file the config came from, empty for defaults
	LoadedFrom string `yaml:"-"`
}

// BackendConfig holds connection and login settings
type BackendConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Token    string        `yaml:"token"`
	Timeout  time.Duration `yaml:"timeout"`
}

// PollConfig holds loop intervals and the snapshot cap
type PollConfig struct {
	StatusInterval time.Duration `yaml:"status_interval"`
	DataInterval   time.Duration `yaml:"data_interval"`
	Cap            int           `yaml:"cap"`
}

// Default returns the built-in configuration
func Default() Config {
	bc := backend.DefaultConfig()
	return Config{
		Backend: BackendConfig{
			BaseURL: bc.BaseURL,
			Timeout: bc.Timeout,
		},
		Poll: PollConfig{
			StatusInterval: 2 * time.Second,
			DataInterval:   2 * time.Second,
			Cap:            200,
		},
		DataDir: defaultDataDir(),
		Feeds:   backend.DefaultFeeds(),
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".berrymon"
	}
	return filepath.Join(home, ".berrymon")
}

// Overrides are command-line values that win over the file
type Overrides struct {
	BaseURL  string
	DataDir  string
	Username string
}

// Load reads filename on top of Default(). An empty filename returns defaults.
func Load(filename string) (*Config, error) {
	return LoadWith(filename, Overrides{})
}

// LoadWith is Load followed by the given overrides
func LoadWith(filename string, ov Overrides) (*Config, error) {
	cfg := Default()
	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", filename, err)
		}
		// a feeds list in the file replaces the defaults entirely
		cfg.Feeds = nil
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", filename, err)
		}
		if len(cfg.Feeds) == 0 {
			cfg.Feeds = backend.DefaultFeeds()
		}
		cfg.LoadedFrom = filename
	}

	if tok := strings.TrimSpace(os.Getenv(TokenEnv)); tok != "" {
		cfg.Backend.Token = tok
	}
	if ov.BaseURL != "" {
		cfg.Backend.BaseURL = ov.BaseURL
	}
	if ov.DataDir != "" {
		cfg.DataDir = ov.DataDir
	}
	if ov.Username != "" {
		cfg.Backend.Username = ov.Username
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	def := Default()
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = def.Backend.Timeout
	}
	if c.Poll.StatusInterval <= 0 {
		c.Poll.StatusInterval = def.Poll.StatusInterval
	}
	if c.Poll.DataInterval <= 0 {
		c.Poll.DataInterval = def.Poll.DataInterval
	}
	if c.Poll.Cap <= 0 {
		c.Poll.Cap = def.Poll.Cap
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(c.DataDir, "berrymon.log")
	}
	for i := range c.Feeds {
		c.Feeds[i] = c.Feeds[i].WithDefaults()
	}
}

// Validate checks settings that have no sensible fallback
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return errors.New("config: backend.base_url is required")
	}
	seen := make(map[string]bool, len(c.Feeds))
	for _, f := range c.Feeds {
		if f.Name == "" {
			return errors.New("config: feed without name")
		}
		if seen[f.Name] {
			return fmt.Errorf("config: duplicate feed %q", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// BackendClientConfig converts to the client's settings
func (c *Config) BackendClientConfig() backend.Config {
	return backend.Config{
		BaseURL: c.Backend.BaseURL,
		Token:   c.Backend.Token,
		Timeout: c.Backend.Timeout,
	}
}
