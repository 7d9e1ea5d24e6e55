// Package config provides configuration file support for the MuxOS helpers.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the helpers look for their configuration.
const DefaultPath = "/etc/muxos/helper.yaml"

// Config represents the helper configuration.
type Config struct {
	// StateDir holds journals, keys, backups and update state.
	StateDir string         `yaml:"state_dir"`
	Security SecurityConfig `yaml:"security"`
	Update   UpdateConfig   `yaml:"update"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// SecurityConfig configures the security toggle helper.
type SecurityConfig struct {
	ScriptsDir string `yaml:"scripts_dir"`
	Shell      string `yaml:"shell"`
}

// UpdateConfig configures the update helper.
type UpdateConfig struct {
	DefaultRepo        string        `yaml:"default_repo"`
	ArchiveURLTemplate string        `yaml:"archive_url_template"`
	DownloadTimeout    time.Duration `yaml:"download_timeout"`
	UserAgent          string        `yaml:"user_agent"`
	MaxArchiveBytes    int64         `yaml:"max_archive_bytes"` // unpacked release size cap
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, console
	// File, when set, receives a rotated copy of every log line.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// MetricsConfig configures the node_exporter textfile output. Each helper
// action writes its own file into TextfileDir; empty disables metrics.
type MetricsConfig struct {
	TextfileDir string `yaml:"textfile_dir"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		StateDir: "/var/lib/muxos",
		Security: SecurityConfig{
			ScriptsDir: "/usr/share/muxos/security",
			Shell:      "bash",
		},
		Update: UpdateConfig{
			DefaultRepo:        "MushhDev/MuxOS",
			ArchiveURLTemplate: "https://codeload.github.com/{{repo}}/tar.gz/{{ref}}",
			DownloadTimeout:    60 * time.Second,
			UserAgent:          "MuxOS-Updater",
			MaxArchiveBytes:    512 << 20,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			File:       "/var/log/muxos/helper.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// SecurityDir is where the security helper keeps its journal and backups.
func (c *Config) SecurityDir() string {
	return filepath.Join(c.StateDir, "security")
}

// UpdatesDir is where the update helper keeps its journal, backups and state.
func (c *Config) UpdatesDir() string {
	return filepath.Join(c.StateDir, "updates")
}

// Load loads configuration from path.
// Returns default config if file doesn't exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the helpers cannot run with.
func (c *Config) Validate() error {
	if !filepath.IsAbs(c.StateDir) {
		return fmt.Errorf("config: state_dir must be absolute: %q", c.StateDir)
	}
	if !filepath.IsAbs(c.Security.ScriptsDir) {
		return fmt.Errorf("config: security.scripts_dir must be absolute: %q", c.Security.ScriptsDir)
	}
	if c.Update.DownloadTimeout <= 0 {
		return fmt.Errorf("config: update.download_timeout must be positive")
	}
	if c.Update.MaxArchiveBytes <= 0 {
		return fmt.Errorf("config: update.max_archive_bytes must be positive")
	}
	if c.Update.ArchiveURLTemplate == "" {
		return fmt.Errorf("config: update.archive_url_template must not be empty")
	}
	return nil
}

// Save writes configuration to path.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}
