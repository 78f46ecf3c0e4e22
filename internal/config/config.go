// Package config loads hostpatch settings from YAML with environment
// overrides, and watches the file for runtime changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. HOSTPATCH_AUDIT_ENABLED.
const EnvPrefix = "HOSTPATCH_"

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// AuditConfig controls the anti-backdoor trail. Enabled can change at
// runtime.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Sink    string `yaml:"sink" env:"SINK"`
	Path    string `yaml:"path" env:"PATH"`
}

// HostConfig names the host image to patch. ExpectedHash pins the exact
// build the descriptor table was written against; empty disables the check.
type HostConfig struct {
	Image        string `yaml:"image" env:"IMAGE"`
	ExpectedHash string `yaml:"expected_hash" env:"EXPECTED_HASH"`
}

type PluginsConfig struct {
	Dir     string        `yaml:"dir" env:"DIR"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

// InstallConfig feeds the installer. Token is usually set through the
// environment only.
type InstallConfig struct {
	Repository string `yaml:"repository" env:"REPOSITORY"`
	Token      string `yaml:"-" env:"TOKEN"`
}

// Config is the full hostpatch configuration.
type Config struct {
	Log     LogConfig     `yaml:"log" envPrefix:"LOG_"`
	Audit   AuditConfig   `yaml:"audit" envPrefix:"AUDIT_"`
	Host    HostConfig    `yaml:"host" envPrefix:"HOST_"`
	Plugins PluginsConfig `yaml:"plugins" envPrefix:"PLUGINS_"`
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
	Install InstallConfig `yaml:"install" envPrefix:"INSTALL_"`
}

// Dir returns ~/.hostpatch, or .hostpatch when there is no home directory.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hostpatch"
	}
	return filepath.Join(home, ".hostpatch")
}

// DefaultPath is where Load looks when given an empty path.
func DefaultPath() string { return filepath.Join(Dir(), "config.yaml") }

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	dir := Dir()
	return &Config{
		Log:     LogConfig{Level: "info", Format: "text"},
		Audit:   AuditConfig{Enabled: true, Sink: "jsonl", Path: filepath.Join(dir, "audit.jsonl")},
		Plugins: PluginsConfig{Dir: filepath.Join(dir, "plugins"), Timeout: 2 * time.Second},
		Metrics: MetricsConfig{Addr: ""},
		Install: InstallConfig{Repository: "Exiled-Team/EXILED"},
	}
}

// Load reads configuration from a YAML file over the defaults, then applies
// HOSTPATCH_ environment overrides.
// Empty path falls back to ~/.hostpatch/config.yaml.
// Missing file returns defaults. Invalid YAML returns an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Audit.Path = ExpandHome(cfg.Audit.Path)
	cfg.Plugins.Dir = ExpandHome(cfg.Plugins.Dir)
	cfg.Host.Image = ExpandHome(cfg.Host.Image)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown enum values.
func (c *Config) Validate() error {
	var errs []error
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	switch c.Audit.Sink {
	case "jsonl", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("audit.sink: unknown sink %q", c.Audit.Sink))
	}
	if c.Plugins.Timeout < 0 {
		errs = append(errs, fmt.Errorf("plugins.timeout: must not be negative"))
	}
	return errors.Join(errs...)
}

// DefaultYAML returns a commented config file for hostpatch init.
func DefaultYAML() string {
	return `# hostpatch configuration
# Every key can be overridden with HOSTPATCH_<SECTION>_<KEY>,
# e.g. HOSTPATCH_AUDIT_ENABLED=false.

log:
  level: info        # debug, info, warn, error (reloaded at runtime)
  format: text       # text or json

audit:
  enabled: true      # record handler changes to guarded fields (reloaded at runtime)
  sink: jsonl        # jsonl (hash-chained) or sqlite
  path: ~/.hostpatch/audit.jsonl

host:
  image: ""          # host image to patch; empty uses the built-in game image
  expected_hash: ""  # sha256:<hex> of the image; empty skips the check

plugins:
  dir: ~/.hostpatch/plugins
  timeout: 2s        # per Lua handler call; 0 lets handlers run unbounded

metrics:
  addr: ""           # e.g. 127.0.0.1:9464 to serve /metrics

install:
  repository: Exiled-Team/EXILED
`
}

// ExpandHome replaces a leading ~/ with the user's home directory.
func ExpandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
