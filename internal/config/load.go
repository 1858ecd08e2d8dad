package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values. This supports the zero-config
// first-run experience.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolved is a fully merged configuration ready for use: the override
// chain applied and durations parsed.
type Resolved struct {
	Config

	DataDir        string
	ConnectTimeout time.Duration
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
// CLI flags always win, matching user expectations for one-off overrides
// without editing the config file.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.ServiceURL != "" {
		cfg.Service.BaseURL = env.ServiceURL
	}

	if env.DataDir != "" {
		cfg.DataDir = env.DataDir
	}

	if env.Outbox != "" {
		cfg.Outbox.Dir = env.Outbox
	}

	if cli.ServiceURL != nil {
		cfg.Service.BaseURL = *cli.ServiceURL
	}

	if cli.Concurrency != nil {
		cfg.Upload.Concurrency = *cli.Concurrency
	}

	if cli.Flat != nil {
		cfg.Upload.Flat = *cli.Flat
	}

	if cli.LogLevel != nil {
		cfg.Logging.Level = *cli.LogLevel
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	resolved := &Resolved{Config: *cfg}

	resolved.DataDir = cfg.DataDir
	if resolved.DataDir == "" {
		resolved.DataDir = DefaultDataDir()
	}

	resolved.ConnectTimeout, err = time.ParseDuration(cfg.Service.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("config validation: connect_timeout: %w", err)
	}

	return resolved, nil
}
