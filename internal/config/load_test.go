package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.Equal(t, "30s", cfg.Service.ConnectTimeout)
	assert.Equal(t, "original", cfg.Upload.DefaultFormat)
	assert.Equal(t, 3, cfg.Accounts.PlanLimit)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Accounts.MultiActive)
}

func TestLoadFullFile(t *testing.T) {
	path := writeConfig(t, `
data_dir = "/var/lib/jobproof"

[service]
base_url = "https://uploads.example.com"
client_id = "crew-7"
connect_timeout = "10s"

[upload]
concurrency = 4
default_format = "instagram"
cleaner_name = "Dana"

[outbox]
dir = "/srv/outbox"
album = "Standing Job"

[accounts]
multi_active = true
plan_limit = 10

[logging]
level = "debug"
format = "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/jobproof", cfg.DataDir)
	assert.Equal(t, "https://uploads.example.com", cfg.Service.BaseURL)
	assert.Equal(t, "crew-7", cfg.Service.ClientID)
	assert.Equal(t, 4, cfg.Upload.Concurrency)
	assert.Equal(t, "instagram", cfg.Upload.DefaultFormat)
	assert.Equal(t, "/srv/outbox", cfg.Outbox.Dir)
	assert.True(t, cfg.Accounts.MultiActive)
	assert.Equal(t, 10, cfg.Accounts.PlanLimit)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadUnknownKeySuggestion(t *testing.T) {
	path := writeConfig(t, `
[upload]
concurency = 4
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown config key "upload.concurency"`)
	assert.Contains(t, err.Error(), `did you mean "upload.concurrency"?`)
}

func TestLoadUnknownSection(t *testing.T) {
	path := writeConfig(t, `
[uplod]
concurrency = 4
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config key")
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "negative concurrency",
			mutate:  func(c *Config) { c.Upload.Concurrency = -1 },
			wantMsg: "upload.concurrency",
		},
		{
			name:    "zero plan limit",
			mutate:  func(c *Config) { c.Accounts.PlanLimit = 0 },
			wantMsg: "accounts.plan_limit",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantMsg: "logging.level",
		},
		{
			name:    "bad timeout",
			mutate:  func(c *Config) { c.Service.ConnectTimeout = "fast" },
			wantMsg: "service.connect_timeout",
		},
		{
			name:    "bad url",
			mutate:  func(c *Config) { c.Service.BaseURL = "not a url" },
			wantMsg: "service.base_url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestResolvePrecedence(t *testing.T) {
	path := writeConfig(t, `
[service]
base_url = "https://file.example.com"
`)

	// Env beats file.
	resolved, err := Resolve(
		EnvOverrides{ConfigPath: path, ServiceURL: "https://env.example.com"},
		CLIOverrides{},
	)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", resolved.Service.BaseURL)

	// CLI beats env.
	cliURL := "https://cli.example.com"
	resolved, err = Resolve(
		EnvOverrides{ConfigPath: path, ServiceURL: "https://env.example.com"},
		CLIOverrides{ServiceURL: &cliURL},
	)
	require.NoError(t, err)
	assert.Equal(t, "https://cli.example.com", resolved.Service.BaseURL)
}

func TestResolveParsesTimeout(t *testing.T) {
	path := writeConfig(t, `
[service]
connect_timeout = "5s"
`)

	resolved, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, resolved.ConnectTimeout)
}

func TestResolveDataDirDefault(t *testing.T) {
	resolved, err := Resolve(
		EnvOverrides{ConfigPath: filepath.Join(t.TempDir(), "nope.toml")},
		CLIOverrides{},
	)
	require.NoError(t, err)
	assert.NotEmpty(t, resolved.DataDir)

	resolved, err = Resolve(
		EnvOverrides{
			ConfigPath: filepath.Join(t.TempDir(), "nope.toml"),
			DataDir:    "/tmp/jp-data",
		},
		CLIOverrides{},
	)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/jp-data", resolved.DataDir)
}

func TestRegistryAndSessionPaths(t *testing.T) {
	assert.Equal(t, "/data/accounts.db", RegistryPath("/data"))
	assert.Equal(t, "/data/session.json", SessionPath("/data"))
}
