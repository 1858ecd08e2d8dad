// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for jobproof. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags) and
// rejects unknown config keys with "did you mean?" suggestions.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	// DataDir overrides where the account registry and session file live.
	// Empty means the platform default.
	DataDir string `toml:"data_dir"`

	Service  ServiceConfig  `toml:"service"`
	Upload   UploadConfig   `toml:"upload"`
	Outbox   OutboxConfig   `toml:"outbox"`
	Accounts AccountsConfig `toml:"accounts"`
	Logging  LoggingConfig  `toml:"logging"`
}

// ServiceConfig describes the upload service endpoint and how to identify
// this installation to it.
type ServiceConfig struct {
	BaseURL        string `toml:"base_url"`
	ClientID       string `toml:"client_id"`
	ConnectTimeout string `toml:"connect_timeout"`
	// LegacyEndpoint, when set, routes uploads through the one-shot
	// folder-creating endpoint instead of the session API.
	LegacyEndpoint string `toml:"legacy_endpoint"`
}

// UploadConfig controls batch upload behavior.
type UploadConfig struct {
	// Concurrency bounds simultaneous item uploads. 0 means unbounded:
	// every item of a batch is dispatched at once.
	Concurrency   int    `toml:"concurrency"`
	DefaultFormat string `toml:"default_format"`
	Flat          bool   `toml:"flat"`
	CleanerName   string `toml:"cleaner_name"`
	Location      string `toml:"location"`
}

// OutboxConfig controls the watched drop folder.
type OutboxConfig struct {
	Dir string `toml:"dir"`
	// Album is the album new outbox batches upload into. Usually set per
	// job via the --album flag instead.
	Album string `toml:"album"`
}

// AccountsConfig controls local account behavior.
type AccountsConfig struct {
	// MultiActive allows more than one simultaneously active account;
	// off by default, matching the base plan.
	MultiActive bool `toml:"multi_active"`
	PlanLimit   int  `toml:"plan_limit"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath  string // --config flag (empty = use default)
	ServiceURL  *string
	Concurrency *int
	Flat        *bool
	LogLevel    *string
}

// defaultPlanLimit is the base-plan invite token cap per account.
const defaultPlanLimit = 3

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			ConnectTimeout: "30s",
		},
		Upload: UploadConfig{
			DefaultFormat: "original",
		},
		Accounts: AccountsConfig{
			PlanLimit: defaultPlanLimit,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
