package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig     = "JOBPROOF_CONFIG"
	EnvServiceURL = "JOBPROOF_SERVICE_URL"
	EnvDataDir    = "JOBPROOF_DATA_DIR"
	EnvOutbox     = "JOBPROOF_OUTBOX"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // JOBPROOF_CONFIG: override config file path
	ServiceURL string // JOBPROOF_SERVICE_URL: upload service base URL
	DataDir    string // JOBPROOF_DATA_DIR: registry and session location
	Outbox     string // JOBPROOF_OUTBOX: watched drop folder
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. It does not modify the Config; callers apply the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		ServiceURL: os.Getenv(EnvServiceURL),
		DataDir:    os.Getenv(EnvDataDir),
		Outbox:     os.Getenv(EnvOutbox),
	}
}
