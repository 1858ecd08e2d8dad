package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// validLogLevels are the accepted logging.level values.
var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

// validLogFormats are the accepted logging.format values.
var validLogFormats = map[string]bool{
	"text": true, "json": true, "auto": true,
}

// Validate checks a Config for internally inconsistent or out-of-range
// values. Zero values that mean "use the default" are accepted.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Service.BaseURL != "" {
		if _, err := url.ParseRequestURI(cfg.Service.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("service.base_url: %w", err))
		}
	}

	if cfg.Service.ConnectTimeout != "" {
		if _, err := time.ParseDuration(cfg.Service.ConnectTimeout); err != nil {
			errs = append(errs, fmt.Errorf("service.connect_timeout: %w", err))
		}
	}

	if cfg.Upload.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("upload.concurrency must be >= 0, got %d", cfg.Upload.Concurrency))
	}

	if cfg.Accounts.PlanLimit < 1 {
		errs = append(errs, fmt.Errorf("accounts.plan_limit must be >= 1, got %d", cfg.Accounts.PlanLimit))
	}

	if !validLogLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", cfg.Logging.Level))
	}

	if !validLogFormats[cfg.Logging.Format] {
		errs = append(errs, fmt.Errorf("logging.format must be one of text, json, auto; got %q", cfg.Logging.Format))
	}

	return errors.Join(errs...)
}
