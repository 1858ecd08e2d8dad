package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jobproof/jobproof-go/internal/config"
	"github.com/jobproof/jobproof-go/internal/registry"
	"github.com/jobproof/jobproof-go/internal/remote"
	"github.com/jobproof/jobproof-go/internal/session"
)

// errNoServiceURL is returned when a command needs the upload service but
// no base URL is configured anywhere in the override chain.
var errNoServiceURL = errors.New("no upload service URL configured (set service.base_url or --service-url)")

// app bundles the shared dependencies commands need. Built per command
// invocation rather than globally so each command opens only what it uses.
type app struct {
	cfg      *config.Resolved
	logger   *slog.Logger
	client   *remote.Client
	registry *registry.Registry
	broker   *session.Broker
}

// newApp wires the client, registry, and session broker from the resolved
// config. Callers must Close() it.
func newApp(needService bool) (*app, error) {
	a := &app{
		cfg:    resolvedCfg,
		logger: buildLogger(),
	}

	if needService {
		if a.cfg.Service.BaseURL == "" {
			return nil, errNoServiceURL
		}

		a.client = remote.NewClient(a.cfg.Service.BaseURL, defaultHTTPClient(), a.logger)
	}

	if err := os.MkdirAll(a.cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	reg, err := registry.Open(config.RegistryPath(a.cfg.DataDir), a.cfg.Accounts.MultiActive, a.logger)
	if err != nil {
		return nil, err
	}

	a.registry = reg

	a.broker = session.NewBroker(a.client, a.cfg.Service.ClientID, config.SessionPath(a.cfg.DataDir), a.logger)

	return a, nil
}

func (a *app) Close() error {
	if a.registry != nil {
		return a.registry.Close()
	}

	return nil
}
