package main

import (
	"fmt"
	"log/slog"

	"github.com/JaimeStill/cappa/internal/config"
	"github.com/JaimeStill/cappa/internal/lifecycle"
	"github.com/JaimeStill/cappa/pkg/cappa"
	"github.com/JaimeStill/cappa/pkg/logging"
)

// Runtime holds the shared infrastructure handed to every subsystem.
type Runtime struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Static    cappa.StaticOptions
}

// NewRuntime builds the logger, lifecycle coordinator, and static
// responder options from cfg.
func NewRuntime(cfg *config.Config) (*Runtime, error) {
	logger := logging.New(&cfg.Logging)

	static, err := cfg.Static.Options()
	if err != nil {
		return nil, fmt.Errorf("static init failed: %w", err)
	}

	return &Runtime{
		Lifecycle: lifecycle.New(),
		Logger:    logger,
		Static:    static,
	}, nil
}

// Start registers runtime-owned resources with the lifecycle.
func (r *Runtime) Start() error {
	if r.Static.Cache != nil {
		r.Lifecycle.OnShutdown(func() {
			<-r.Lifecycle.Context().Done()
			r.Static.Cache.Close()
			r.Logger.Info("static cache closed")
		})
	}
	return nil
}
