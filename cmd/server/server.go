package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/JaimeStill/cappa/internal/config"
	"github.com/JaimeStill/cappa/internal/server"
	"github.com/JaimeStill/cappa/pkg/cappa"
)

// Server coordinates the lifecycle of all subsystems.
type Server struct {
	runtime *Runtime
	app     *cappa.App
	handler http.Handler
	http    server.System
}

// NewServer creates and initializes the service with all subsystems.
func NewServer(cfg *config.Config) (*Server, error) {
	runtime, err := NewRuntime(cfg)
	if err != nil {
		return nil, err
	}

	app, err := newApp(runtime, cfg)
	if err != nil {
		return nil, err
	}

	handler := buildMiddleware(runtime, cfg).Apply(app)

	runtime.Logger.Info(
		"server initialized",
		"addr", cfg.Server.Addr(),
		"endpoints", len(app.Endpoints()),
	)

	return &Server{
		runtime: runtime,
		app:     app,
		handler: handler,
		http:    server.New(&cfg.Server, handler, runtime.Logger),
	}, nil
}

func newApp(runtime *Runtime, cfg *config.Config) (*cappa.App, error) {
	app := cappa.New(cappa.Options{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeoutDuration(),
		Logger:          runtime.Logger,
		Static:          runtime.Static,
	})

	if err := registerExtensions(app, runtime, cfg); err != nil {
		return nil, fmt.Errorf("register extensions: %w", err)
	}
	if err := mountStatic(app, runtime, cfg); err != nil {
		return nil, err
	}
	registerRoutes(app, runtime)

	return app, nil
}

// Handler returns the fully wrapped request handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins all subsystems and returns once the listener is bound.
func (s *Server) Start() error {
	s.runtime.Logger.Info("starting service")

	if err := s.runtime.Start(); err != nil {
		return err
	}

	if err := s.http.Start(s.runtime.Lifecycle); err != nil {
		return err
	}

	s.runtime.Logger.Info("cappa running", "addr", s.http.Addr(), "port", s.app.Port())
	for _, route := range s.app.Endpoints() {
		s.runtime.Logger.Debug("registered endpoint", "route", route)
	}

	go func() {
		s.runtime.Lifecycle.WaitForStartup()
		s.runtime.Logger.Info("all subsystems ready")
	}()

	return nil
}

// Shutdown gracefully stops all subsystems within timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.runtime.Logger.Info("initiating shutdown")
	return s.runtime.Lifecycle.Shutdown(timeout)
}
