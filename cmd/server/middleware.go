package main

import (
	"github.com/JaimeStill/cappa/internal/config"
	"github.com/JaimeStill/cappa/pkg/middleware"
)

// buildMiddleware creates the middleware stack. The first entry is outermost.
func buildMiddleware(runtime *Runtime, cfg *config.Config) middleware.System {
	mw := middleware.New()
	mw.Use(middleware.RequestID())
	mw.Use(middleware.Logger(runtime.Logger))
	mw.Use(middleware.CORS(&cfg.CORS))
	mw.Use(middleware.Compress(&cfg.Compression))
	return mw
}
