package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/JaimeStill/cappa/internal/config"
	"github.com/JaimeStill/cappa/pkg/cappa"
	"github.com/JaimeStill/cappa/pkg/extensions"
	"github.com/JaimeStill/cappa/pkg/handlers"
)

// registerExtensions binds the extension handlers used by mounted content.
func registerExtensions(app *cappa.App, runtime *Runtime, cfg *config.Config) error {
	tmpl := extensions.Template(extensions.TemplateOptions{
		BasePath: cfg.Static.Route,
		Logger:   runtime.Logger,
	})
	if err := app.RegisterExtension(".tmpl", tmpl); err != nil {
		return err
	}

	ts := extensions.ContentType("text/javascript; charset=utf-8", app.StaticHandler)
	return app.RegisterExtension(".ts", ts)
}

// mountStatic mounts the configured static root. A missing root is
// logged and skipped so the service still starts without content.
func mountStatic(app *cappa.App, runtime *Runtime, cfg *config.Config) error {
	_, err := app.MountDirectory(cfg.Static.Root, cfg.Static.Route)
	if errors.Is(err, fs.ErrNotExist) {
		runtime.Logger.Warn("static root not found, skipping mount", "root", cfg.Static.Root)
		return nil
	}
	if err != nil {
		return fmt.Errorf("mount %s: %w", cfg.Static.Root, err)
	}
	return nil
}

// registerRoutes configures the explicit endpoints. They are registered
// after mounting so they take precedence over mounted files.
func registerRoutes(app *cappa.App, runtime *Runtime) {
	app.RegisterEndpointFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("Hello world!"))
	})

	app.RegisterGroup(cappa.Group{
		Prefix: "/",
		Routes: []cappa.Route{
			{Pattern: "/healthz", Handler: handlers.Health()},
			{Pattern: "/readyz", Handler: handlers.Ready(runtime.Lifecycle.Ready, runtime.Logger)},
		},
		Children: []cappa.Group{
			{
				Prefix: "/api",
				Routes: []cappa.Route{
					{Pattern: "/endpoints", Handler: handlers.Endpoints(app)},
				},
			},
		},
	})
}
