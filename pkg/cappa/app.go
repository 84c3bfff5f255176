// Package cappa provides a small HTTP application helper built on net/http.
// An App maps exact routes to handlers, maps file extensions to handler
// factories, and can mount a directory tree as static routes served by a
// default GET/HEAD file responder.
package cappa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"
)

const (
	// DefaultPort is the listen port used when Options.Port is zero.
	DefaultPort = 8000

	// DefaultShutdownTimeout bounds graceful shutdown in Serve.
	DefaultShutdownTimeout = 30 * time.Second
)

// ExtensionHandler builds the handler for a single file. It receives the
// absolute path of the file being served.
type ExtensionHandler func(path string) http.Handler

// Options configures an App.
type Options struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
	Static          StaticOptions
}

// App owns the endpoint and extension tables. Both are expected to be
// populated before serving starts; they are guarded so late registration
// is still safe.
type App struct {
	mu         sync.RWMutex
	endpoints  map[string]http.Handler
	extensions map[string]ExtensionHandler
	fallbacks  map[string]http.Handler
	mounts     []mount

	host            string
	port            int
	shutdownTimeout time.Duration
	static          StaticOptions
	logger          *slog.Logger
}

type mount struct {
	route string
	root  string
}

// New creates an App, applying defaults for unset options.
func New(opts Options) *App {
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &App{
		endpoints:       make(map[string]http.Handler),
		extensions:      make(map[string]ExtensionHandler),
		fallbacks:       make(map[string]http.Handler),
		host:            opts.Host,
		port:            opts.Port,
		shutdownTimeout: opts.ShutdownTimeout,
		static:          opts.Static,
		logger:          opts.Logger.With("system", "cappa"),
	}
}

// Port returns the configured listen port.
func (a *App) Port() int {
	return a.port
}

// Addr returns the host:port listen address.
func (a *App) Addr() string {
	return net.JoinHostPort(a.host, strconv.Itoa(a.port))
}

// RegisterEndpoint binds handler to the normalized route. A later
// registration for the same route replaces the earlier one.
func (a *App) RegisterEndpoint(route string, handler http.Handler) {
	if handler == nil {
		panic("cappa: nil handler for route " + route)
	}
	route = NormalizeRoute(route)

	a.mu.Lock()
	_, exists := a.endpoints[route]
	a.endpoints[route] = handler
	a.mu.Unlock()

	if exists {
		a.logger.Warn("endpoint overwritten", "route", route)
	}
}

// RegisterEndpointFunc is RegisterEndpoint for plain handler functions.
func (a *App) RegisterEndpointFunc(route string, handler func(http.ResponseWriter, *http.Request)) {
	if handler == nil {
		panic("cappa: nil handler for route " + route)
	}
	a.RegisterEndpoint(route, http.HandlerFunc(handler))
}

// RegisterGroup registers every route of group, and of its children,
// beneath the group prefix.
func (a *App) RegisterGroup(group Group) {
	a.registerGroup("/", group)
}

func (a *App) registerGroup(parentPrefix string, group Group) {
	prefix := JoinRoute(parentPrefix, group.Prefix)
	for _, route := range group.Routes {
		if route.Handler == nil {
			panic("cappa: nil handler for route " + JoinRoute(prefix, route.Pattern))
		}
		a.RegisterEndpoint(JoinRoute(prefix, route.Pattern), route.Handler)
	}
	for _, child := range group.Children {
		a.registerGroup(prefix, child)
	}
}

// RegisterExtension binds a handler factory to a file extension. The
// extension is matched case-insensitively with or without its leading dot.
// Factories apply to directories mounted after registration and to
// extension fallback dispatch.
func (a *App) RegisterExtension(ext string, factory ExtensionHandler) error {
	if factory == nil {
		return fmt.Errorf("%w: nil handler for %q", ErrInvalidExtension, ext)
	}
	key, err := normalizeExtension(ext)
	if err != nil {
		return err
	}

	a.mu.Lock()
	_, exists := a.extensions[key]
	a.extensions[key] = factory
	a.fallbacks = make(map[string]http.Handler)
	a.mu.Unlock()

	if exists {
		a.logger.Warn("extension handler overwritten", "extension", key)
	}
	return nil
}

// Endpoints returns the registered routes in sorted order.
func (a *App) Endpoints() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	routes := make([]string, 0, len(a.endpoints))
	for route := range a.endpoints {
		routes = append(routes, route)
	}
	sort.Strings(routes)
	return routes
}

// Lookup returns the handler registered for route, if any.
func (a *App) Lookup(route string) (http.Handler, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	h, ok := a.endpoints[NormalizeRoute(route)]
	return h, ok
}

// ServeHTTP dispatches by exact route, then by extension under a mounted
// directory, and otherwise responds 404.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route := NormalizeRoute(r.URL.Path)

	if h, ok := a.Lookup(route); ok {
		h.ServeHTTP(w, r)
		return
	}

	if h, ok := a.extensionFallback(route); ok {
		h.ServeHTTP(w, r)
		return
	}

	http.Error(w, "Not Found", http.StatusNotFound)
}

func (a *App) extensionFallback(route string) (http.Handler, bool) {
	ext, err := normalizeExtension(path.Ext(route))
	if err != nil {
		return nil, false
	}

	a.mu.RLock()
	factory, ok := a.extensions[ext]
	mounts := a.mounts
	a.mu.RUnlock()

	if !ok {
		return nil, false
	}

	for _, m := range mounts {
		rel, ok := mountRelative(m.route, route)
		if !ok {
			continue
		}
		if !a.static.ShowHidden && hasHiddenSegment(rel) {
			continue
		}

		file, err := resolveWithin(m.root, filepath.FromSlash(rel))
		if err != nil {
			if errors.Is(err, ErrOutsideRoot) {
				a.logger.Warn("fallback path escapes root", "route", route, "root", m.root)
			}
			continue
		}

		info, err := os.Stat(file)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		return a.fallbackHandler(ext, file, factory), true
	}

	return nil, false
}

// fallbackHandler builds the handler for file once and reuses it on later
// requests, matching how mounted files are bound at mount time.
func (a *App) fallbackHandler(ext, file string, factory ExtensionHandler) http.Handler {
	key := ext + "\x00" + file

	a.mu.RLock()
	h, ok := a.fallbacks[key]
	a.mu.RUnlock()
	if ok {
		return h
	}

	a.logger.Debug("extension fallback", "extension", ext, "file", file)
	h = factory(file)

	a.mu.Lock()
	if existing, ok := a.fallbacks[key]; ok {
		h = existing
	} else {
		a.fallbacks[key] = h
	}
	a.mu.Unlock()
	return h
}

// StaticHandler returns the default file responder for path, configured
// with the App's static options. It can be passed wherever an
// ExtensionHandler is expected.
func (a *App) StaticHandler(path string) http.Handler {
	return newStaticFile(path, filepath.Base(path), a.static, a.logger)
}

// Serve listens on Addr and serves the App until ctx is cancelled, then
// shuts the server down gracefully.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:    a.Addr(),
		Handler: a,
	}

	a.logger.Info("cappa listening", "addr", srv.Addr, "port", a.port)
	for _, route := range a.Endpoints() {
		a.logger.Info("registered endpoint", "route", route)
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		a.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}
