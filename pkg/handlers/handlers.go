// Package handlers provides JSON response helpers and the small operational
// endpoints (health, readiness, route listing) served next to cappa routes.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// ErrNotReady is reported by Ready while the readiness check fails.
var ErrNotReady = errors.New("service not ready")

// RespondJSON writes data as JSON with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError logs err and writes {"error": "<message>"} with status.
func RespondError(w http.ResponseWriter, logger *slog.Logger, status int, err error) {
	logger.Error("handler error", "error", err, "status", status)
	RespondJSON(w, status, map[string]string{"error": err.Error()})
}

// Health always answers 200 {"status":"ok"} while the process is serving.
func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// Ready answers 200 {"status":"ready"} when check reports true, otherwise
// 503 with an error body.
func Ready(check func() bool, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !check() {
			RespondError(w, logger, http.StatusServiceUnavailable, ErrNotReady)
			return
		}
		RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// RouteLister reports registered routes. *cappa.App satisfies it.
type RouteLister interface {
	Endpoints() []string
}

// EndpointList is the body returned by Endpoints.
type EndpointList struct {
	Count     int      `json:"count"`
	Endpoints []string `json:"endpoints"`
}

// Endpoints lists the routes currently registered on lister.
func Endpoints(lister RouteLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routes := lister.Endpoints()
		RespondJSON(w, http.StatusOK, EndpointList{
			Count:     len(routes),
			Endpoints: routes,
		})
	}
}
