package extensions

import (
	"net/http"

	"github.com/JaimeStill/cappa/pkg/cappa"
)

// ContentType wraps next so the files it serves carry contentType instead
// of the type guessed from their extension.
func ContentType(contentType string, next cappa.ExtensionHandler) cappa.ExtensionHandler {
	return func(path string) http.Handler {
		h := next(path)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", contentType)
			h.ServeHTTP(w, r)
		})
	}
}
