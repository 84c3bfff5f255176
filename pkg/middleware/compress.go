package middleware

import (
	"io"
	"mime"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/golang/gddo/httputil"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Offered encodings, most preferred first.
var compressOffers = []string{"br", "zstd", "gzip"}

// Compress returns middleware that compresses compressible responses with
// the best encoding the client accepts. Responses that already carry a
// Content-Encoding or declare a Content-Length below MinSize pass through
// untouched.
func Compress(cfg *CompressConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.IsEnabled() {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			varyOn(w.Header(), "Accept-Encoding")

			encoding := httputil.NegotiateContentEncoding(r, compressOffers)
			if !slices.Contains(compressOffers, encoding) {
				next.ServeHTTP(w, r)
				return
			}

			cw := &compressWriter{
				ResponseWriter: w,
				encoding:       encoding,
				minSize:        cfg.MinSizeBytes(),
				head:           r.Method == http.MethodHead,
			}
			defer cw.Close()

			next.ServeHTTP(cw, r)
		})
	}
}

type compressWriter struct {
	http.ResponseWriter
	encoding    string
	minSize     int64
	head        bool
	wroteHeader bool
	encoder     io.WriteCloser
}

func (cw *compressWriter) WriteHeader(status int) {
	if cw.wroteHeader {
		return
	}
	cw.wroteHeader = true

	if cw.shouldCompress(status) && cw.startEncoder() {
		h := cw.Header()
		h.Del("Content-Length")
		h.Del("Accept-Ranges")
		h.Set("Content-Encoding", cw.encoding)
		if etag := h.Get("ETag"); etag != "" && !strings.HasPrefix(etag, "W/") {
			h.Set("ETag", "W/"+etag)
		}
	}

	cw.ResponseWriter.WriteHeader(status)
}

// startEncoder creates the encoder for a body-carrying response. It reports
// false when the encoder cannot be built, leaving the response uncompressed.
func (cw *compressWriter) startEncoder() bool {
	if cw.head {
		return true
	}
	newEncoder, ok := encoders[cw.encoding]
	if !ok {
		return false
	}
	enc, err := newEncoder(cw.ResponseWriter)
	if err != nil {
		return false
	}
	cw.encoder = enc
	return true
}

func (cw *compressWriter) Write(b []byte) (int, error) {
	if !cw.wroteHeader {
		if cw.Header().Get("Content-Type") == "" {
			cw.Header().Set("Content-Type", http.DetectContentType(b))
		}
		cw.WriteHeader(http.StatusOK)
	}
	if cw.encoder != nil {
		return cw.encoder.Write(b)
	}
	return cw.ResponseWriter.Write(b)
}

// Close flushes and closes the encoder, if one was started.
func (cw *compressWriter) Close() error {
	if cw.encoder == nil {
		return nil
	}
	return cw.encoder.Close()
}

func (cw *compressWriter) Flush() {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
	if f, ok := cw.encoder.(interface{ Flush() error }); ok {
		f.Flush()
	}
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (cw *compressWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}

func (cw *compressWriter) shouldCompress(status int) bool {
	if status < http.StatusOK || status == http.StatusNoContent ||
		status == http.StatusNotModified || status == http.StatusPartialContent {
		return false
	}

	h := cw.Header()
	if h.Get("Content-Encoding") != "" {
		return false
	}

	if cl := h.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n < cw.minSize {
			return false
		}
	}

	return compressible(h.Get("Content-Type"))
}

func compressible(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	if strings.HasPrefix(mediaType, "text/") ||
		strings.HasSuffix(mediaType, "+json") ||
		strings.HasSuffix(mediaType, "+xml") {
		return true
	}

	switch mediaType {
	case "application/json", "application/javascript", "application/xml",
		"application/wasm", "application/manifest+json", "image/svg+xml":
		return true
	}
	return false
}

var encoders = map[string]func(io.Writer) (io.WriteCloser, error){
	"br": func(w io.Writer) (io.WriteCloser, error) {
		return brotli.NewWriterLevel(w, brotli.DefaultCompression), nil
	},
	"zstd": func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w, zstd.WithEncoderConcurrency(1))
	},
	"gzip": func(w io.Writer) (io.WriteCloser, error) {
		return gzip.NewWriterLevel(w, gzip.DefaultCompression)
	},
}

func varyOn(h http.Header, value string) {
	for _, v := range h.Values("Vary") {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), value) {
				return
			}
		}
	}
	h.Add("Vary", value)
}
