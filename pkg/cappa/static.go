package cappa

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/gddo/httputil"
	"github.com/zeebo/xxh3"
)

// StaticOptions configures the default file responder.
type StaticOptions struct {
	// ShowHidden mounts and serves dot-files and dot-directories.
	ShowHidden bool

	// Precompressed serves file.br, file.zst or file.gz in place of file
	// when the client accepts that encoding.
	Precompressed bool

	// Cache keeps small file contents in memory. Nil disables caching.
	Cache *Cache
}

type sidecar struct {
	encoding string
	ext      string
}

// Preference order when the client weighs encodings equally.
var sidecars = []sidecar{
	{encoding: "br", ext: ".br"},
	{encoding: "zstd", ext: ".zst"},
	{encoding: "gzip", ext: ".gz"},
}

// staticFile serves the file at path. name is the file name the route was
// built from and selects the content type.
type staticFile struct {
	path   string
	name   string
	opts   StaticOptions
	logger *slog.Logger
}

func newStaticFile(path, name string, opts StaticOptions, logger *slog.Logger) *staticFile {
	return &staticFile{path: path, name: name, opts: opts, logger: logger}
}

func (s *staticFile) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	info, err := os.Stat(s.path)
	if err != nil {
		s.fail(w, err)
		return
	}
	if info.IsDir() {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	if w.Header().Get("Content-Type") == "" {
		ctype, err := s.contentType()
		if err != nil {
			s.fail(w, err)
			return
		}
		w.Header().Set("Content-Type", ctype)
	}

	name, served := s.path, info
	if s.opts.Precompressed {
		addVary(w.Header(), "Accept-Encoding")
		if sc, scInfo, ok := s.negotiate(r, info); ok {
			name, served = s.path+sc.ext, scInfo
			w.Header().Set("Content-Encoding", sc.encoding)
		}
	}

	content, etag, err := s.open(name, served)
	if err != nil {
		w.Header().Del("Content-Encoding")
		s.fail(w, err)
		return
	}
	if c, ok := content.(io.Closer); ok {
		defer c.Close()
	}

	w.Header().Set("ETag", etag)
	http.ServeContent(w, r, s.name, info.ModTime(), content)
}

// contentType resolves the media type from the extension, sniffing the
// first 512 bytes when the extension is unknown.
func (s *staticFile) contentType() (string, error) {
	if ctype := mime.TypeByExtension(filepath.Ext(s.name)); ctype != "" {
		return ctype, nil
	}

	f, err := os.Open(s.path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	return http.DetectContentType(buf[:n]), nil
}

// negotiate picks the best precompressed sidecar the client accepts.
// Sidecars older or larger than the original are ignored.
func (s *staticFile) negotiate(r *http.Request, orig fs.FileInfo) (sidecar, fs.FileInfo, bool) {
	offers := make([]string, 0, len(sidecars))
	found := make(map[string]fs.FileInfo, len(sidecars))

	for _, sc := range sidecars {
		info, err := os.Stat(s.path + sc.ext)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if info.ModTime().Before(orig.ModTime()) {
			s.logger.Warn("sidecar older than original", "path", s.path, "ext", sc.ext)
			continue
		}
		if info.Size() > orig.Size() {
			s.logger.Debug("sidecar larger than original", "path", s.path, "ext", sc.ext)
			continue
		}
		offers = append(offers, sc.encoding)
		found[sc.encoding] = info
	}

	if len(offers) == 0 {
		return sidecar{}, nil, false
	}

	encoding := httputil.NegotiateContentEncoding(r, offers)
	for _, sc := range sidecars {
		if sc.encoding == encoding {
			return sc, found[encoding], true
		}
	}
	return sidecar{}, nil, false
}

// open returns the content of name and its entity tag, reading through
// the cache when the file is small enough.
func (s *staticFile) open(name string, info fs.FileInfo) (io.ReadSeeker, string, error) {
	if s.opts.Cache.Admits(info.Size()) {
		key := fmt.Sprintf("%s:%d:%d", name, info.Size(), info.ModTime().UnixNano())
		if entry, ok := s.opts.Cache.get(key); ok {
			return bytes.NewReader(entry.data), entry.etag, nil
		}

		data, err := os.ReadFile(name)
		if err != nil {
			return nil, "", err
		}
		entry := cacheEntry{data: data, etag: fmt.Sprintf(`"%016x"`, xxh3.Hash(data))}
		s.opts.Cache.set(key, entry)
		return bytes.NewReader(data), entry.etag, nil
	}

	f, err := os.Open(name)
	if err != nil {
		return nil, "", err
	}
	return f, fmt.Sprintf(`W/"%x-%x"`, info.Size(), info.ModTime().UnixNano()), nil
}

func (s *staticFile) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, fs.ErrNotExist) {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	s.logger.Error("static file error", "path", s.path, "error", err)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

func addVary(h http.Header, value string) {
	for _, v := range h.Values("Vary") {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), value) {
				return
			}
		}
	}
	h.Add("Vary", value)
}
