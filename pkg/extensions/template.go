// Package extensions provides ready-made cappa extension handlers for
// processing static content before it is served.
package extensions

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/JaimeStill/cappa/pkg/cappa"
)

// TemplateOptions configures template rendering.
type TemplateOptions struct {
	// Layouts is a glob of layout templates each page is cloned from.
	// When empty, pages render standalone.
	Layouts string

	// Layout names the template executed when Layouts is set.
	Layout string

	// BasePath is exposed to templates as {{ .BasePath }}.
	BasePath string

	// Data supplies per-request template data.
	Data func(r *http.Request) any

	Logger *slog.Logger
}

// PageData contains the data passed to templates during rendering.
type PageData struct {
	Title    string
	Path     string
	BasePath string
	Query    url.Values
	Data     any
}

// Template returns an extension handler that renders each file as an
// html/template. Templates are parsed once, when the handler is built.
func Template(opts TemplateOptions) cappa.ExtensionHandler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("system", "templates")

	return func(path string) http.Handler {
		t, err := parsePage(opts, path)
		if err != nil {
			logger.Error("template parse failed", "path", path, "error", err)
		}

		return &page{
			tmpl:   t,
			err:    err,
			name:   filepath.Base(path),
			title:  pageTitle(path),
			opts:   opts,
			logger: logger,
		}
	}
}

func parsePage(opts TemplateOptions, path string) (*template.Template, error) {
	if opts.Layouts == "" {
		return template.ParseFiles(path)
	}

	layouts, err := template.ParseGlob(opts.Layouts)
	if err != nil {
		return nil, fmt.Errorf("parse layouts: %w", err)
	}

	t, err := layouts.Clone()
	if err != nil {
		return nil, fmt.Errorf("clone layouts for %s: %w", path, err)
	}

	if _, err := t.ParseFiles(path); err != nil {
		return nil, fmt.Errorf("parse template: %s: %w", path, err)
	}
	return t, nil
}

func pageTitle(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "index" {
		name = filepath.Base(filepath.Dir(path))
	}
	return name
}

type page struct {
	tmpl   *template.Template
	err    error
	name   string
	title  string
	opts   TemplateOptions
	logger *slog.Logger
}

func (p *page) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	if p.err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	data := PageData{
		Title:    p.title,
		Path:     r.URL.Path,
		BasePath: p.opts.BasePath,
		Query:    r.URL.Query(),
	}
	if p.opts.Data != nil {
		data.Data = p.opts.Data(r)
	}

	var buf bytes.Buffer
	var err error
	if p.opts.Layouts != "" {
		err = p.tmpl.ExecuteTemplate(&buf, p.opts.Layout, data)
	} else {
		err = p.tmpl.ExecuteTemplate(&buf, p.name, data)
	}
	if err != nil {
		p.logger.Error("template render failed", "template", p.name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(buf.Bytes())
	}
}
