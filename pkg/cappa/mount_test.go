package cappa_test

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/JaimeStill/cappa/pkg/cappa"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir %s: %v", path, err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestMountDirectory_Routes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"index.html":          "<h1>home</h1>",
		"about.html":          "<h1>about</h1>",
		"css/app.css":         "body{}",
		"docs/index.html":     "<h1>docs</h1>",
		"docs/guide/intro.md": "# intro",
		".env":                "SECRET=1",
		".git/config":         "[core]",
	})

	app := newApp(cappa.Options{})
	count, err := app.MountDirectory(root, "/")
	if err != nil {
		t.Fatalf("MountDirectory() failed: %v", err)
	}

	if count != 5 {
		t.Errorf("count = %d, want 5", count)
	}

	expected := []string{"/", "/about.html", "/css/app.css", "/docs", "/docs/guide/intro.md"}
	got := app.Endpoints()
	if len(got) != len(expected) {
		t.Fatalf("Endpoints() = %v, want %v", got, expected)
	}
	for i, route := range expected {
		if got[i] != route {
			t.Errorf("Endpoints()[%d] = %q, want %q", i, got[i], route)
		}
	}
}

func TestMountDirectory_IndexAtParentRoute(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"docs/index.html": "<h1>docs</h1>",
	})

	app := newApp(cappa.Options{})
	if _, err := app.MountDirectory(root, "/site"); err != nil {
		t.Fatalf("MountDirectory() failed: %v", err)
	}

	for _, target := range []string{"/site/docs", "/site/docs/"} {
		t.Run(target, func(t *testing.T) {
			resp := serve(app, http.MethodGet, target)
			if resp.StatusCode != http.StatusOK {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
			}
			if body := readBody(t, resp); body != "<h1>docs</h1>" {
				t.Errorf("body = %q, want %q", body, "<h1>docs</h1>")
			}
		})
	}
}

func TestMountDirectory_FirstIndexWins(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"index.htm":  "htm",
		"index.html": "html",
	})

	app := newApp(cappa.Options{})
	if _, err := app.MountDirectory(root, "/"); err != nil {
		t.Fatalf("MountDirectory() failed: %v", err)
	}

	if body := readBody(t, serve(app, http.MethodGet, "/")); body != "htm" {
		t.Errorf("body = %q, want %q", body, "htm")
	}

	if body := readBody(t, serve(app, http.MethodGet, "/index.html")); body != "html" {
		t.Errorf("body = %q, want %q", body, "html")
	}
}

func TestMountDirectory_ShowHidden(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".well-known/security.txt": "contact",
	})

	app := newApp(cappa.Options{Static: cappa.StaticOptions{ShowHidden: true}})
	if _, err := app.MountDirectory(root, "/"); err != nil {
		t.Fatalf("MountDirectory() failed: %v", err)
	}

	resp := serve(app, http.MethodGet, "/.well-known/security.txt")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	resp.Body.Close()
}

func TestMountDirectory_NotDirectory(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"file.txt": "x"})

	app := newApp(cappa.Options{})
	_, err := app.MountDirectory(filepath.Join(root, "file.txt"), "/")
	if !errors.Is(err, cappa.ErrNotDirectory) {
		t.Errorf("MountDirectory() error = %v, want ErrNotDirectory", err)
	}
}

func TestMountDirectory_MissingRoot(t *testing.T) {
	app := newApp(cappa.Options{})
	_, err := app.MountDirectory(filepath.Join(t.TempDir(), "missing"), "/")
	if err == nil {
		t.Error("MountDirectory() succeeded for missing root, want error")
	}
}

func TestMountDirectory_TraversalNotServed(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "public")
	writeTree(t, parent, map[string]string{
		"secret.txt":        "secret",
		"public/index.html": "public",
	})

	app := newApp(cappa.Options{})
	if err := app.RegisterExtension(".txt", app.StaticHandler); err != nil {
		t.Fatalf("RegisterExtension() failed: %v", err)
	}
	if _, err := app.MountDirectory(root, "/"); err != nil {
		t.Fatalf("MountDirectory() failed: %v", err)
	}

	for _, target := range []string{"/../secret.txt", "/%2e%2e/secret.txt", "/public/../../secret.txt"} {
		t.Run(target, func(t *testing.T) {
			resp := serve(app, http.MethodGet, target)
			body := readBody(t, resp)

			if resp.StatusCode != http.StatusNotFound {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
			}
			if strings.Contains(body, "secret") {
				t.Error("response leaked file outside root")
			}
		})
	}
}

func TestMountDirectory_SymlinkOutsideRootSkipped(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require elevated privileges on windows")
	}

	parent := t.TempDir()
	root := filepath.Join(parent, "public")
	writeTree(t, parent, map[string]string{
		"outside/secret.txt": "secret",
		"public/ok.txt":      "ok",
	})

	if err := os.Symlink(filepath.Join(parent, "outside", "secret.txt"), filepath.Join(root, "leak.txt")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	if err := os.Symlink(filepath.Join(parent, "outside"), filepath.Join(root, "leakdir")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	app := newApp(cappa.Options{})
	if err := app.RegisterExtension(".txt", app.StaticHandler); err != nil {
		t.Fatalf("RegisterExtension() failed: %v", err)
	}
	count, err := app.MountDirectory(root, "/")
	if err != nil {
		t.Fatalf("MountDirectory() failed: %v", err)
	}

	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	for _, target := range []string{"/leak.txt", "/leakdir/secret.txt"} {
		t.Run(target, func(t *testing.T) {
			resp := serve(app, http.MethodGet, target)
			resp.Body.Close()
			if resp.StatusCode != http.StatusNotFound {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
			}
		})
	}
}

func TestMountDirectory_SymlinkInsideRootFollowed(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require elevated privileges on windows")
	}

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"assets/logo.svg": "<svg/>",
	})

	if err := os.Symlink(filepath.Join(root, "assets"), filepath.Join(root, "img")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	if err := os.Symlink(root, filepath.Join(root, "assets", "loop")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	app := newApp(cappa.Options{})
	if _, err := app.MountDirectory(root, "/"); err != nil {
		t.Fatalf("MountDirectory() failed: %v", err)
	}

	for _, target := range []string{"/assets/logo.svg", "/img/logo.svg"} {
		t.Run(target, func(t *testing.T) {
			resp := serve(app, http.MethodGet, target)
			if body := readBody(t, resp); body != "<svg/>" {
				t.Errorf("body = %q, want %q", body, "<svg/>")
			}
		})
	}
}

func TestMountDirectory_ExtensionHandler(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"notes/todo.MD": "# todo",
		"plain.txt":     "plain",
	})

	app := newApp(cappa.Options{})
	var captured string
	err := app.RegisterExtension("md", func(path string) http.Handler {
		captured = path
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Handler", "markdown")
			w.Write([]byte("rendered"))
		})
	})
	if err != nil {
		t.Fatalf("RegisterExtension() failed: %v", err)
	}

	if _, err := app.MountDirectory(root, "/"); err != nil {
		t.Fatalf("MountDirectory() failed: %v", err)
	}

	if filepath.Base(captured) != "todo.MD" {
		t.Errorf("factory path = %q, want base todo.MD", captured)
	}

	resp := serve(app, http.MethodGet, "/notes/todo.MD")
	if resp.Header.Get("X-Handler") != "markdown" {
		t.Error("extension handler was not used")
	}
	if body := readBody(t, resp); body != "rendered" {
		t.Errorf("body = %q, want %q", body, "rendered")
	}

	resp = serve(app, http.MethodGet, "/plain.txt")
	if resp.Header.Get("X-Handler") != "" {
		t.Error("extension handler used for unregistered extension")
	}
	resp.Body.Close()
}

func TestExtensionFallback_FileAddedAfterMount(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"index.html": "home"})

	app := newApp(cappa.Options{})
	err := app.RegisterExtension(".json", func(path string) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data, _ := os.ReadFile(path)
			w.Header().Set("Content-Type", "application/json")
			w.Write(data)
		})
	})
	if err != nil {
		t.Fatalf("RegisterExtension() failed: %v", err)
	}

	if _, err := app.MountDirectory(root, "/data"); err != nil {
		t.Fatalf("MountDirectory() failed: %v", err)
	}

	writeTree(t, root, map[string]string{
		"late.json": `{"late":true}`,
		"late.txt":  "late",
	})

	resp := serve(app, http.MethodGet, "/data/late.json")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if body := readBody(t, resp); body != `{"late":true}` {
		t.Errorf("body = %q, want %q", body, `{"late":true}`)
	}

	resp = serve(app, http.MethodGet, "/data/late.txt")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unregistered extension status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}

	resp = serve(app, http.MethodGet, "/elsewhere/late.json")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unmounted route status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestMountDirectory_SymlinkKeepsLinkName(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require elevated privileges on windows")
	}

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/bundle.txt": "let x = 1;",
		"src/notes.txt":  "# notes",
	})

	if err := os.Symlink(filepath.Join(root, "src", "bundle.txt"), filepath.Join(root, "app.js")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	if err := os.Symlink(filepath.Join(root, "src", "notes.txt"), filepath.Join(root, "readme.md")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	app := newApp(cappa.Options{})
	err := app.RegisterExtension(".md", func(path string) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Handler", "markdown")
			w.Write([]byte("rendered"))
		})
	})
	if err != nil {
		t.Fatalf("RegisterExtension() failed: %v", err)
	}

	if _, err := app.MountDirectory(root, "/"); err != nil {
		t.Fatalf("MountDirectory() failed: %v", err)
	}

	resp := serve(app, http.MethodGet, "/app.js")
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "javascript") {
		t.Errorf("Content-Type = %q, want javascript from link name", ct)
	}
	if body := readBody(t, resp); body != "let x = 1;" {
		t.Errorf("body = %q, want %q", body, "let x = 1;")
	}

	resp = serve(app, http.MethodGet, "/src/bundle.txt")
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("target Content-Type = %q, want text/plain", ct)
	}
	resp.Body.Close()

	resp = serve(app, http.MethodGet, "/readme.md")
	if resp.Header.Get("X-Handler") != "markdown" {
		t.Error("extension handler not selected by link name")
	}
	resp.Body.Close()
}

func TestExtensionFallback_HandlerBuiltOnce(t *testing.T) {
	root := t.TempDir()

	app := newApp(cappa.Options{})
	var built atomic.Int32
	factory := func(path string) http.Handler {
		built.Add(1)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("fallback"))
		})
	}
	if err := app.RegisterExtension(".json", factory); err != nil {
		t.Fatalf("RegisterExtension() failed: %v", err)
	}
	if _, err := app.MountDirectory(root, "/data"); err != nil {
		t.Fatalf("MountDirectory() failed: %v", err)
	}

	writeTree(t, root, map[string]string{"late.json": "{}"})

	for n := 0; n < 3; n++ {
		resp := serve(app, http.MethodGet, "/data/late.json")
		if body := readBody(t, resp); body != "fallback" {
			t.Fatalf("body = %q, want %q", body, "fallback")
		}
	}
	if n := built.Load(); n != 1 {
		t.Errorf("factory calls = %d, want 1", n)
	}

	if err := app.RegisterExtension(".json", factory); err != nil {
		t.Fatalf("RegisterExtension() failed: %v", err)
	}
	serve(app, http.MethodGet, "/data/late.json").Body.Close()
	if n := built.Load(); n != 2 {
		t.Errorf("factory calls after re-registration = %d, want 2", n)
	}
}

func TestMountDirectory_ConcurrentWithFallback(t *testing.T) {
	root := t.TempDir()

	app := newApp(cappa.Options{})
	err := app.RegisterExtension(".json", func(path string) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		})
	})
	if err != nil {
		t.Fatalf("RegisterExtension() failed: %v", err)
	}
	if _, err := app.MountDirectory(root, "/data"); err != nil {
		t.Fatalf("MountDirectory() failed: %v", err)
	}
	writeTree(t, root, map[string]string{"late.json": "{}"})

	dirs := make([]string, 24)
	for i := range dirs {
		dirs[i] = t.TempDir()
	}

	var (
		wg       sync.WaitGroup
		failures atomic.Int32
		done     = make(chan struct{})
	)

	for n := 0; n < 4; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				resp := serve(app, http.MethodGet, "/data/late.json")
				resp.Body.Close()
				if resp.StatusCode != http.StatusOK {
					failures.Add(1)
				}
			}
		}()
	}

	var mounts sync.WaitGroup
	for i, dir := range dirs {
		i, dir := i, dir
		mounts.Add(1)
		go func() {
			defer mounts.Done()
			route := "/" + strings.Repeat("m", i%6+1) + "/" + strings.Repeat("n", i+1)
			if _, err := app.MountDirectory(dir, route); err != nil {
				failures.Add(1)
			}
		}()
	}
	mounts.Wait()
	close(done)
	wg.Wait()

	if n := failures.Load(); n != 0 {
		t.Errorf("failed requests or mounts = %d, want 0", n)
	}

	resp := serve(app, http.MethodGet, "/data/late.json")
	if body := readBody(t, resp); body != "ok" {
		t.Errorf("body = %q, want %q", body, "ok")
	}
}
