package cappa

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
)

// MountDirectory walks dir recursively and registers a route for every
// regular file beneath route. Files named index.<ext> are served at their
// directory's route. Symlinks resolving outside dir are skipped. It returns
// the number of files mounted.
func (a *App) MountDirectory(dir, route string) (int, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("resolve %s: %w", dir, err)
	}

	root, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return 0, fmt.Errorf("resolve %s: %w", dir, err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	route = NormalizeRoute(route)

	w := &walker{
		app:       a,
		root:      root,
		ancestors: map[string]bool{root: true},
		logger:    a.logger.With("root", root),
	}

	if err := w.walk(root, route); err != nil {
		return w.count, err
	}

	a.mu.Lock()
	mounts := append(slices.Clone(a.mounts), mount{route: route, root: root})
	sort.SliceStable(mounts, func(i, j int) bool {
		return len(mounts[i].route) > len(mounts[j].route)
	})
	a.mounts = mounts
	a.mu.Unlock()

	a.logger.Info("directory mounted", "dir", root, "route", route, "files", w.count)
	return w.count, nil
}

// fileHandler selects the extension handler for the file at path, or the
// default static responder when none is registered. The extension and
// content type come from name, which differs from path for symlinks.
func (a *App) fileHandler(path, name string) http.Handler {
	if ext, err := normalizeExtension(filepath.Ext(name)); err == nil {
		a.mu.RLock()
		factory, ok := a.extensions[ext]
		a.mu.RUnlock()
		if ok {
			return factory(path)
		}
	}
	return newStaticFile(path, name, a.static, a.logger)
}

type walker struct {
	app       *App
	root      string
	ancestors map[string]bool
	count     int
	logger    *slog.Logger
}

func (w *walker) walk(dir, route string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", dir, err)
	}

	indexed := false
	for _, entry := range entries {
		name := entry.Name()
		if !w.app.static.ShowHidden && strings.HasPrefix(name, ".") {
			continue
		}

		path := filepath.Join(dir, name)
		mode := entry.Type()

		if mode&fs.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(path)
			if err != nil {
				w.logger.Warn("skipping broken symlink", "path", path, "error", err)
				continue
			}
			if !within(w.root, resolved) {
				w.logger.Warn("skipping symlink outside root", "path", path, "target", resolved)
				continue
			}
			info, err := os.Stat(resolved)
			if err != nil {
				w.logger.Warn("skipping unreadable symlink", "path", path, "error", err)
				continue
			}
			path = resolved
			mode = info.Mode().Type()
		}

		if mode.IsDir() {
			if w.ancestors[path] {
				w.logger.Warn("skipping directory cycle", "path", path)
				continue
			}
			w.ancestors[path] = true
			err := w.walk(path, JoinRoute(route, name))
			delete(w.ancestors, path)
			if err != nil {
				return err
			}
			continue
		}

		if !mode.IsRegular() {
			continue
		}

		target := JoinRoute(route, name)
		if !indexed && isIndexFile(name) {
			target = fileRoute(route, name)
			indexed = true
		}

		w.app.RegisterEndpoint(target, w.app.fileHandler(path, name))
		w.logger.Debug("file mounted", "path", path, "route", target)
		w.count++
	}

	return nil
}

// resolveWithin joins name onto root, resolves symlinks, and verifies the
// result is still inside root. Absolute and parent-relative names are
// rejected before touching the filesystem.
func resolveWithin(root, name string) (string, error) {
	cleaned := filepath.Clean(name)
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}

	resolved, err := filepath.EvalSymlinks(filepath.Join(root, cleaned))
	if err != nil {
		return "", err
	}

	if !within(root, resolved) {
		return "", ErrOutsideRoot
	}
	return resolved, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
