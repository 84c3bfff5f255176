package cappa

import (
	"fmt"
	"net/http"
	"path"
	"path/filepath"
	"strings"
)

// Route binds a pattern to a handler for bulk registration through a Group.
type Route struct {
	Pattern string
	Handler http.HandlerFunc
}

// Group represents a collection of routes under a common prefix.
// Children are registered beneath the group's prefix.
type Group struct {
	Prefix   string
	Routes   []Route
	Children []Group
}

// NormalizeRoute returns the canonical form of a route: a leading slash,
// no trailing slash (except for the root), and no empty, "." or ".." segments.
func NormalizeRoute(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// JoinRoute joins route segments onto base and normalizes the result.
func JoinRoute(base string, elem ...string) string {
	parts := make([]string, 0, len(elem)+1)
	parts = append(parts, NormalizeRoute(base))
	parts = append(parts, elem...)
	return NormalizeRoute(path.Join(parts...))
}

// fileRoute computes the route for a file named name inside a directory
// mounted at dirRoute. Index files collapse to the directory route.
func fileRoute(dirRoute, name string) string {
	if isIndexFile(name) {
		return NormalizeRoute(dirRoute)
	}
	return JoinRoute(dirRoute, name)
}

func isIndexFile(name string) bool {
	ext := filepath.Ext(name)
	return ext != "" && strings.TrimSuffix(name, ext) == "index"
}

// normalizeExtension lowercases ext and guarantees a leading dot.
func normalizeExtension(ext string) (string, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" || strings.ContainsAny(ext, "/.\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidExtension, ext)
	}
	return "." + ext, nil
}

// mountRelative returns the slash-separated path of route relative to a
// mount route, or false when route does not lie beneath it.
func mountRelative(mountRoute, route string) (string, bool) {
	if mountRoute == "/" {
		rel := strings.TrimPrefix(route, "/")
		return rel, rel != ""
	}
	if !strings.HasPrefix(route, mountRoute+"/") {
		return "", false
	}
	return route[len(mountRoute)+1:], true
}

func hasHiddenSegment(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
