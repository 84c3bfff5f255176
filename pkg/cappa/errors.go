package cappa

import "errors"

// Errors returned by App registration and mounting.
var (
	// ErrNotDirectory indicates MountDirectory was given a path that is not a directory.
	ErrNotDirectory = errors.New("cappa: not a directory")

	// ErrOutsideRoot indicates a path resolves outside of its mounted root.
	// This includes ".." traversal and symlinks pointing elsewhere.
	ErrOutsideRoot = errors.New("cappa: path outside mounted root")

	// ErrInvalidExtension indicates an empty or malformed file extension.
	ErrInvalidExtension = errors.New("cappa: invalid extension")
)
