// Package storage defines the directory-handle capability the workspace core
// reads and writes through, with a local file system implementation and an
// in-memory double.
package storage

import (
	"context"
	"io"
)

// EntryKind distinguishes files from directories.
type EntryKind int

const (
	KindFile EntryKind = iota
	KindDirectory
)

// Entry is one child of a directory.
type Entry struct {
	Name string
	Kind EntryKind
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool { return e.Kind == KindDirectory }

// PermissionMode is the access level being queried or requested.
type PermissionMode int

const (
	ModeRead PermissionMode = iota
	ModeReadWrite
)

// Permission is the result of a permission query.
type Permission int

const (
	PermissionPrompt Permission = iota
	PermissionGranted
	PermissionDenied
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "prompt"
	}
}

// Dir is a handle to a directory.
type Dir interface {
	// Name is the display name of the directory.
	Name() string
	// Entries lists direct children.
	Entries(ctx context.Context) ([]Entry, error)
	// Dir returns the named child directory, creating it when create is set.
	Dir(ctx context.Context, name string, create bool) (Dir, error)
	// File returns the named child file, creating it when create is set.
	File(ctx context.Context, name string, create bool) (File, error)
	// Remove deletes the named child. Non-empty directories need recursive.
	Remove(ctx context.Context, name string, recursive bool) error
	// QueryPermission reports the current access state without prompting.
	QueryPermission(ctx context.Context, mode PermissionMode) (Permission, error)
	// RequestPermission asks for access; it may still be denied.
	RequestPermission(ctx context.Context, mode PermissionMode) (Permission, error)
}

// File is a handle to a file.
type File interface {
	Name() string
	// Open returns a reader over the current content.
	Open(ctx context.Context) (io.ReadCloser, error)
	// Create returns a writer that replaces the content when closed.
	Create(ctx context.Context) (io.WriteCloser, error)
}
