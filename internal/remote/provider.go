// Package remote mirrors a hosted repository as a workspace through the
// provider's REST API.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/starford/folio/internal/apperr"
)

// ErrMustRecreate is returned by strict providers when an update targets a
// file that no longer exists remotely.
var ErrMustRecreate = errors.New("remote: file must be recreated")

// Capabilities describes provider semantics the adapter depends on.
type Capabilities struct {
	// RequiresVersionMarker means updates and deletes must carry the marker
	// from the last read, and a missing file cannot be updated.
	RequiresVersionMarker bool
}

// Listing is the flat file listing of a repository branch. Directory
// entries end in "/".
type Listing struct {
	Paths     []string
	Truncated bool
}

// File is one file read from a repository.
type File struct {
	Path          string
	Content       string
	VersionMarker string
}

// Provider is the REST capability of one hosted repository branch.
type Provider interface {
	Name() string
	Capabilities() Capabilities
	ListFiles(ctx context.Context) (Listing, error)
	ReadFile(ctx context.Context, path string) (File, error)
	CreateFile(ctx context.Context, path, content, message string) (marker string, err error)
	UpdateFile(ctx context.Context, path, content, marker, message string) (newMarker string, err error)
	DeleteFile(ctx context.Context, path, marker, message string) error
}

// ConflictError reports a remote write rejected because the target changed
// or disappeared.
type ConflictError struct {
	Path string
	Err  error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("remote: conflict on %s: %v", e.Path, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// Is matches apperr.ErrConflict.
func (e *ConflictError) Is(target error) bool { return target == apperr.ErrConflict }
