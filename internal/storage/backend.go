// Package storage defines the Backend interface for received files.
package storage

import (
	"context"
	"io"
	"io/fs"

	"github.com/fruitsalade/dirsync/pkg/models"
)

// ErrExist is returned by Backend.Create when the key is already taken.
// Backends return fs.ErrExist (or an error wrapping it) so that they do not
// need to import this package.
var ErrExist = fs.ErrExist

// Backend is the interface for upload storage. Keys are forward-slash
// relative paths that have already been sanitized by the caller.
type Backend interface {
	// Create stores body under key. It never replaces an existing object:
	// if key is taken it fails with ErrExist, and it does so before
	// consuming body whenever the backend can tell up front. A failed
	// Create leaves no partial object behind. It returns the bytes written.
	Create(ctx context.Context, key string, body io.Reader) (int64, error)

	// SetTimes records the creation and modification times of key.
	SetTimes(ctx context.Context, key string, times models.FileTimes) error

	// Exists reports whether key is taken.
	Exists(ctx context.Context, key string) (bool, error)

	// Type returns the backend type identifier ("local", "s3").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}
