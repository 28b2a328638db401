package receiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/dirsync/internal/logging"
	"github.com/fruitsalade/dirsync/internal/metrics"
	"github.com/fruitsalade/dirsync/internal/storage"
)

const (
	// CollisionTimeFormat is the layout of the suffix added to a colliding
	// file name.
	CollisionTimeFormat = "20060102-150405"

	maxCollisionAttempts = 100
)

// ErrNoFreeName is returned when every candidate name is taken.
var ErrNoFreeName = errors.New("no free file name")

// SplitExt splits name at its last dot. A leading dot does not start an
// extension, so ".bashrc" has none.
func SplitExt(name string) (stem, ext string) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name, ""
	}
	return name[:i], name[i:]
}

// CollisionName returns the n-th candidate name for filename: the name
// itself for n == 0, "{stem}.{timestamp}{ext}" for n == 1 and
// "{stem}.{timestamp}-{n-1}{ext}" after that.
func CollisionName(filename string, at time.Time, n int) string {
	if n == 0 {
		return filename
	}
	stem, ext := SplitExt(filename)
	ts := at.Format(CollisionTimeFormat)
	if n == 1 {
		return fmt.Sprintf("%s.%s%s", stem, ts, ext)
	}
	return fmt.Sprintf("%s.%s-%d%s", stem, ts, n-1, ext)
}

// CollisionResolver picks final names that never replace a stored file.
type CollisionResolver struct {
	backend storage.Backend
}

// NewCollisionResolver creates a CollisionResolver on backend.
func NewCollisionResolver(backend storage.Backend) *CollisionResolver {
	return &CollisionResolver{backend: backend}
}

// Resolve returns the first candidate name for filename that is free in
// dir at the time of the check, and the candidate index it used.
func (c *CollisionResolver) Resolve(ctx context.Context, dir, filename string, at time.Time) (string, int, error) {
	for n := 0; n < maxCollisionAttempts; n++ {
		name := CollisionName(filename, at, n)
		exists, err := c.backend.Exists(ctx, joinKey(dir, name))
		if err != nil {
			return "", n, err
		}
		if !exists {
			return name, n, nil
		}
	}
	return "", maxCollisionAttempts, fmt.Errorf("%s/%s: %w", dir, filename, ErrNoFreeName)
}

// Store writes body under dir with the first free name. The existence check
// is only a hint: the write is an exclusive create, and a name taken in
// between moves on to the next candidate.
func (c *CollisionResolver) Store(ctx context.Context, dir, filename string, body io.Reader, at time.Time) (key string, size int64, err error) {
	name, n, err := c.Resolve(ctx, dir, filename, at)
	if err != nil {
		return "", 0, err
	}

	for ; n < maxCollisionAttempts; n++ {
		name = CollisionName(filename, at, n)
		key = joinKey(dir, name)
		size, err = c.backend.Create(ctx, key, body)
		if errors.Is(err, storage.ErrExist) {
			continue
		}
		if err != nil {
			return key, size, err
		}
		if n > 0 {
			metrics.RecordCollision()
			logging.Warn("file already exists, stored under a new name",
				zap.String("requested", joinKey(dir, filename)),
				zap.String("stored", key))
		}
		return key, size, nil
	}
	return "", 0, fmt.Errorf("%s: %w", joinKey(dir, filename), ErrNoFreeName)
}
