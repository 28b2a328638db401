// Package local provides a local filesystem storage backend.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/dirsync/internal/fsmeta"
	"github.com/fruitsalade/dirsync/internal/logging"
	"github.com/fruitsalade/dirsync/internal/metrics"
	"github.com/fruitsalade/dirsync/pkg/models"
)

// Config selects the upload root. With CreateDirs a missing root is
// created on startup instead of failing.
type Config struct {
	RootPath   string
	CreateDirs bool
}

// LocalBackend stores uploads as plain files below a root directory.
type LocalBackend struct {
	rootPath string
}

// New opens the upload root, creating it when allowed.
func New(cfg Config) (*LocalBackend, error) {
	if cfg.RootPath == "" {
		return nil, errors.New("local backend: upload root not set")
	}
	root, err := filepath.Abs(cfg.RootPath)
	if err != nil {
		return nil, fmt.Errorf("local backend: resolve %q: %w", cfg.RootPath, err)
	}

	switch info, statErr := os.Stat(root); {
	case statErr == nil && !info.IsDir():
		return nil, fmt.Errorf("local backend: %s exists and is not a directory", root)
	case errors.Is(statErr, fs.ErrNotExist) && cfg.CreateDirs:
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("local backend: create %s: %w", root, err)
		}
		logging.Info("created upload root", zap.String("path", root))
	case statErr != nil:
		return nil, fmt.Errorf("local backend: %w", statErr)
	}

	return &LocalBackend{rootPath: root}, nil
}

// Root returns the directory uploads are stored under.
func (b *LocalBackend) Root() string { return b.rootPath }

func (b *LocalBackend) fullPath(key string) (string, error) {
	rel := filepath.FromSlash(key)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("key %q escapes the upload root", key)
	}
	return filepath.Join(b.rootPath, rel), nil
}

// Create writes body to key with an exclusive create, so an existing file
// is never truncated. Intermediate directories are created as needed. On a
// copy error the partial file is removed.
func (b *LocalBackend) Create(_ context.Context, key string, body io.Reader) (int64, error) {
	start := time.Now()
	n, err := b.create(key, body)
	metrics.RecordStorageOperation(b.Type(), "create", time.Since(start), err == nil)
	return n, err
}

func (b *LocalBackend) create(key string, body io.Reader) (int64, error) {
	path, err := b.fullPath(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("create dirs for %s: %w", key, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		// *PathError keeps errors.Is(err, fs.ErrExist) true for the resolver.
		return 0, fmt.Errorf("create %s: %w", key, err)
	}

	n, err := io.Copy(f, body)
	if err != nil {
		f.Close()
		os.Remove(path)
		return n, fmt.Errorf("write %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return n, fmt.Errorf("close %s: %w", key, err)
	}

	logging.Debug("stored file", zap.String("key", key), zap.Int64("size", n))
	return n, nil
}

// SetTimes sets the modification time of key and, where the platform
// supports it, the creation time.
func (b *LocalBackend) SetTimes(_ context.Context, key string, times models.FileTimes) error {
	start := time.Now()
	path, err := b.fullPath(key)
	if err == nil {
		err = fsmeta.SetTimes(path, times.CreatedAt, times.ModifiedAt)
	}
	metrics.RecordStorageOperation(b.Type(), "set_times", time.Since(start), err == nil)
	if err != nil {
		return fmt.Errorf("set times %s: %w", key, err)
	}
	return nil
}

// Exists reports whether anything (file or directory) occupies key.
func (b *LocalBackend) Exists(_ context.Context, key string) (bool, error) {
	path, err := b.fullPath(key)
	if err != nil {
		return false, err
	}
	switch _, err := os.Lstat(path); {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
}

func (b *LocalBackend) Type() string { return "local" }

func (b *LocalBackend) Close() error { return nil }
