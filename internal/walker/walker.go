// Package walker enumerates the regular files below a source root.
package walker

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fruitsalade/dirsync/internal/fsmeta"
	"github.com/fruitsalade/dirsync/internal/logging"
	"github.com/fruitsalade/dirsync/pkg/models"
)

// TraversalError reports that the source root itself cannot be read.
// It aborts the whole run.
type TraversalError struct {
	Root string
	Err  error
}

func (e *TraversalError) Error() string {
	return fmt.Sprintf("traverse %s: %v", e.Root, e.Err)
}

func (e *TraversalError) Unwrap() error { return e.Err }

// Walk checks that root is a readable directory and returns a lazy sequence
// of its regular files in lexical order, recursing into subdirectories.
// A symlinked root is followed; symlinks, special files and unreadable
// entries below the root are skipped with a warning.
func Walk(root string) (iter.Seq[models.PathCatalog], error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &TraversalError{Root: root, Err: err}
	}
	// WalkDir does not descend into a symlink, so walk its target.
	if abs, err = filepath.EvalSymlinks(abs); err != nil {
		return nil, &TraversalError{Root: root, Err: err}
	}
	if err := checkRoot(abs); err != nil {
		return nil, &TraversalError{Root: abs, Err: err}
	}

	return func(yield func(models.PathCatalog) bool) {
		filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == abs {
					logging.Error("source root became unreadable", zap.String("root", abs), zap.Error(err))
					return filepath.SkipAll
				}
				logging.Warn("skipping unreadable entry", zap.String("path", path), zap.Error(err))
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if d.IsDir() {
				return nil
			}

			if d.Type()&fs.ModeSymlink != 0 {
				logging.Warn("skipping symbolic link", zap.String("path", path))
				return nil
			}
			if !d.Type().IsRegular() {
				logging.Warn("skipping special file", zap.String("path", path), zap.Stringer("mode", d.Type()))
				return nil
			}

			info, err := d.Info()
			if err != nil {
				logging.Warn("skipping file without stat data", zap.String("path", path), zap.Error(err))
				return nil
			}

			rel, err := relativePath(abs, path)
			if err != nil {
				logging.Warn("skipping file outside root", zap.String("path", path), zap.Error(err))
				return nil
			}

			entry := models.PathCatalog{
				AbsolutePath: path,
				RelativePath: rel,
				Size:         info.Size(),
				CreatedAt:    fsmeta.CreatedAt(path, info),
				ModifiedAt:   info.ModTime(),
			}
			if !yield(entry) {
				return filepath.SkipAll
			}
			return nil
		})
	}, nil
}

// Collect drains Walk into a slice.
func Collect(root string) ([]models.PathCatalog, error) {
	seq, err := Walk(root)
	if err != nil {
		return nil, err
	}
	var entries []models.PathCatalog
	for e := range seq {
		entries = append(entries, e)
	}
	return entries, nil
}

func checkRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory")
	}
	f, err := os.Open(root)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func relativePath(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path escapes root")
	}
	return rel, nil
}
