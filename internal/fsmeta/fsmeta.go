// Package fsmeta reads and restores file timestamps, including the creation
// (birth) time on platforms that expose it.
package fsmeta

import (
	"fmt"
	"io/fs"
	"os"
	"time"
)

// CreatedAt returns the creation time of the file at path. Platforms or
// filesystems without birth time support fall back to the modification time.
func CreatedAt(path string, info fs.FileInfo) time.Time {
	if t, ok := birthTime(path, info); ok {
		return t
	}
	return info.ModTime()
}

// SetTimes sets the access and modification times to modified and, where the
// platform allows it, the creation time to created.
func SetTimes(path string, created, modified time.Time) error {
	if err := os.Chtimes(path, modified, modified); err != nil {
		return fmt.Errorf("set times on %s: %w", path, err)
	}
	if err := setCreationTime(path, created); err != nil {
		return fmt.Errorf("set creation time on %s: %w", path, err)
	}
	return nil
}
