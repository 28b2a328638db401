// Package models contains the data types shared by the client and the server.
package models

import "time"

// PathCatalog identifies one source file during a run.
// Entries are created by the walker, never modified and dropped when the run ends.
type PathCatalog struct {
	AbsolutePath string    `json:"absolute_path"`
	RelativePath string    `json:"relative_path"` // forward slashes, relative to the source root
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
	ModifiedAt   time.Time `json:"modified_at"`
}

// Dir returns the directory portion of RelativePath, or "" for files
// directly under the source root.
func (p PathCatalog) Dir() string {
	for i := len(p.RelativePath) - 1; i >= 0; i-- {
		if p.RelativePath[i] == '/' {
			return p.RelativePath[:i]
		}
	}
	return ""
}

// Name returns the final element of RelativePath.
func (p PathCatalog) Name() string {
	for i := len(p.RelativePath) - 1; i >= 0; i-- {
		if p.RelativePath[i] == '/' {
			return p.RelativePath[i+1:]
		}
	}
	return p.RelativePath
}

// TransferOutcome counts per-file results of a run.
// Succeeded + Failed always equals the number of regular files visited.
type TransferOutcome struct {
	Succeeded int `json:"ok"`
	Failed    int `json:"failed"`
}

// Add merges another outcome into o.
func (o *TransferOutcome) Add(other TransferOutcome) {
	o.Succeeded += other.Succeeded
	o.Failed += other.Failed
}

// Record counts a single file result.
func (o *TransferOutcome) Record(success bool) {
	if success {
		o.Succeeded++
	} else {
		o.Failed++
	}
}

// Visited returns the number of files accounted for.
func (o TransferOutcome) Visited() int {
	return o.Succeeded + o.Failed
}

// FileTimes holds the timestamps restored on a stored file.
type FileTimes struct {
	CreatedAt  time.Time
	ModifiedAt time.Time
}
