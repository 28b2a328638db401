// Package protocol defines the upload wire format shared by client and server.
package protocol

import (
	"fmt"
	"time"
)

// Endpoints.
const (
	UploadPath = "/upload"
	HealthPath = "/health"
)

// Multipart field names for POST /upload.
const (
	FieldFile         = "file"
	FieldRelativePath = "relativePath"
	FieldCreatedAt    = "createdAt"
	FieldModifiedAt   = "modifiedAt"
)

// TimeFormat is ISO-8601 in UTC with millisecond precision, e.g. 2024-05-01T10:00:00.000Z.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t for a metadata field.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime parses a metadata timestamp. Fractional seconds are optional.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// StoredFile describes one file persisted by an upload.
type StoredFile struct {
	Path    string `json:"path"`
	Renamed bool   `json:"renamed"`
}

// UploadResponse is returned by POST /upload with status 200.
type UploadResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Files   []StoredFile `json:"files,omitempty"`
}

// ErrorResponse is returned on failures.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details string `json:"details,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
