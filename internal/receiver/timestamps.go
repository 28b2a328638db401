package receiver

import (
	"context"
	"time"

	"github.com/fruitsalade/dirsync/internal/metrics"
	"github.com/fruitsalade/dirsync/internal/storage"
	"github.com/fruitsalade/dirsync/pkg/models"
	"github.com/fruitsalade/dirsync/pkg/protocol"
)

// ResolveTimes parses the client-supplied timestamps. If either is missing
// or unparsable both fall back to receivedAt, and defaulted is true.
func ResolveTimes(createdAt, modifiedAt string, receivedAt time.Time) (times models.FileTimes, defaulted bool) {
	created, cErr := protocol.ParseTime(createdAt)
	modified, mErr := protocol.ParseTime(modifiedAt)
	if cErr != nil || mErr != nil {
		return models.FileTimes{CreatedAt: receivedAt, ModifiedAt: receivedAt}, true
	}
	return models.FileTimes{CreatedAt: created, ModifiedAt: modified}, false
}

// TimestampApplier restores file times on stored files.
type TimestampApplier struct {
	backend storage.Backend
}

// NewTimestampApplier creates a TimestampApplier on backend.
func NewTimestampApplier(backend storage.Backend) *TimestampApplier {
	return &TimestampApplier{backend: backend}
}

// Apply sets the times of the stored file at key.
func (a *TimestampApplier) Apply(ctx context.Context, key string, times models.FileTimes) error {
	if err := a.backend.SetTimes(ctx, key, times); err != nil {
		metrics.RecordTimestampFailure()
		return err
	}
	return nil
}
