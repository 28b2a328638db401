// Package transfer runs synchronization passes: walk the source tree, upload
// each file and apply the retention policy.
package transfer

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/dirsync/internal/logging"
	"github.com/fruitsalade/dirsync/internal/metrics"
	"github.com/fruitsalade/dirsync/internal/walker"
	"github.com/fruitsalade/dirsync/pkg/client"
	"github.com/fruitsalade/dirsync/pkg/models"
)

// Uploader sends one file. It must not fail by other means than Result.OK.
type Uploader interface {
	Upload(ctx context.Context, entry models.PathCatalog) client.Result
}

// Options control the retention policy.
type Options struct {
	DryRun           bool
	DeleteSourceFile bool
}

// Runner executes runs. Files are uploaded strictly one after another.
type Runner struct {
	uploader Uploader
	opts     Options
	remove   func(string) error
}

// NewRunner creates a Runner.
func NewRunner(uploader Uploader, opts Options) *Runner {
	return &Runner{
		uploader: uploader,
		opts:     opts,
		remove:   os.Remove,
	}
}

// Run performs one pass over sourceRoot. Only a walker.TraversalError (the
// root itself is unreadable) is returned; every per-file problem is counted
// and logged.
func (r *Runner) Run(ctx context.Context, sourceRoot string) (models.TransferOutcome, error) {
	var outcome models.TransferOutcome
	start := time.Now()

	entries, err := walker.Walk(sourceRoot)
	if err != nil {
		logging.Error("transfer aborted", zap.String("source", sourceRoot), zap.Error(err))
		metrics.RecordRun(0, 0, time.Since(start), true)
		return outcome, err
	}

	logging.Info("transfer started", zap.String("source", sourceRoot), zap.Bool("dry_run", r.opts.DryRun))

	for entry := range entries {
		res := r.uploader.Upload(ctx, entry)
		outcome.Record(res.OK)
		r.retain(entry, res)
	}

	duration := time.Since(start)
	metrics.RecordRun(outcome.Succeeded, outcome.Failed, duration, false)
	logging.Info("transfer finished",
		zap.Int("ok", outcome.Succeeded),
		zap.Int("failed", outcome.Failed),
		zap.Duration("duration", duration))
	return outcome, nil
}

// retain applies the retention policy. A failed upload always keeps the
// source so the next run retries it; a failed delete never turns a
// successful upload into a failure.
func (r *Runner) retain(entry models.PathCatalog, res client.Result) {
	if !res.OK || !r.opts.DeleteSourceFile {
		return
	}
	if r.opts.DryRun {
		logging.Info("dry run: would delete source file", zap.String("file", entry.AbsolutePath))
		return
	}
	if err := r.remove(entry.AbsolutePath); err != nil {
		logging.Error("failed to delete uploaded source file", zap.String("file", entry.AbsolutePath), zap.Error(err))
		return
	}
	logging.Info("deleted source file", zap.String("file", entry.AbsolutePath))
}
