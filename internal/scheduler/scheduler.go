// Package scheduler fires transfer runs on a cron schedule. A tick that
// arrives while a run is still active is dropped, not queued.
package scheduler

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fruitsalade/dirsync/internal/logging"
	"github.com/fruitsalade/dirsync/internal/metrics"
	"github.com/fruitsalade/dirsync/internal/transfer"
)

// Scheduler admits each tick through a transfer.Guard and runs job.
type Scheduler struct {
	cron  *cron.Cron
	guard *transfer.Guard
	job   func()
	entry cron.EntryID
	wg    sync.WaitGroup
}

// New creates a Scheduler firing job on schedule. Ticks are serialized by
// guard, which may be shared with other callers of the same job.
func New(schedule cron.Schedule, guard *transfer.Guard, job func()) *Scheduler {
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(logging.CronLogger{}),
			cron.WithChain(cron.Recover(logging.CronLogger{})),
		),
		guard: guard,
		job:   job,
	}
	s.entry = s.cron.Schedule(schedule, cron.FuncJob(s.tick))
	return s
}

// Start begins firing ticks in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	logging.Info("scheduler started", zap.Time("next_run", s.Next()))
}

// Stop stops firing ticks and waits for active runs started by a tick or
// by RunNow to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
	logging.Info("scheduler stopped")
}

// Next returns the time of the next scheduled tick, or the zero time if
// the scheduler is not running.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// Trigger runs the job now, in the calling goroutine, unless a run is
// already active. It reports whether the job ran.
func (s *Scheduler) Trigger() bool {
	ran := s.guard.Do(s.job)
	if !ran {
		metrics.RecordTickDropped()
		logging.Warn("previous run still active, skipping this run")
	}
	return ran
}

// RunNow triggers a run in the background, outside the schedule.
func (s *Scheduler) RunNow() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		cron.Recover(logging.CronLogger{})(cron.FuncJob(s.tick)).Run()
	}()
}

func (s *Scheduler) tick() {
	if !s.Trigger() {
		return
	}
	if next := s.Next(); !next.IsZero() {
		logging.Info("next run scheduled",
			zap.Time("next_run", next),
			zap.Duration("in", time.Until(next).Round(time.Second)))
	}
}
