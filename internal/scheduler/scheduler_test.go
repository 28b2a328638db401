package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/fruitsalade/dirsync/internal/config"
	"github.com/fruitsalade/dirsync/internal/transfer"
)

// everySchedule fires at a fixed sub-second interval.
type everySchedule time.Duration

func (e everySchedule) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }

func TestTrigger_DroppedWhileBusy(t *testing.T) {
	var guard transfer.Guard
	var runs atomic.Int32
	schedule, err := config.ParseSchedule("*/5 * * * *")
	if err != nil {
		t.Fatal(err)
	}
	s := New(schedule, &guard, func() { runs.Add(1) })

	if !guard.TryAdmit() {
		t.Fatal("admit failed")
	}
	if s.Trigger() {
		t.Error("trigger must be dropped while a run is active")
	}
	guard.Release()

	if !s.Trigger() {
		t.Error("trigger should run when idle")
	}
	if runs.Load() != 1 {
		t.Errorf("expected exactly 1 run, got %d", runs.Load())
	}
	if guard.Busy() {
		t.Error("guard must be released after the run")
	}
}

func TestScheduler_OverlappingTicksAreDropped(t *testing.T) {
	var guard transfer.Guard
	var runs atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	s := New(everySchedule(20*time.Millisecond), &guard, func() {
		if runs.Add(1) == 1 {
			started <- struct{}{}
			<-release
		}
	})
	s.Start()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first tick never fired")
	}

	// Several ticks fire while the first run blocks.
	time.Sleep(200 * time.Millisecond)
	if got := runs.Load(); got != 1 {
		t.Errorf("expected ticks to be dropped during the active run, got %d runs", got)
	}

	close(release)
	s.Stop()
	if guard.Busy() {
		t.Error("guard must be idle after Stop")
	}
}

func TestScheduler_RecoversFromPanic(t *testing.T) {
	var guard transfer.Guard
	var runs atomic.Int32
	done := make(chan struct{}, 8)

	s := New(everySchedule(20*time.Millisecond), &guard, func() {
		n := runs.Add(1)
		done <- struct{}{}
		if n == 1 {
			panic("internal fault")
		}
	})
	s.Start()
	defer s.Stop()

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("tick %d never ran; guard busy = %v", i+1, guard.Busy())
		}
	}
}

func TestRunNow_StopWaitsForRun(t *testing.T) {
	var guard transfer.Guard
	var finished atomic.Bool
	schedule, _ := config.ParseSchedule("@yearly")

	s := New(schedule, &guard, func() {
		time.Sleep(100 * time.Millisecond)
		finished.Store(true)
	})
	s.Start()
	s.RunNow()

	deadline := time.Now().Add(5 * time.Second)
	for !guard.Busy() && !finished.Load() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	if !finished.Load() {
		t.Error("Stop returned before the run finished")
	}
}
