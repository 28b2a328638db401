// Package retry runs an operation with exponential backoff until it
// succeeds or fails permanently.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// Config controls the backoff.
type Config struct {
	Attempts int           // total tries, 0 = until ctx is done
	Initial  time.Duration // wait after the first failure
	Max      time.Duration // cap on a single wait, 0 = none
	Factor   float64       // growth per attempt, values below 1 mean 1
	Jitter   float64       // +/- fraction applied to each wait
}

// DefaultConfig suits probing a server that may still be starting.
func DefaultConfig() Config {
	return Config{
		Attempts: 5,
		Initial:  500 * time.Millisecond,
		Max:      10 * time.Second,
		Factor:   2,
		Jitter:   0.2,
	}
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Wait returns the pause after the given failed attempt (1-based).
func (c Config) Wait(attempt int) time.Duration {
	factor := math.Max(c.Factor, 1)
	d := float64(c.Initial) * math.Pow(factor, float64(attempt-1))
	if c.Max > 0 {
		d = math.Min(d, float64(c.Max))
	}
	if c.Jitter > 0 {
		d *= 1 + c.Jitter*(2*rand.Float64()-1)
	}
	return time.Duration(d)
}

// Do calls fn until it returns nil or a permanent error, the attempts are
// used up or ctx is done. The last error from fn is returned. notify, if
// set, is called before every pause.
func Do(ctx context.Context, cfg Config, fn func() error, notify func(attempt int, err error, wait time.Duration)) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || IsPermanent(err) {
			return err
		}
		if cfg.Attempts > 0 && attempt >= cfg.Attempts {
			return err
		}

		wait := cfg.Wait(attempt)
		if notify != nil {
			notify(attempt, err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
