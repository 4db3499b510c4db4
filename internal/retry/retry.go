// Package retry runs an operation with exponential backoff between attempts.
package retry

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// ErrRetriesExhausted is returned when every attempt was transient but none
// produced an error worth reporting.
var ErrRetriesExhausted = eris.New("retries exhausted")

// Outcome classifies a single attempt.
type Outcome int

const (
	// Done stops the loop and returns the attempt's error, nil on success.
	Done Outcome = iota
	// Retry schedules another attempt if any remain.
	Retry
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy bounds the number of attempts and the backoff between them.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Sleep       SleepFunc
}

// Backoff returns the wait before attempt n+1, i.e. base * 2^(n-1).
func (p Policy) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return p.Base * time.Duration(1<<(n-1))
}

// Do calls fn until it reports Done or attempts run out. fn receives the
// 1-based attempt number. When attempts run out, the last non-nil error from
// a Retry outcome is returned, else ErrRetriesExhausted.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) (Outcome, error)) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "retry cancelled")
		}
		outcome, err := fn(ctx, attempt)
		if outcome == Done {
			return err
		}
		if err != nil {
			last = err
		}
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, p.Backoff(attempt)); err != nil {
			return eris.Wrap(err, "retry cancelled")
		}
	}
	if last != nil {
		return last
	}
	return ErrRetriesExhausted
}

// Sleep waits for d, returning early with ctx's error on cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
