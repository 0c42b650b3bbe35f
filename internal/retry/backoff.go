// Package retry repeats host connection attempts with exponential
// backoff until they succeed or fail for a reason retrying cannot fix.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// ── Permanent errors ─────────────────────────────────────────────────

// PermanentError marks a failure that another attempt would repeat,
// such as rejected credentials.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err has been marked as permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// ── Backoff ──────────────────────────────────────────────────────────

// Backoff describes the retry schedule of a connection.
type Backoff struct {
	// InitialDelay is the pause after the first failure (default 1s).
	InitialDelay time.Duration
	// MaxDelay caps every pause (default 30s).
	MaxDelay time.Duration
	// Multiplier grows the pause after each failure (default 2).
	Multiplier float64
	// MaxAttempts is the total number of tries including the first.
	MaxAttempts int
	// Jitter spreads each pause by up to ±25%.
	Jitter bool

	// Fatal, when set, classifies errors that must not be retried in
	// addition to those wrapped with Permanent.
	Fatal func(error) bool
	// OnRetry, when set, is told about every failed attempt that will
	// be retried and how long the next pause is.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// ForConnect returns the schedule used for host connections: attempts
// tries, one second apart at first, doubling up to half a minute.
func ForConnect(attempts int) *Backoff {
	return &Backoff{
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		MaxAttempts:  attempts,
		Jitter:       true,
	}
}

// Delays returns the pauses between the attempts of b, without jitter.
func (b *Backoff) Delays() []time.Duration {
	if b.MaxAttempts <= 1 {
		return nil
	}
	out := make([]time.Duration, 0, b.MaxAttempts-1)
	d := b.initial()
	for i := 1; i < b.MaxAttempts; i++ {
		out = append(out, d)
		d = b.next(d)
	}
	return out
}

// Do calls fn until it returns nil, returns a fatal error, the attempt
// budget runs out or ctx is done.  attempt is 1-based.  MaxAttempts
// below 1 means a single attempt.
func (b *Backoff) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := b.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := b.initial()

	for attempt := 1; ; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return errors.Unwrap(err)
		}
		if b.Fatal != nil && b.Fatal(err) {
			return err
		}
		if attempt >= attempts {
			return fmt.Errorf("giving up after %d attempt(s): %w", attempt, err)
		}

		wait := delay
		if b.Jitter {
			wait = addJitter(delay)
		}
		if b.OnRetry != nil {
			b.OnRetry(attempt, err, wait)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-t.C:
		}
		delay = b.next(delay)
	}
}

func (b *Backoff) initial() time.Duration {
	if b.InitialDelay <= 0 {
		return time.Second
	}
	return b.InitialDelay
}

func (b *Backoff) next(d time.Duration) time.Duration {
	m := b.Multiplier
	if m <= 0 {
		m = 2
	}
	max := b.MaxDelay
	if max <= 0 {
		max = 30 * time.Second
	}
	d = time.Duration(float64(d) * m)
	if d > max {
		d = max
	}
	return d
}

// addJitter spreads d by up to ±25%, never below a millisecond.
func addJitter(d time.Duration) time.Duration {
	quarter := float64(d) * 0.25
	delta := (rand.Float64() * 2 * quarter) - quarter
	return time.Duration(math.Max(float64(d)+delta, float64(time.Millisecond)))
}
