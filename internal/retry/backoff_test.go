package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func fast(attempts int) *Backoff {
	return &Backoff{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
		MaxAttempts:  attempts,
	}
}

// TestBackoff_SuccessAfterRetries verifies that transient failures are
// retried and reported to OnRetry.
func TestBackoff_SuccessAfterRetries(t *testing.T) {
	b := fast(5)
	var retried []int
	b.OnRetry = func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }

	calls := 0
	err := b.Do(context.Background(), func(_ context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return fmt.Errorf("connection refused")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if fmt.Sprint(retried) != "[1 2]" {
		t.Errorf("OnRetry saw %v, want [1 2]", retried)
	}
}

// TestBackoff_Permanent verifies that permanent and fatal errors stop
// at once.
func TestBackoff_Permanent(t *testing.T) {
	authFailed := errors.New("auth failed")

	tests := []struct {
		name  string
		b     *Backoff
		err   error
		check func(error) bool
	}{
		{"wrapped", fast(5), Permanent(authFailed), func(err error) bool { return err == authFailed }},
		{"classified", &Backoff{MaxAttempts: 5, Fatal: func(err error) bool { return errors.Is(err, authFailed) }},
			fmt.Errorf("attacker: %w", authFailed), func(err error) bool { return errors.Is(err, authFailed) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := tt.b.Do(context.Background(), func(context.Context, int) error {
				calls++
				return tt.err
			})
			if !tt.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
			if calls != 1 {
				t.Errorf("expected 1 call, got %d", calls)
			}
		})
	}
}

// TestBackoff_GivesUp verifies the attempt budget.
func TestBackoff_GivesUp(t *testing.T) {
	for _, attempts := range []int{0, 1, 3} {
		calls := 0
		err := fast(attempts).Do(context.Background(), func(context.Context, int) error {
			calls++
			return fmt.Errorf("timeout")
		})
		want := attempts
		if want < 1 {
			want = 1
		}
		if calls != want {
			t.Errorf("MaxAttempts %d: %d calls, want %d", attempts, calls, want)
		}
		if err == nil || !strings.Contains(err.Error(), "timeout") {
			t.Errorf("MaxAttempts %d: error %v does not carry the last failure", attempts, err)
		}
	}
}

// TestBackoff_ContextCancelled verifies that a cancelled context ends
// the pause between attempts.
func TestBackoff_ContextCancelled(t *testing.T) {
	b := &Backoff{InitialDelay: time.Hour, MaxAttempts: 3}
	ctx, cancel := context.WithCancel(context.Background())
	b.OnRetry = func(int, error, time.Duration) { cancel() }

	err := b.Do(ctx, func(context.Context, int) error { return fmt.Errorf("refused") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// TestBackoff_Delays verifies the unjittered schedule.
func TestBackoff_Delays(t *testing.T) {
	got := ForConnect(6).Delays()
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Delays() = %v, want %v", got, want)
	}

	capped := (&Backoff{InitialDelay: 20 * time.Second, MaxAttempts: 3}).Delays()
	if fmt.Sprint(capped) != fmt.Sprint([]time.Duration{20 * time.Second, 30 * time.Second}) {
		t.Errorf("capped Delays() = %v", capped)
	}
	if d := ForConnect(1).Delays(); len(d) != 0 {
		t.Errorf("single attempt has delays %v", d)
	}
}

// TestAddJitter verifies the jitter range.
func TestAddJitter(t *testing.T) {
	base := 100 * time.Millisecond
	for i := 0; i < 200; i++ {
		j := addJitter(base)
		if j < 75*time.Millisecond || j > 125*time.Millisecond {
			t.Fatalf("jitter %v outside ±25%% of %v", j, base)
		}
	}
}
