package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"weatherflow/internal/retry"
	"weatherflow/internal/services"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestDoConsumesExactBudget(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		calls := 0
		retried := 0
		attempts, err := retry.DoWith(context.Background(), retry.Policy{MaxAttempts: n}, retry.Options{
			Sleep:   noSleep,
			OnRetry: func(int, error) { retried++ },
		}, func(context.Context, int) error {
			calls++
			return errors.New("still failing")
		})
		if err == nil {
			t.Fatalf("budget %d: expected failure", n)
		}
		if calls != n || attempts != n {
			t.Fatalf("budget %d: expected %d calls, got calls=%d attempts=%d", n, n, calls, attempts)
		}
		if retried != n-1 {
			t.Fatalf("budget %d: expected %d retries, got %d", n, n-1, retried)
		}
	}
}

func TestDoStopsOnSuccess(t *testing.T) {
	calls := 0
	attempts, err := retry.DoWith(context.Background(), retry.Policy{MaxAttempts: 5}, retry.Options{Sleep: noSleep},
		func(_ context.Context, attempt int) error {
			calls++
			if attempt < 3 {
				return errors.New("not yet")
			}
			return nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 || calls != 3 {
		t.Fatalf("expected 3 attempts, got %d (calls %d)", attempts, calls)
	}
}

func TestDoDoesNotRetryConfigurationOrPermanent(t *testing.T) {
	cases := map[string]error{
		"configuration": services.Wrap(services.ErrConfiguration, "stage", "op", "bad", nil),
		"permanent":     retry.Permanent(errors.New("node down")),
	}
	for name, failure := range cases {
		t.Run(name, func(t *testing.T) {
			calls := 0
			attempts, err := retry.DoWith(context.Background(), retry.Policy{MaxAttempts: 4}, retry.Options{Sleep: noSleep},
				func(context.Context, int) error {
					calls++
					return failure
				})
			if err == nil || calls != 1 || attempts != 1 {
				t.Fatalf("expected single failed attempt, got calls=%d attempts=%d err=%v", calls, attempts, err)
			}
		})
	}
}

func TestDoAppliesAttemptTimeout(t *testing.T) {
	_, err := retry.Do(context.Background(), retry.Policy{MaxAttempts: 1, AttemptTimeout: 10 * time.Millisecond},
		func(ctx context.Context, _ int) error {
			<-ctx.Done()
			return ctx.Err()
		})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := retry.Do(ctx, retry.Policy{MaxAttempts: 3, Delay: time.Hour}, func(context.Context, int) error {
		calls++
		cancel()
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected cancellation to stop after first attempt, got %d calls", calls)
	}
}

func TestSecondsPolicy(t *testing.T) {
	p := retry.Seconds(3, 5, 300)
	if p.MaxAttempts != 3 || p.Delay != 5*time.Second || p.AttemptTimeout != 300*time.Second {
		t.Fatalf("unexpected policy %+v", p)
	}
}
