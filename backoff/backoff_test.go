package backoff_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Pratikkale26/Flowrge/backoff"
)

func TestConstantReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(200 * time.Millisecond)
	for attempt := 1; attempt <= 5; attempt++ {
		if got := c.Delay(attempt); got != 200*time.Millisecond {
			t.Errorf("Delay(%d) = %v, want 200ms", attempt, got)
		}
	}
}

func TestExponentialDoublesAndCaps(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{20, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestJitterStaysWithinBounds(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, 10*time.Second)
	seen := make(map[time.Duration]bool)
	for range 100 {
		d := e.Delay(3)
		if d < 0 || d > 10*time.Second {
			t.Fatalf("Delay(3) = %v, out of [0, 10s]", d)
		}
		seen[d] = true
	}
	if len(seen) < 2 {
		t.Errorf("expected jitter variance, got %d distinct values", len(seen))
	}
}

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := backoff.Retry(context.Background(), 5, backoff.NewConstant(time.Millisecond), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryReturnsLastError(t *testing.T) {
	last := errors.New("still broken")
	calls := 0
	err := backoff.Retry(context.Background(), 4, backoff.NewConstant(time.Millisecond), func(context.Context) error {
		calls++
		return last
	})
	if !errors.Is(err, last) {
		t.Fatalf("err = %v, want last error", err)
	}
	if calls != 4 {
		t.Fatalf("calls = %d, want 4", calls)
	}
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := backoff.Retry(ctx, 3, backoff.NewConstant(time.Hour), func(context.Context) error {
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
