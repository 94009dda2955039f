package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitFor(t *testing.T) {
	originalAfter := after
	defer func() { after = originalAfter }()

	var waited time.Duration
	after = func(d time.Duration) <-chan time.Time {
		waited = d
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}

	if err := WaitFor(context.Background(), 2*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if waited != 2*time.Second {
		t.Fatalf("expected wait of 2s, got %s", waited)
	}
}

func TestWaitForCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := WaitFor(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestJitter(t *testing.T) {
	for range 100 {
		got := Jitter(time.Second)
		if got < time.Second || got > 1500*time.Millisecond {
			t.Fatalf("jitter out of range: %s", got)
		}
	}

	if got := Jitter(0); got != 0 {
		t.Fatalf("expected zero delay to stay zero, got %s", got)
	}
}

func TestWaitForNonPositive(t *testing.T) {
	if err := WaitFor(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
