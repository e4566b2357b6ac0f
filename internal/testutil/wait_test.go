package testutil

import (
	"testing"
	"time"
)

func TestContextCapsTimeout(t *testing.T) {
	ctx := Context(t, 50*time.Millisecond)
	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatalf("expected a deadline")
	}
	if left := time.Until(deadline); left > 50*time.Millisecond {
		t.Fatalf("deadline %s exceeds requested timeout", left)
	}
	WaitDone(t, ctx.Done(), time.Second, "context")
}

func TestContextDefaultsTimeout(t *testing.T) {
	ctx := Context(t, 0)
	if _, ok := ctx.Deadline(); !ok {
		t.Fatalf("expected the default timeout to apply")
	}
	select {
	case <-ctx.Done():
		t.Fatalf("default context ended early")
	default:
	}
}

func TestWithinRunsBody(t *testing.T) {
	ran := false
	Within(t, time.Second, func() { ran = true })
	if !ran {
		t.Fatalf("expected body to run")
	}
}

func TestClockSteps(t *testing.T) {
	start := time.Date(2025, time.January, 9, 8, 0, 0, 0, time.UTC)
	clock := NewClock(start, time.Second)
	if got := clock.Now(); !got.Equal(start) {
		t.Fatalf("expected first reading at start, got %s", got)
	}
	clock.Advance(time.Minute)
	if got := clock.Now(); !got.Equal(start.Add(time.Minute + time.Second)) {
		t.Fatalf("unexpected reading %s", got)
	}
	frozen := NewClock(start, 0)
	frozen.Now()
	if got := frozen.Now(); !got.Equal(start) {
		t.Fatalf("expected frozen clock, got %s", got)
	}
}
