package testutil

import (
	"context"
	"testing"
	"time"
)

// DefaultTimeout bounds stream tests that do not pass their own timeout.
const DefaultTimeout = 5 * time.Second

// deadliner is the part of *testing.T that testing.TB does not expose.
type deadliner interface {
	Deadline() (time.Time, bool)
}

// Context returns a context cancelled at timeout, at the test deadline, or
// when the test ends, whichever comes first.
func Context(t testing.TB, timeout time.Duration) context.Context {
	t.Helper()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if d, ok := t.(deadliner); ok {
		if deadline, set := d.Deadline(); set {
			if remaining := time.Until(deadline) - time.Second; remaining > 0 {
				timeout = min(timeout, remaining)
			}
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// Eventually polls fn every interval until it holds, failing with msg after timeout.
func Eventually(t testing.TB, timeout, interval time.Duration, fn func() bool, msg string) {
	t.Helper()
	if msg == "" {
		msg = "condition not met before timeout"
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for !fn() {
		select {
		case <-deadline.C:
			t.Fatalf("%s", msg)
		case <-ticker.C:
		}
	}
}

// WaitDone fails the test unless done closes within timeout. Connection.Done
// and Display-style completion channels both fit.
func WaitDone(t testing.TB, done <-chan struct{}, timeout time.Duration, what string) {
	t.Helper()
	select {
	case <-done:
	case <-Context(t, timeout).Done():
		t.Fatalf("%s did not finish within %s", what, timeout)
	}
}

// Within runs fn on its own goroutine and fails the test if it does not
// return within timeout.
func Within(t testing.TB, timeout time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	WaitDone(t, done, timeout, "test body")
}
