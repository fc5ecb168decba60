package insight

import (
	"testing"
	"time"
)

func TestRunGate_SecondAcquireBlocked(t *testing.T) {
	g := NewRunGate(30 * time.Second)

	if !g.TryAcquire("u1") {
		t.Fatal("first acquire must succeed")
	}
	if g.TryAcquire("u1") {
		t.Error("second acquire within the window must fail")
	}
	// Other users are independent.
	if !g.TryAcquire("u2") {
		t.Error("different user must not be blocked")
	}
}

func TestRunGate_ReleaseReopens(t *testing.T) {
	g := NewRunGate(30 * time.Second)

	g.TryAcquire("u1")
	g.Release("u1")

	if !g.TryAcquire("u1") {
		t.Error("acquire after release must succeed")
	}
}

func TestRunGate_ExpiryCountsAsIdle(t *testing.T) {
	g := NewRunGate(30 * time.Second)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	if !g.TryAcquire("u1") {
		t.Fatal("first acquire must succeed")
	}

	now = now.Add(29 * time.Second)
	if g.TryAcquire("u1") {
		t.Error("acquire before expiry must fail")
	}

	now = now.Add(2 * time.Second)
	if !g.TryAcquire("u1") {
		t.Error("acquire after expiry must succeed without a release")
	}
}

func TestRunGate_ZeroWindowDefaults(t *testing.T) {
	g := NewRunGate(0)
	if g.window != DefaultGateWindow {
		t.Errorf("window = %v, want %v", g.window, DefaultGateWindow)
	}
}
