package insight

import (
	"sync"
	"time"
)

// DefaultGateWindow is how long an acquired gate entry blocks further runs
// for the same user before expiring on its own.
const DefaultGateWindow = 30 * time.Second

// RunGate throttles generation runs per user: at most one logically-active
// run inside the window. Check-and-set happens under one mutex, so two
// simultaneous triggers cannot both observe idle. This is a liveness
// safeguard, not a hard exclusion lock — a run outliving the window may
// overlap its successor.
type RunGate struct {
	mu     sync.Mutex
	window time.Duration
	active map[string]time.Time // user id -> expiry
	now    func() time.Time
}

// NewRunGate creates a gate with the given window; zero or negative means
// DefaultGateWindow.
func NewRunGate(window time.Duration) *RunGate {
	if window <= 0 {
		window = DefaultGateWindow
	}
	return &RunGate{
		window: window,
		active: make(map[string]time.Time),
		now:    time.Now,
	}
}

// TryAcquire attempts to start a run for the user. It returns false while a
// non-expired run is active; expired entries count as idle.
func (g *RunGate) TryAcquire(userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if expiry, ok := g.active[userID]; ok && now.Before(expiry) {
		return false
	}
	g.active[userID] = now.Add(g.window)
	return true
}

// Release marks the user's run finished, whatever the outcome.
func (g *RunGate) Release(userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, userID)
}
