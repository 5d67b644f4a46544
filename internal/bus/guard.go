package bus

import (
	"sync"
	"time"
)

// ThresholdGuard is a sliding-occurrence circuit breaker gating noisy alert
// logging. It never alters delivery semantics; it only answers whether the
// configured occurrence rate has been reached within the live window.
type ThresholdGuard struct {
	mu     sync.Mutex
	window time.Duration
	limit  int

	first time.Time
	count int

	now func() time.Time
}

// NewThresholdGuard builds a guard tripping once limit occurrences land
// within a single window.
func NewThresholdGuard(window time.Duration, limit int) *ThresholdGuard {
	return &ThresholdGuard{window: window, limit: limit, now: time.Now}
}

// RecordAndCheck registers one occurrence and reports whether the guard is
// tripped. A call arriving after the window expired restarts the window with
// itself as the first occurrence.
func (g *ThresholdGuard) RecordAndCheck() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if g.first.IsZero() {
		g.first = now
		g.count = 1
	} else {
		g.count++
	}
	if now.After(g.first.Add(g.window)) {
		g.first = now
		g.count = 1
	}
	return g.count >= g.limit
}

// Reset clears the live window.
func (g *ThresholdGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.first = time.Time{}
	g.count = 0
}
