package ratelimit

import (
	"context"
	"sync"
	"time"
)

// pruneEvery bounds how many Allow calls may pass between stale window sweeps.
const pruneEvery = 1024

// window is the counter for one key in one window.
type window struct {
	start time.Time
	reset time.Time
	count int64
}

// MemoryLimiter keeps fixed-window counters in process memory.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	calls   int
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]*window)}
}

// Allow counts an attempt for key in the window containing now.
func (l *MemoryLimiter) Allow(_ context.Context, key string, policy Policy, now time.Time) (Result, error) {
	if key == "" || !policy.Enabled() {
		return allowAll, nil
	}
	start := policy.windowStart(now)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.calls >= pruneEvery {
		l.calls = 0
		l.prune(now)
	}

	w := l.windows[key]
	if w == nil || !w.start.Equal(start) {
		w = &window{start: start, reset: start.Add(policy.Window)}
		l.windows[key] = w
	}
	if w.count >= int64(policy.Limit) {
		return Result{Allowed: false, Reset: w.reset}, nil
	}
	w.count++
	return decide(w.count, policy, w.reset), nil
}

// Len returns the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// prune drops windows that ended before now. Callers hold l.mu.
func (l *MemoryLimiter) prune(now time.Time) {
	for key, w := range l.windows {
		if !now.Before(w.reset) {
			delete(l.windows, key)
		}
	}
}
