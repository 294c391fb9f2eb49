// Package ratelimit throttles question submissions per client.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultWindow is the minimum spacing between two submissions from one client.
const DefaultWindow = 10 * time.Second

// Memory is a fixed-window limiter keyed by client id, held in process memory.
// The timestamp only moves when a submission is allowed.
type Memory struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	now    func() time.Time
}

// NewMemory creates an in-process limiter. A non-positive window uses DefaultWindow.
func NewMemory(window time.Duration) *Memory {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Memory{
		window: window,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// TryConsume reports whether clientID may submit now and records the attempt if so.
func (m *Memory) TryConsume(_ context.Context, clientID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if prev, ok := m.last[clientID]; ok && now.Sub(prev) < m.window {
		return false
	}
	m.last[clientID] = now
	return true
}

// Sweep drops entries whose window has elapsed. It returns the number removed.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, prev := range m.last {
		if now.Sub(prev) >= m.window {
			delete(m.last, id)
			removed++
		}
	}
	return removed
}

// Run sweeps expired entries every window until ctx is done.
func (m *Memory) Run(ctx context.Context) {
	ticker := time.NewTicker(m.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

func (m *Memory) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.last)
}
