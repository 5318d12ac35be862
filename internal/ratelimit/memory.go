package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	staleThreshold  = 10 * time.Minute
	cleanupInterval = time.Minute
)

// client is the per-key limiter state.
type client struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// MemoryLimiter implements Limiter with one rate.Limiter per key.
//
// Keys not seen for staleThreshold are evicted by a background goroutine
// so the map stays bounded by the set of recently active clients.
type MemoryLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	clients map[string]*client

	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryLimiter creates a limiter allowing rps sustained requests per
// second per key with bursts of up to burst. Call Close to stop eviction.
func NewMemoryLimiter(rps float64, burst int) *MemoryLimiter {
	m := newMemoryLimiter(rps, burst, time.Now)
	go m.cleanup()
	return m
}

func newMemoryLimiter(rps float64, burst int, now func() time.Time) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		now:     now,
		clients: make(map[string]*client),
		done:    make(chan struct{}),
	}
}

// Allow reports whether the request for key fits within its limiter.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	c, ok := m.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(m.limit, m.burst)}
		m.clients[key] = c
	}
	c.lastAccess = now
	return c.limiter.AllowN(now, 1), nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictIdle(m.now())
		}
	}
}

// evictIdle drops clients idle for longer than staleThreshold as of now.
func (m *MemoryLimiter) evictIdle(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.Add(-staleThreshold)
	evicted := 0
	for key, c := range m.clients {
		if c.lastAccess.Before(cutoff) {
			delete(m.clients, key)
			evicted++
		}
	}
	return evicted
}

func (m *MemoryLimiter) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}
