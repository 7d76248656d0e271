// Package ratelimit provides per-client token bucket limits.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	idleTTL         = time.Hour
	cleanupInterval = 30 * time.Minute
)

// Config contains the limit applied to every client
type Config struct {
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
}

// Limiter keeps one token bucket per client key.
type Limiter struct {
	mu      sync.Mutex
	config  Config
	clients map[string]*client
	now     func() time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a new limiter
func New(config Config) *Limiter {
	return &Limiter{
		config:  config,
		clients: make(map[string]*client),
		now:     time.Now,
	}
}

// Allow reports whether a request from key may proceed.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.config.Enabled {
		return true
	}

	now := l.now()
	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond), l.config.Burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// Update applies a new limit. Existing buckets are adjusted in place.
func (l *Limiter) Update(config Config) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.config = config
	now := l.now()
	for _, c := range l.clients {
		c.limiter.SetLimitAt(now, rate.Limit(config.RequestsPerSecond))
		c.limiter.SetBurstAt(now, config.Burst)
	}
}

// Config returns the limit in effect.
func (l *Limiter) Config() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.config
}

// Cleanup removes buckets idle for longer than an hour.
func (l *Limiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idleTTL)
	removed := 0
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// Run cleans up idle buckets until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup()
		}
	}
}
