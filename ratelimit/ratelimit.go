// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit throttles how fast the gate releases deferred
// messages back into the broker. A release burst after a long blocked
// period can dwarf the inbound rate that caused the deferrals in the
// first place; the limiter spreads it out.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds release throttling configuration.
type Config struct {
	Enabled bool    `yaml:"enabled"`
	Rate    float64 `yaml:"rate"`  // releases per second
	Burst   int     `yaml:"burst"` // burst allowance

	// PerTopic applies the rate to each topic independently instead
	// of globally, so one flooded topic cannot starve the rest.
	PerTopic        bool          `yaml:"per_topic"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultConfig returns release throttling defaults. Throttling is off
// unless explicitly enabled; an unthrottled gate releases as fast as
// its redelivery timers fire.
func DefaultConfig() Config {
	return Config{
		Enabled:         false,
		Rate:            100,
		Burst:           20,
		PerTopic:        false,
		CleanupInterval: 5 * time.Minute,
	}
}

type topicEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ReleaseLimiter is a token bucket over message releases. The zero
// value is not usable; construct with NewReleaseLimiter.
type ReleaseLimiter struct {
	mu       sync.Mutex
	global   *rate.Limiter
	perTopic map[string]*topicEntry

	rate    rate.Limit
	burst   int
	cleanup time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewReleaseLimiter creates a limiter from cfg. The caller is expected
// to skip construction entirely when cfg.Enabled is false.
func NewReleaseLimiter(cfg Config) *ReleaseLimiter {
	l := &ReleaseLimiter{
		rate:    rate.Limit(cfg.Rate),
		burst:   cfg.Burst,
		cleanup: cfg.CleanupInterval,
		stopCh:  make(chan struct{}),
	}
	if cfg.PerTopic {
		l.perTopic = make(map[string]*topicEntry)
		if l.cleanup <= 0 {
			l.cleanup = DefaultConfig().CleanupInterval
		}
		go l.cleanupLoop()
	} else {
		l.global = rate.NewLimiter(l.rate, l.burst)
	}
	return l
}

// Allow reports whether a message on the given topic may be released
// now. A denied release is not dropped; the caller reschedules it.
func (l *ReleaseLimiter) Allow(topic string) bool {
	if l == nil {
		return true
	}
	if l.global != nil {
		return l.global.Allow()
	}

	l.mu.Lock()
	entry, ok := l.perTopic[topic]
	if !ok {
		entry = &topicEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.perTopic[topic] = entry
	}
	entry.lastSeen = time.Now()
	limiter := entry.limiter
	l.mu.Unlock()

	return limiter.Allow()
}

// Stop terminates the cleanup goroutine. Safe to call more than once.
func (l *ReleaseLimiter) Stop() {
	if l == nil {
		return
	}
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *ReleaseLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.dropStale()
		case <-l.stopCh:
			return
		}
	}
}

func (l *ReleaseLimiter) dropStale() {
	l.mu.Lock()
	defer l.mu.Unlock()

	threshold := time.Now().Add(-l.cleanup * 2)
	for topic, entry := range l.perTopic {
		if entry.lastSeen.Before(threshold) {
			delete(l.perTopic, topic)
		}
	}
}
