// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"testing"
	"time"
)

func TestGlobalAllow(t *testing.T) {
	l := NewReleaseLimiter(Config{Enabled: true, Rate: 1, Burst: 2})
	defer l.Stop()

	if !l.Allow("a/b") {
		t.Fatal("first release should be allowed")
	}
	if !l.Allow("c/d") {
		t.Fatal("second release should fit the burst")
	}
	if l.Allow("e/f") {
		t.Fatal("third release should exceed the burst")
	}
}

func TestPerTopicIsolation(t *testing.T) {
	l := NewReleaseLimiter(Config{
		Enabled:         true,
		Rate:            1,
		Burst:           1,
		PerTopic:        true,
		CleanupInterval: time.Minute,
	})
	defer l.Stop()

	if !l.Allow("service1/message") {
		t.Fatal("first release on topic should be allowed")
	}
	if l.Allow("service1/message") {
		t.Fatal("second release on same topic should be throttled")
	}
	if !l.Allow("service2/message") {
		t.Fatal("other topics should have their own bucket")
	}
}

func TestPerTopicRefill(t *testing.T) {
	l := NewReleaseLimiter(Config{
		Enabled:         true,
		Rate:            100,
		Burst:           1,
		PerTopic:        true,
		CleanupInterval: time.Minute,
	})
	defer l.Stop()

	topic := "edge/telemetry"
	if !l.Allow(topic) {
		t.Fatal("first release should be allowed")
	}
	if l.Allow(topic) {
		t.Fatal("bucket should be empty immediately after")
	}

	deadline := time.Now().Add(time.Second)
	for !l.Allow(topic) {
		if time.Now().After(deadline) {
			t.Fatal("bucket did not refill in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDropStale(t *testing.T) {
	l := NewReleaseLimiter(Config{
		Enabled:         true,
		Rate:            1,
		Burst:           1,
		PerTopic:        true,
		CleanupInterval: 10 * time.Millisecond,
	})
	defer l.Stop()

	l.Allow("short/lived")

	l.mu.Lock()
	l.perTopic["short/lived"].lastSeen = time.Now().Add(-time.Hour)
	l.mu.Unlock()

	l.dropStale()

	l.mu.Lock()
	_, ok := l.perTopic["short/lived"]
	l.mu.Unlock()
	if ok {
		t.Fatal("stale entry should have been removed")
	}
}

func TestNilLimiter(t *testing.T) {
	var l *ReleaseLimiter
	if !l.Allow("any") {
		t.Fatal("nil limiter should always allow")
	}
	l.Stop()
}

func TestStopIdempotent(t *testing.T) {
	l := NewReleaseLimiter(Config{Enabled: true, Rate: 1, Burst: 1, PerTopic: true})
	l.Stop()
	l.Stop()
}
