// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestPendingCounterInc(t *testing.T) {
	var c PendingCounter

	if got := c.Inc(); got != 1 {
		t.Errorf("Inc() = %d, want 1", got)
	}
	if got := c.Inc(); got != 2 {
		t.Errorf("Inc() = %d, want 2", got)
	}
	if got := c.Load(); got != 2 {
		t.Errorf("Load() = %d, want 2", got)
	}
}

func TestPendingCounterDec(t *testing.T) {
	var c PendingCounter
	c.Inc()
	c.Inc()

	n, ok := c.Dec()
	if !ok || n != 1 {
		t.Errorf("Dec() = %d, %v, want 1, true", n, ok)
	}
	n, ok = c.Dec()
	if !ok || n != 0 {
		t.Errorf("Dec() = %d, %v, want 0, true", n, ok)
	}
}

func TestPendingCounterDecClampsAtZero(t *testing.T) {
	var c PendingCounter

	n, ok := c.Dec()
	if ok {
		t.Error("Dec() on zero counter reported a decrement")
	}
	if n != 0 {
		t.Errorf("Dec() = %d, want 0", n)
	}
	if got := c.Load(); got != 0 {
		t.Errorf("Load() after clamped Dec = %d, want 0", got)
	}
}

func TestPendingCounterReset(t *testing.T) {
	var c PendingCounter
	for range 5 {
		c.Inc()
	}

	if got := c.Reset(); got != 5 {
		t.Errorf("Reset() = %d, want 5", got)
	}
	if got := c.Load(); got != 0 {
		t.Errorf("Load() after Reset = %d, want 0", got)
	}
}

func TestPendingCounterConcurrentNeverNegative(t *testing.T) {
	var c PendingCounter
	var clamped atomic.Int64
	var minSeen atomic.Int64

	const workers = 8
	const perWorker = 1000

	var wg sync.WaitGroup
	for range workers {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range perWorker {
				c.Inc()
			}
		}()
		go func() {
			defer wg.Done()
			for range perWorker {
				if _, ok := c.Dec(); !ok {
					clamped.Add(1)
				}
				if n := c.Load(); n < minSeen.Load() {
					minSeen.Store(n)
				}
			}
		}()
	}
	wg.Wait()

	if minSeen.Load() < 0 {
		t.Errorf("counter observed at %d, want >= 0", minSeen.Load())
	}

	// Every clamped Dec skipped a decrement, so the skips are exactly
	// what is left over.
	if got := c.Load(); got != clamped.Load() {
		t.Errorf("Load() = %d, want %d (clamped decrements)", got, clamped.Load())
	}
}
