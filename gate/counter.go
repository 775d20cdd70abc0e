// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package gate

import "sync/atomic"

// PendingCounter counts retry-class messages that entered the broker
// and have not yet completed an outbound delivery attempt. It is the
// single piece of state the gating decision reads.
type PendingCounter struct {
	n atomic.Int64
}

// Inc raises the count and returns the new value.
func (c *PendingCounter) Inc() int64 {
	return c.n.Add(1)
}

// Dec lowers the count by one, clamped at zero. It returns the new
// value and whether a decrement actually happened; false means the
// counter was already zero, which indicates bookkeeping drift between
// inbound and outbound observations.
func (c *PendingCounter) Dec() (int64, bool) {
	for {
		cur := c.n.Load()
		if cur <= 0 {
			return 0, false
		}
		if c.n.CompareAndSwap(cur, cur-1) {
			return cur - 1, true
		}
	}
}

// Load returns the current count.
func (c *PendingCounter) Load() int64 {
	return c.n.Load()
}

// Reset zeroes the counter and returns the value it held.
func (c *PendingCounter) Reset() int64 {
	return c.n.Swap(0)
}
