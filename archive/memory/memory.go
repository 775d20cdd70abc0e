// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package memory provides an in-memory archive bounded to a fixed
// number of entries. Oldest entries are evicted first.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/absmach/fluxgate/archive"
)

var _ archive.Archive = (*Archive)(nil)

// Archive is a bounded in-memory archive.
type Archive struct {
	mu      sync.RWMutex
	entries []archive.Entry
	limit   int
}

// New creates a memory archive keeping at most limit entries. A
// non-positive limit falls back to 1024.
func New(limit int) *Archive {
	if limit <= 0 {
		limit = 1024
	}
	return &Archive{limit: limit}
}

// Record appends the entry, evicting the oldest once over the limit.
func (a *Archive) Record(ctx context.Context, entry archive.Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.entries = append(a.entries, entry)
	if len(a.entries) > a.limit {
		a.entries = a.entries[len(a.entries)-a.limit:]
	}
	return nil
}

// Get returns the entry with the given ID.
func (a *Archive) Get(ctx context.Context, id string) (archive.Entry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for i := len(a.entries) - 1; i >= 0; i-- {
		if a.entries[i].ID == id {
			return a.entries[i], nil
		}
	}
	return archive.Entry{}, archive.ErrNotFound
}

// List returns up to limit entries, newest first.
func (a *Archive) List(ctx context.Context, limit int) ([]archive.Entry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	n := len(a.entries)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]archive.Entry, 0, n)
	for i := len(a.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, a.entries[i])
	}
	return out, nil
}

// Len returns the number of stored entries.
func (a *Archive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}

// Close is a no-op for the memory archive.
func (a *Archive) Close() error {
	return nil
}
