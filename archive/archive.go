// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package archive keeps a record of messages the gate had to abandon.
// The gate drops a deferred message when republishing fails or when it
// shuts down with deferrals outstanding; the archive preserves those
// messages for inspection or manual replay. Archiving is best effort
// and never influences gating decisions.
package archive

import (
	"context"
	"errors"
	"time"
)

// Reasons an entry lands in the archive.
const (
	ReasonRepublishFailed = "republish_failed"
	ReasonShutdown        = "shutdown"
)

// ErrNotFound is returned when no entry exists for the given ID.
var ErrNotFound = errors.New("archive entry not found")

// Entry is one abandoned message together with why it was abandoned.
type Entry struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Payload   []byte    `json:"payload"`
	QoS       byte      `json:"qos"`
	Retain    bool      `json:"retain"`
	Reason    string    `json:"reason"`
	Error     string    `json:"error,omitempty"`
	TaskID    uint64    `json:"task_id"`
	Attempts  int       `json:"attempts"`
	DroppedAt time.Time `json:"dropped_at"`
}

// Archive stores abandoned messages. Implementations assign Entry.ID
// when it is empty and must be safe for concurrent use.
type Archive interface {
	// Record persists an entry.
	Record(ctx context.Context, entry Entry) error

	// Get returns the entry with the given ID, or ErrNotFound.
	Get(ctx context.Context, id string) (Entry, error)

	// List returns up to limit entries, newest first. A non-positive
	// limit returns all entries.
	List(ctx context.Context, limit int) ([]Entry, error)

	// Close releases backend resources.
	Close() error
}
