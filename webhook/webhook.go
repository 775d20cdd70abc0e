// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package webhook pushes gate lifecycle events to HTTP consumers.
// Delivery is asynchronous and lossy under pressure; the gate never
// waits for a webhook.
package webhook

import (
	"context"
	"time"

	"github.com/absmach/fluxgate/events"
)

// Notifier sends webhook notifications asynchronously.
type Notifier interface {
	// Notify queues an event for delivery (non-blocking)
	Notify(ctx context.Context, event events.Event) error

	// Close gracefully shuts down, flushing pending events
	Close() error
}

// Sender is the protocol-specific sender interface (HTTP, gRPC, etc.).
type Sender interface {
	// Send sends a webhook payload to the specified URL.
	// Returns error if the send fails.
	Send(ctx context.Context, url string, headers map[string]string, payload []byte, timeout time.Duration) error
}
