// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package events defines the lifecycle events the gate emits to
// webhook consumers.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type constants.
const (
	TypeRetryAccepted    = "retry.accepted"
	TypeRetryDelivered   = "retry.delivered"
	TypeDeliveryDeferred = "delivery.deferred"
	TypeDeliveryRequeued = "delivery.requeued"
	TypeDeliveryReleased = "delivery.released"
	TypeMessageDropped   = "message.dropped"
	TypeCounterUnderflow = "counter.underflow"
	TypeGateStopped      = "gate.stopped"
)

// Requeue reasons carried by DeliveryRequeued.
const (
	RequeueRetriesPending = "retries_pending"
	RequeueThrottled      = "throttled"
)

// Drop reasons carried by MessageDropped.
const (
	DropRepublishFailed = "republish_failed"
	DropShutdown        = "shutdown"
)

// Event is the common interface for all webhook events.
type Event interface {
	// Type returns the event type identifier (e.g., "delivery.deferred")
	Type() string

	// Topic returns the routed topic for message events, empty for others
	Topic() string

	// Wrap wraps the event in a common envelope with metadata
	Wrap(gateID string) *Envelope
}

// Envelope is the common wrapper for all webhook events.
type Envelope struct {
	EventType string `json:"event_type"`
	EventID   string `json:"event_id"`
	Timestamp string `json:"timestamp"`
	GateID    string `json:"gate_id"`
	Data      any    `json:"data"`
}

// MarshalJSON serializes the envelope to JSON.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(*e)
}

func wrap(e Event, gateID string) *Envelope {
	return &Envelope{
		EventType: e.Type(),
		EventID:   uuid.New().String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		GateID:    gateID,
		Data:      e,
	}
}

// RetryAccepted is emitted when a retry-class message enters the
// broker and raises the pending counter.
type RetryAccepted struct {
	MessageTopic string `json:"topic"`
	Pending      int64  `json:"pending"`
}

func (e RetryAccepted) Type() string                 { return TypeRetryAccepted }
func (e RetryAccepted) Topic() string                { return e.MessageTopic }
func (e RetryAccepted) Wrap(gateID string) *Envelope { return wrap(e, gateID) }

// RetryDelivered is emitted when a retry-class message completes a
// delivery attempt and lowers the pending counter.
type RetryDelivered struct {
	MessageTopic string `json:"topic"`
	Pending      int64  `json:"pending"`
}

func (e RetryDelivered) Type() string                 { return TypeRetryDelivered }
func (e RetryDelivered) Topic() string                { return e.MessageTopic }
func (e RetryDelivered) Wrap(gateID string) *Envelope { return wrap(e, gateID) }

// DeliveryDeferred is emitted when a normal-class delivery is withheld
// because retries are pending.
type DeliveryDeferred struct {
	MessageTopic string `json:"topic"`
	QoS          byte   `json:"qos"`
	PayloadSize  int    `json:"payload_size"`
	TaskID       uint64 `json:"task_id"`
	Pending      int64  `json:"pending"`
	DelayMS      int64  `json:"delay_ms"`
}

func (e DeliveryDeferred) Type() string                 { return TypeDeliveryDeferred }
func (e DeliveryDeferred) Topic() string                { return e.MessageTopic }
func (e DeliveryDeferred) Wrap(gateID string) *Envelope { return wrap(e, gateID) }

// DeliveryRequeued is emitted when a deferred message comes due but
// cannot be released yet and is scheduled again.
type DeliveryRequeued struct {
	MessageTopic string `json:"topic"`
	TaskID       uint64 `json:"task_id"`
	Attempt      int    `json:"attempt"`
	Pending      int64  `json:"pending"`
	Reason       string `json:"reason"`
}

func (e DeliveryRequeued) Type() string                 { return TypeDeliveryRequeued }
func (e DeliveryRequeued) Topic() string                { return e.MessageTopic }
func (e DeliveryRequeued) Wrap(gateID string) *Envelope { return wrap(e, gateID) }

// DeliveryReleased is emitted when a deferred message is republished
// into the broker.
type DeliveryReleased struct {
	MessageTopic string `json:"topic"`
	TaskID       uint64 `json:"task_id"`
	Attempts     int    `json:"attempts"`
	DeferredMS   int64  `json:"deferred_ms"`
}

func (e DeliveryReleased) Type() string                 { return TypeDeliveryReleased }
func (e DeliveryReleased) Topic() string                { return e.MessageTopic }
func (e DeliveryReleased) Wrap(gateID string) *Envelope { return wrap(e, gateID) }

// MessageDropped is emitted when a deferred message is abandoned, either
// because republishing failed or because the gate shut down with the
// message still queued.
type MessageDropped struct {
	MessageTopic string `json:"topic"`
	TaskID       uint64 `json:"task_id"`
	Reason       string `json:"reason"`
	Error        string `json:"error,omitempty"`
}

func (e MessageDropped) Type() string                 { return TypeMessageDropped }
func (e MessageDropped) Topic() string                { return e.MessageTopic }
func (e MessageDropped) Wrap(gateID string) *Envelope { return wrap(e, gateID) }

// CounterUnderflow is emitted when a retry delivery would have driven
// the pending counter negative. The counter is clamped at zero; the
// event exists so operators notice the bookkeeping anomaly.
type CounterUnderflow struct {
	MessageTopic string `json:"topic"`
}

func (e CounterUnderflow) Type() string                 { return TypeCounterUnderflow }
func (e CounterUnderflow) Topic() string                { return e.MessageTopic }
func (e CounterUnderflow) Wrap(gateID string) *Envelope { return wrap(e, gateID) }

// GateStopped is emitted once when the gate shuts down.
type GateStopped struct {
	CancelledTasks   int   `json:"cancelled_tasks"`
	DiscardedRetries int64 `json:"discarded_retries"`
}

func (e GateStopped) Type() string                 { return TypeGateStopped }
func (e GateStopped) Topic() string                { return "" }
func (e GateStopped) Wrap(gateID string) *Envelope { return wrap(e, gateID) }
