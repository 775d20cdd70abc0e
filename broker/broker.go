// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package broker defines the contract between a message broker and the
// retry-priority gate. The broker calls the Hook on every inbound
// publish and on every prospective delivery; the gate republishes
// deferred messages through the Publisher. Any broker exposing these
// three surfaces can host a gate.
package broker

// Message is a routed publish. The gate snapshots exactly these fields
// when it defers a delivery; broker-internal state such as packet IDs,
// session bindings or protocol properties is deliberately absent so a
// republished message is indistinguishable from a fresh one.
type Message struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// Clone returns a deep copy whose payload does not alias the original
// buffer. Brokers are free to reuse payload buffers once a delivery
// attempt returns, so a snapshot that outlives the attempt must own
// its bytes.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	clone := &Message{
		Topic:  m.Topic,
		QoS:    m.QoS,
		Retain: m.Retain,
	}
	if m.Payload != nil {
		clone.Payload = make([]byte, len(m.Payload))
		copy(clone.Payload, m.Payload)
	}
	return clone
}

// Decision is the gate's verdict on a prospective delivery.
type Decision uint8

const (
	// Deliver lets the broker proceed with the attempt.
	Deliver Decision = iota
	// Suppress stops the attempt; the gate has taken ownership of the
	// message and will republish it later.
	Suppress
)

func (d Decision) String() string {
	if d == Suppress {
		return "suppress"
	}
	return "deliver"
}

// DeliveryControl lets the hook act on the delivery attempt under
// evaluation. It is only valid for the duration of the OnOutbound call
// that received it; retaining it is a bug.
type DeliveryControl interface {
	// Suppress marks the attempt as withheld. The broker must not
	// deliver the message to the target subscriber, nor treat the
	// attempt as failed.
	Suppress()
}

// Publisher injects a message into the broker's regular inbound path,
// exactly as if an external client had published it. Implementations
// must be safe for concurrent use; the gate republishes from timer
// goroutines.
type Publisher interface {
	Publish(msg *Message) error
}

// Hook receives broker traffic callbacks. Implementations must be safe
// for concurrent use and must never block: brokers call these on hot
// paths.
type Hook interface {
	// OnInbound observes a message entering the broker. It cannot
	// reject or modify the message.
	OnInbound(msg *Message)

	// OnOutbound evaluates one prospective delivery of msg to a single
	// subscriber and returns the verdict. A broker that honors ctl
	// does not need to inspect the returned Decision; it is returned
	// for brokers that prefer a value over a callback.
	OnOutbound(msg *Message, ctl DeliveryControl) Decision
}
