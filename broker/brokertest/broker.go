// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package brokertest provides an in-memory broker for exercising a
// gate hook in tests without a network stack. Publish runs the
// inbound hook once and the outbound hook per matching subscriber,
// honoring suppression the way a real broker embedding the gate would.
package brokertest

import (
	"sync"

	"github.com/absmach/fluxgate/broker"
	"github.com/absmach/fluxgate/topics"
)

// Broker is a minimal in-memory pub/sub broker.
type Broker struct {
	mu     sync.Mutex
	hook   broker.Hook
	subs   []subscription
	pubErr error
}

type subscription struct {
	filter string
	fn     func(*broker.Message)
}

var _ broker.Publisher = (*Broker)(nil)

// deliveryControl records a suppression request for one delivery
// attempt.
type deliveryControl struct {
	suppressed bool
}

func (c *deliveryControl) Suppress() { c.suppressed = true }

func New() *Broker {
	return &Broker{}
}

// SetHook installs the gate hook. Pass nil to remove it.
func (b *Broker) SetHook(h broker.Hook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hook = h
}

// Subscribe registers fn for every published message whose topic
// matches filter. fn runs on the publishing goroutine.
func (b *Broker) Subscribe(filter string, fn func(*broker.Message)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{filter: filter, fn: fn})
}

// SetPublishError makes every subsequent Publish fail with err before
// any hook runs. Pass nil to restore normal operation.
func (b *Broker) SetPublishError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pubErr = err
}

// Publish routes msg to matching subscribers, running the hook's
// inbound observation first and its outbound decision once per
// matching subscriber. Suppressed deliveries are skipped; the message
// is not queued anywhere.
func (b *Broker) Publish(msg *broker.Message) error {
	b.mu.Lock()
	hook := b.hook
	pubErr := b.pubErr
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	if pubErr != nil {
		return pubErr
	}

	if hook != nil {
		hook.OnInbound(msg)
	}

	for _, sub := range subs {
		if !topics.Match(sub.filter, msg.Topic) {
			continue
		}
		if hook != nil {
			ctl := &deliveryControl{}
			if hook.OnOutbound(msg, ctl) == broker.Suppress || ctl.suppressed {
				continue
			}
		}
		sub.fn(msg.Clone())
	}

	return nil
}

// Sink collects delivered messages. Its Receive method is a
// subscriber callback.
type Sink struct {
	mu       sync.RWMutex
	messages []*broker.Message
}

func NewSink() *Sink {
	return &Sink{messages: make([]*broker.Message, 0)}
}

// Receive stores a delivered message.
func (s *Sink) Receive(msg *broker.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// Get returns all delivered messages for a topic.
func (s *Sink) Get(topic string) []*broker.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*broker.Message
	for _, msg := range s.messages {
		if msg.Topic == topic {
			result = append(result, msg)
		}
	}
	return result
}

// GetAll returns all delivered messages in delivery order.
func (s *Sink) GetAll() []*broker.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*broker.Message, len(s.messages))
	copy(result, s.messages)
	return result
}

// Clear removes all stored messages.
func (s *Sink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = s.messages[:0]
}

// Count returns the number of delivered messages.
func (s *Sink) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}
