// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package brokertest

import (
	"errors"
	"testing"

	"github.com/absmach/fluxgate/broker"
)

// recordingHook counts hook invocations and suppresses topics on
// demand.
type recordingHook struct {
	inbound  int
	outbound int
	suppress map[string]bool
}

func (h *recordingHook) OnInbound(msg *broker.Message) {
	h.inbound++
}

func (h *recordingHook) OnOutbound(msg *broker.Message, ctl broker.DeliveryControl) broker.Decision {
	h.outbound++
	if h.suppress[msg.Topic] {
		ctl.Suppress()
		return broker.Suppress
	}
	return broker.Deliver
}

func TestPublishRoutesToMatchingSubscribers(t *testing.T) {
	b := New()
	sink := NewSink()
	other := NewSink()
	b.Subscribe("sensors/#", sink.Receive)
	b.Subscribe("devices/+/status", other.Receive)

	if err := b.Publish(&broker.Message{Topic: "sensors/temp", Payload: []byte("21")}); err != nil {
		t.Fatalf("Publish() = %v, want nil", err)
	}

	if sink.Count() != 1 {
		t.Errorf("sink.Count() = %d, want 1", sink.Count())
	}
	if other.Count() != 0 {
		t.Errorf("other.Count() = %d, want 0", other.Count())
	}
}

func TestPublishRunsHookPerSubscriber(t *testing.T) {
	b := New()
	hook := &recordingHook{}
	b.SetHook(hook)

	s1, s2 := NewSink(), NewSink()
	b.Subscribe("a/#", s1.Receive)
	b.Subscribe("a/b", s2.Receive)
	b.Subscribe("z/#", NewSink().Receive)

	if err := b.Publish(&broker.Message{Topic: "a/b"}); err != nil {
		t.Fatalf("Publish() = %v, want nil", err)
	}

	if hook.inbound != 1 {
		t.Errorf("inbound hook ran %d times, want 1", hook.inbound)
	}
	if hook.outbound != 2 {
		t.Errorf("outbound hook ran %d times, want 2", hook.outbound)
	}
	if s1.Count() != 1 || s2.Count() != 1 {
		t.Errorf("delivered = %d, %d, want 1, 1", s1.Count(), s2.Count())
	}
}

func TestPublishHonorsSuppression(t *testing.T) {
	b := New()
	b.SetHook(&recordingHook{suppress: map[string]bool{"blocked/topic": true}})

	sink := NewSink()
	b.Subscribe("#", sink.Receive)

	if err := b.Publish(&broker.Message{Topic: "blocked/topic"}); err != nil {
		t.Fatalf("Publish() = %v, want nil", err)
	}
	if err := b.Publish(&broker.Message{Topic: "open/topic"}); err != nil {
		t.Fatalf("Publish() = %v, want nil", err)
	}

	if sink.Count() != 1 {
		t.Fatalf("sink.Count() = %d, want 1", sink.Count())
	}
	if got := sink.GetAll()[0].Topic; got != "open/topic" {
		t.Errorf("delivered topic = %q, want %q", got, "open/topic")
	}
}

func TestPublishErrorSkipsHooks(t *testing.T) {
	b := New()
	hook := &recordingHook{}
	b.SetHook(hook)
	sink := NewSink()
	b.Subscribe("#", sink.Receive)

	wantErr := errors.New("broker unavailable")
	b.SetPublishError(wantErr)

	err := b.Publish(&broker.Message{Topic: "a/b"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Publish() = %v, want %v", err, wantErr)
	}
	if hook.inbound != 0 || hook.outbound != 0 {
		t.Errorf("hooks ran %d/%d times, want 0/0", hook.inbound, hook.outbound)
	}
	if sink.Count() != 0 {
		t.Errorf("sink.Count() = %d, want 0", sink.Count())
	}

	b.SetPublishError(nil)
	if err := b.Publish(&broker.Message{Topic: "a/b"}); err != nil {
		t.Fatalf("Publish() after reset = %v, want nil", err)
	}
	if sink.Count() != 1 {
		t.Errorf("sink.Count() = %d, want 1", sink.Count())
	}
}

func TestSubscriberGetsClone(t *testing.T) {
	b := New()
	sink := NewSink()
	b.Subscribe("#", sink.Receive)

	msg := &broker.Message{Topic: "a/b", Payload: []byte("orig")}
	if err := b.Publish(msg); err != nil {
		t.Fatalf("Publish() = %v, want nil", err)
	}

	msg.Payload[0] = 'X'
	if got := string(sink.GetAll()[0].Payload); got != "orig" {
		t.Errorf("delivered payload = %q, want %q", got, "orig")
	}
}

func TestSinkGetByTopic(t *testing.T) {
	b := New()
	sink := NewSink()
	b.Subscribe("#", sink.Receive)

	topicsIn := []string{"a/1", "a/2", "a/1"}
	for _, topic := range topicsIn {
		if err := b.Publish(&broker.Message{Topic: topic}); err != nil {
			t.Fatalf("Publish(%q) = %v, want nil", topic, err)
		}
	}

	if got := len(sink.Get("a/1")); got != 2 {
		t.Errorf("Get(a/1) returned %d messages, want 2", got)
	}

	sink.Clear()
	if sink.Count() != 0 {
		t.Errorf("Count() after Clear = %d, want 0", sink.Count())
	}
}
