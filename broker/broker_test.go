// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"bytes"
	"testing"
)

func TestMessageClone(t *testing.T) {
	orig := &Message{
		Topic:   "service1/message",
		Payload: []byte("hello"),
		QoS:     1,
		Retain:  true,
	}

	clone := orig.Clone()
	if clone == orig {
		t.Fatal("clone returned the same pointer")
	}
	if clone.Topic != orig.Topic || clone.QoS != orig.QoS || clone.Retain != orig.Retain {
		t.Fatalf("clone fields differ: %+v vs %+v", clone, orig)
	}
	if !bytes.Equal(clone.Payload, orig.Payload) {
		t.Fatalf("clone payload differs: %q vs %q", clone.Payload, orig.Payload)
	}

	// Mutating the original buffer must not leak into the snapshot.
	orig.Payload[0] = 'X'
	if bytes.Equal(clone.Payload, orig.Payload) {
		t.Fatal("clone payload aliases the original buffer")
	}
}

func TestMessageCloneNil(t *testing.T) {
	var m *Message
	if m.Clone() != nil {
		t.Fatal("nil message clone should be nil")
	}

	empty := &Message{Topic: "t"}
	clone := empty.Clone()
	if clone.Payload != nil {
		t.Fatal("nil payload should stay nil after clone")
	}
}

func TestDecisionString(t *testing.T) {
	if Deliver.String() != "deliver" || Suppress.String() != "suppress" {
		t.Fatalf("unexpected decision strings: %q, %q", Deliver.String(), Suppress.String())
	}
}
