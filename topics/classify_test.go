// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topics_test

import (
	"testing"

	"github.com/absmach/fluxgate/topics"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		topic string
		want  topics.Class
	}{
		{"service1/retry/message", topics.ClassRetry},
		{"service1/message", topics.ClassNormal},
		{"retry", topics.ClassRetry},
		{"retry/anything", topics.ClassRetry},
		{"anything/retry", topics.ClassRetry},
		{"a/b/c/retry/d", topics.ClassRetry},
		{"Retry/message", topics.ClassNormal},
		{"service1/RETRY/message", topics.ClassNormal},
		{"service1/retries/message", topics.ClassNormal},
		{"service1/retryx", topics.ClassNormal},
		{"service1/xretry", topics.ClassNormal},
		{"", topics.ClassNormal},
		{"/", topics.ClassNormal},
		{"//", topics.ClassNormal},
		{"/retry", topics.ClassRetry},
		{"retry/", topics.ClassRetry},
		{"a//retry", topics.ClassRetry},
		{"$SYS/retry", topics.ClassRetry},
	}

	for _, tt := range tests {
		if got := topics.Classify(tt.topic); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.topic, got, tt.want)
		}
	}
}

func TestClassifyDeterministic(t *testing.T) {
	for range 100 {
		if !topics.IsRetry("edge/retry/telemetry") {
			t.Fatal("retry topic classified as normal")
		}
		if topics.IsRetry("edge/telemetry") {
			t.Fatal("normal topic classified as retry")
		}
	}
}

func TestClassString(t *testing.T) {
	if got := topics.ClassNormal.String(); got != "normal" {
		t.Errorf("ClassNormal.String() = %q", got)
	}
	if got := topics.ClassRetry.String(); got != "retry" {
		t.Errorf("ClassRetry.String() = %q", got)
	}
}
