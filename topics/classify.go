// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package topics provides routing-key classification and MQTT-style
// filter matching for the gate and its delivery harnesses.
package topics

import "strings"

// RetrySegment is the literal path segment that marks a message as a
// retried delivery. Matching is exact and case sensitive: "Retry" or
// "retries" do not qualify.
const RetrySegment = "retry"

// Class is the delivery class of a routing key.
type Class uint8

const (
	// ClassNormal is first-attempt traffic, subject to gating.
	ClassNormal Class = iota
	// ClassRetry is redelivery traffic, exempt from gating.
	ClassRetry
)

func (c Class) String() string {
	if c == ClassRetry {
		return "retry"
	}
	return "normal"
}

// Classify splits the topic on '/' and returns ClassRetry when any
// segment equals RetrySegment. Empty or otherwise malformed topics
// classify as normal; classification never fails.
func Classify(topic string) Class {
	rest := topic
	for {
		i := strings.IndexByte(rest, '/')
		if i < 0 {
			if rest == RetrySegment {
				return ClassRetry
			}
			return ClassNormal
		}
		if rest[:i] == RetrySegment {
			return ClassRetry
		}
		rest = rest[i+1:]
	}
}

// IsRetry is shorthand for Classify(topic) == ClassRetry.
func IsRetry(topic string) bool {
	return Classify(topic) == ClassRetry
}
