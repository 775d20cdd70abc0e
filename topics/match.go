// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topics

import "strings"

// Match reports whether topic matches filter under MQTT wildcard
// rules: '+' matches exactly one level, '#' matches the remaining
// levels (including the parent, so "a/#" matches "a"). Topics starting
// with '$' are only matched by filters whose first level names them
// explicitly. The topic itself must not contain wildcards.
func Match(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}
	if topic[0] == '$' && (filter[0] == '+' || filter[0] == '#') {
		return false
	}
	if filter == topic {
		return true
	}

	for {
		fi := strings.IndexByte(filter, '/')
		ti := strings.IndexByte(topic, '/')

		fseg := filter
		if fi >= 0 {
			fseg = filter[:fi]
		}
		if fseg == "#" {
			return true
		}

		tseg := topic
		if ti >= 0 {
			tseg = topic[:ti]
		}
		if fseg != "+" && fseg != tseg {
			return false
		}

		switch {
		case fi < 0 && ti < 0:
			return true
		case fi < 0:
			// Filter exhausted with topic levels left over.
			return false
		case ti < 0:
			// "a/#" matches "a", "a/+" does not.
			return filter[fi+1:] == "#"
		}

		filter = filter[fi+1:]
		topic = topic[ti+1:]
	}
}
