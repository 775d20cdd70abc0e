// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topics

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrInvalidName is returned for topic names that cannot be published.
var ErrInvalidName = errors.New("invalid topic name")

// ValidateName checks that topic is publishable: non-empty, valid
// UTF-8, free of wildcards and NUL characters. Filters are allowed to
// contain wildcards and are not validated here.
func ValidateName(topic string) error {
	switch {
	case topic == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case strings.ContainsAny(topic, "+#"):
		return fmt.Errorf("%w: wildcard in %q", ErrInvalidName, topic)
	case !utf8.ValidString(topic):
		return fmt.Errorf("%w: malformed UTF-8", ErrInvalidName)
	case strings.ContainsRune(topic, 0):
		return fmt.Errorf("%w: NUL character", ErrInvalidName)
	}
	return nil
}
