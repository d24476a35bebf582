// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package endpoint

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedURL   = errors.New("malformed URL")
	ErrNotHTTPS       = errors.New("not HTTPS")
	ErrDisallowedPort = errors.New("disallowed port")
	ErrUnresolvable   = errors.New("unresolvable hostname")
	ErrBlockedAddress = errors.New("blocked address")
)

// Reasons reported for rejections that are not a blocked address range.
const (
	ReasonMalformedURL   = "malformed URL"
	ReasonNotHTTPS       = "not HTTPS"
	ReasonDisallowedPort = "disallowed port"
	ReasonUnresolvable   = "unresolvable hostname"
)

// Error is returned when a URL must not be used for an outbound request.
// Reason is safe to show to a caller; Kind is one of the package's sentinel
// errors and is what errors.Is matches against.
type Error struct {
	URL    string
	Reason string
	Kind   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("endpoint rejected: %s", e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(rawURL, reason string, kind error) *Error {
	return &Error{URL: rawURL, Reason: reason, Kind: kind}
}
