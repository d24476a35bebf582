// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/hashicorp/go-multierror"

	"github.com/hashicorp/oauthlab/endpoint"
	sdkhttp "github.com/hashicorp/oauthlab/sdk/http"
)

// Kind classifies a failed request. Each kind maps to one HTTP status.
type Kind string

const (
	KindRateLimited         Kind = "rate_limited"
	KindInvalidInput        Kind = "invalid_input"
	KindBlockedEndpoint     Kind = "blocked_endpoint"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindAuthRequired        Kind = "auth_required"
	KindTokenInvalid        Kind = "token_invalid"
	KindMissingKeyMaterial  Kind = "missing_key_material"
	KindInternal            Kind = "internal_error"
)

// StatusCode returns the HTTP status for k.
func (k Kind) StatusCode() int {
	switch k {
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindInvalidInput, KindBlockedEndpoint, KindMissingKeyMaterial:
		return http.StatusBadRequest
	case KindUpstreamUnavailable:
		return http.StatusBadGateway
	case KindAuthRequired, KindTokenInvalid:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Error is a request failure. Only the fields of its Kind are set; use the
// constructors rather than building one directly.
type Error struct {
	Kind    Kind
	Message string

	RetryAfter int      // rate_limited
	Details    []string // invalid_input
	Field      string   // blocked_endpoint
	Reason     string   // blocked_endpoint, token_invalid
	Timeout    bool     // upstream_unavailable

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// MarshalJSON renders the response body for e.
func (e *Error) MarshalJSON() ([]byte, error) {
	body := map[string]interface{}{
		"success": false,
		"code":    e.Kind,
		"error":   e.Message,
	}
	switch e.Kind {
	case KindRateLimited:
		body["retryAfter"] = e.RetryAfter
	case KindInvalidInput:
		body["details"] = e.Details
	case KindBlockedEndpoint:
		body["field"] = e.Field
		body["reason"] = e.Reason
	case KindUpstreamUnavailable:
		body["timeout"] = e.Timeout
	case KindTokenInvalid:
		body["reason"] = e.Reason
	}
	return json.Marshal(body)
}

// RateLimited reports that the client used up its window.
func RateLimited(retryAfter int) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Message:    fmt.Sprintf("too many requests, retry after %d seconds", retryAfter),
		RetryAfter: retryAfter,
	}
}

// InvalidInput reports every violation found in a request.
func InvalidInput(details ...string) *Error {
	msg := "invalid request"
	if len(details) == 1 {
		msg = details[0]
	} else if len(details) > 1 {
		msg = fmt.Sprintf("invalid request: %d problems", len(details))
	}
	return &Error{
		Kind:    KindInvalidInput,
		Message: msg,
		Details: details,
	}
}

// invalidInputFrom flattens accumulated violations.
func invalidInputFrom(err *multierror.Error) *Error {
	details := make([]string, 0, len(err.Errors))
	for _, e := range err.Errors {
		details = append(details, e.Error())
	}
	return InvalidInput(details...)
}

// BlockedEndpoint reports that the URL in field may not be requested.
func BlockedEndpoint(field string, err *endpoint.Error) *Error {
	return &Error{
		Kind:    KindBlockedEndpoint,
		Message: fmt.Sprintf("%s is not allowed: %s", field, err.Reason),
		Field:   field,
		Reason:  err.Reason,
		cause:   err,
	}
}

// UpstreamUnavailable reports a failed or timed out outbound call. Timeouts
// are detected from err and labeled as such.
func UpstreamUnavailable(what string, err error) *Error {
	e := &Error{
		Kind:    KindUpstreamUnavailable,
		Message: fmt.Sprintf("%s is unavailable", what),
		cause:   err,
	}
	if sdkhttp.IsTimeout(err) {
		e.Timeout = true
		e.Message = fmt.Sprintf("%s timed out", what)
	}
	return e
}

// AuthRequired reports a missing, empty or oversized bearer token.
func AuthRequired(msg string) *Error {
	return &Error{
		Kind:    KindAuthRequired,
		Message: msg,
	}
}

// TokenInvalid reports a token that failed verification.
func TokenInvalid(reason string, err error) *Error {
	return &Error{
		Kind:    KindTokenInvalid,
		Message: "token validation failed: " + reason,
		Reason:  reason,
		cause:   err,
	}
}

// MissingKeyMaterial reports that the token's verification path needs a key
// the request did not supply.
func MissingKeyMaterial(msg string) *Error {
	return &Error{
		Kind:    KindMissingKeyMaterial,
		Message: msg,
	}
}

func internalError(err error) *Error {
	return &Error{
		Kind:    KindInternal,
		Message: "internal server error",
		cause:   err,
	}
}

// writeError writes err as a JSON error body. Anything that is not an *Error
// is reported as an internal error without its text.
func writeError(w http.ResponseWriter, err error) {
	var e *Error
	if !errors.As(err, &e) {
		e = internalError(err)
	}
	if e.Kind == KindRateLimited {
		w.Header().Set("Retry-After", strconv.Itoa(e.RetryAfter))
	}
	writeJSON(w, e.Kind.StatusCode(), e)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
