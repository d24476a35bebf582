// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/hashicorp/go-multierror"

	"github.com/hashicorp/oauthlab/endpoint"
)

// Input length limits.
const (
	MaxURLLength          = 2048
	MaxCodeLength         = 4096
	MaxSecretLength       = 512
	MaxCodeVerifierLength = 128
	MaxClientIDLength     = 512
	MaxBearerTokenLength  = 16384
	MaxRequestBodySize    = 256 * 1024
)

// inputChecker accumulates every violation in a request so they can be
// reported together.
type inputChecker struct {
	errs *multierror.Error
}

func (c *inputChecker) add(format string, args ...interface{}) {
	c.errs = multierror.Append(c.errs, fmt.Errorf(format, args...))
}

func (c *inputChecker) required(field, value string) bool {
	if strings.TrimSpace(value) == "" {
		c.add("%s is required", field)
		return false
	}
	return true
}

func (c *inputChecker) maxLen(field, value string, max int) bool {
	if utf8.RuneCountInString(value) > max {
		c.add("%s must be at most %d characters", field, max)
		return false
	}
	return true
}

// url checks that value parses as an absolute http(s) URL. Whether it is
// safe to call is the endpoint validator's decision.
func (c *inputChecker) url(field, value string) bool {
	if !c.maxLen(field, value, MaxURLLength) {
		return false
	}
	u, err := url.Parse(value)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		c.add("%s must be an absolute http(s) URL", field)
		return false
	}
	return true
}

// redirectURI requires https unless the URI points at localhost.
func (c *inputChecker) redirectURI(field, value string) {
	if !c.url(field, value) {
		return
	}
	u, _ := url.Parse(value)
	if u.Scheme != "https" && !endpoint.IsLocalhost(value) {
		c.add("%s must use https unless it points at localhost", field)
	}
}

func (c *inputChecker) err() *Error {
	if c.errs == nil {
		return nil
	}
	return invalidInputFrom(c.errs)
}

// decodeJSON decodes the request body into v. Unknown fields are ignored.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) *Error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return InvalidInput(fmt.Sprintf("request body must be at most %d bytes", MaxRequestBodySize))
		}
		return InvalidInput("request body must be a JSON object")
	}
	return nil
}
