// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Format is the serialization a bearer token uses, derived from its number
// of dot separated segments.
type Format int

const (
	FormatUnknown Format = iota
	FormatJWS
	FormatJWE
)

func (f Format) String() string {
	switch f {
	case FormatJWS:
		return "JWS"
	case FormatJWE:
		return "JWE"
	default:
		return "unknown"
	}
}

// MarshalText renders the format as JWS or JWE.
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Classify decides how token must be verified: three segments is a signed
// token, five is an encrypted one. Anything else, including opaque access
// tokens, is rejected with the observed segment count.
func Classify(token string) (Format, error) {
	n := strings.Count(token, ".") + 1
	switch n {
	case 3:
		return FormatJWS, nil
	case 5:
		return FormatJWE, nil
	default:
		return FormatUnknown, fmt.Errorf("%w: expected 3 or 5 parts, got %d", ErrNotJWT, n)
	}
}

// decodeHeader decodes the protected header, the first segment of both
// serializations.
func decodeHeader(token string) (map[string]interface{}, error) {
	seg, _, _ := strings.Cut(token, ".")
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(seg, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: header is not base64url: %s", ErrMalformedToken, err)
	}
	hdr, err := decodeJSONObject(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: header is not a JSON object", ErrMalformedToken)
	}
	return hdr, nil
}

// decodeJSONObject keeps numbers as json.Number so claims are returned
// exactly as they were encoded.
func decodeJSONObject(data []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformedToken)
	}
	return m, nil
}

func headerString(hdr map[string]interface{}, name string) string {
	s, _ := hdr[name].(string)
	return s
}
