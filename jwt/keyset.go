// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-jose/go-jose/v4"
	"github.com/hashicorp/go-multierror"

	sdkhttp "github.com/hashicorp/oauthlab/sdk/http"
)

// KeySet represents a set of keys that can be used to verify the signatures of JWTs.
// A KeySet is expected to be backed by a set of local or remote keys.
type KeySet interface {

	// VerifySignature parses the given JWT, verifies its signature, and returns the claims in its payload.
	VerifySignature(ctx context.Context, token string) (claims map[string]interface{}, err error)
}

// StaticKeySet verifies JWT signatures using a fixed list of JSON Web Keys.
type StaticKeySet struct {
	keys    []jose.JSONWebKey
	raw     []json.RawMessage
	skipped error
}

// jwksDocument keeps every key entry raw so that one key of an unknown type
// does not make the whole set unusable.
type jwksDocument struct {
	Keys []json.RawMessage `json:"keys"`
}

// NewStaticKeySet parses a JWKS document ({"keys":[...]}) or a single JWK.
// Entries that cannot be parsed are skipped; an error is returned only when
// no usable key remains.
func NewStaticKeySet(jwks []byte) (*StaticKeySet, error) {
	const op = "jwt.NewStaticKeySet"
	if len(jwks) == 0 {
		return nil, fmt.Errorf("%s: missing JWKS: %w", op, ErrInvalidParameter)
	}

	var doc jwksDocument
	if err := json.Unmarshal(jwks, &doc); err != nil {
		return nil, fmt.Errorf("%s: JWKS is not a JSON object: %w", op, ErrInvalidParameter)
	}
	if doc.Keys == nil {
		// a bare JWK
		var probe struct {
			Kty string `json:"kty"`
		}
		if err := json.Unmarshal(jwks, &probe); err != nil || probe.Kty == "" {
			return nil, fmt.Errorf("%s: JWKS has no \"keys\" array: %w", op, ErrInvalidParameter)
		}
		doc.Keys = []json.RawMessage{jwks}
	}

	ks := &StaticKeySet{raw: doc.Keys}
	var skipped error
	for i, raw := range doc.Keys {
		var k jose.JSONWebKey
		if err := k.UnmarshalJSON(raw); err != nil {
			skipped = multierror.Append(skipped, fmt.Errorf("key %d: %w", i, err))
			continue
		}
		ks.keys = append(ks.keys, k)
	}
	ks.skipped = skipped
	if len(ks.keys) == 0 {
		if skipped != nil {
			return nil, fmt.Errorf("%s: no usable keys in JWKS: %w: %s", op, ErrInvalidParameter, skipped)
		}
		return nil, fmt.Errorf("%s: no keys in JWKS: %w", op, ErrInvalidParameter)
	}
	return ks, nil
}

// NewStaticKeySetFromKeys returns a StaticKeySet over the given keys.
func NewStaticKeySetFromKeys(keys ...jose.JSONWebKey) (*StaticKeySet, error) {
	const op = "jwt.NewStaticKeySetFromKeys"
	if len(keys) == 0 {
		return nil, fmt.Errorf("%s: missing keys: %w", op, ErrInvalidParameter)
	}
	ks := &StaticKeySet{keys: keys}
	for _, k := range keys {
		raw, err := k.Public().MarshalJSON()
		if err != nil {
			// symmetric keys have no public form and are never published
			continue
		}
		ks.raw = append(ks.raw, raw)
	}
	return ks, nil
}

// Keys returns the parsed keys.
func (ks *StaticKeySet) Keys() []jose.JSONWebKey {
	return ks.keys
}

// RawKeys returns every entry of the source document verbatim, including
// entries that could not be parsed.
func (ks *StaticKeySet) RawKeys() []json.RawMessage {
	return ks.raw
}

// Skipped returns the parse failures of entries that were ignored, or nil.
func (ks *StaticKeySet) Skipped() error {
	return ks.skipped
}

// VerifySignature parses the given JWT, selects candidate keys by the "kid"
// and "alg" header values, and returns the claims of the first key that
// verifies the signature. The given JWT must be of the JWS compact
// serialization form.
func (ks *StaticKeySet) VerifySignature(_ context.Context, token string) (map[string]interface{}, error) {
	return ks.verify(token, AllAlgs())
}

func (ks *StaticKeySet) verify(token string, algs []Alg) (map[string]interface{}, error) {
	const op = "StaticKeySet.VerifySignature"
	jws, err := jose.ParseSigned(token, joseSignatureAlgs(algs))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrMalformedToken, err)
	}
	if len(jws.Signatures) != 1 {
		return nil, fmt.Errorf("%s: %w: expected exactly one signature", op, ErrMalformedToken)
	}
	hdr := jws.Signatures[0].Header

	candidates := ks.candidates(hdr.KeyID, hdr.Algorithm)
	if len(candidates) == 0 {
		if hdr.KeyID != "" {
			return nil, fmt.Errorf("%s: %w for kid %q", op, ErrKeyNotFound, hdr.KeyID)
		}
		return nil, fmt.Errorf("%s: %w for alg %q", op, ErrKeyNotFound, hdr.Algorithm)
	}

	for _, key := range candidates {
		payload, err := jws.Verify(key)
		if err != nil {
			continue
		}
		claims, err := decodeJSONObject(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: payload is not a JSON object", op, ErrMalformedToken)
		}
		return claims, nil
	}
	return nil, fmt.Errorf("%s: %w: no key verified the token signature", op, ErrInvalidSignature)
}

// candidates returns the verification keys eligible for kid and alg. Keys
// without a kid stay eligible for any kid. Keys published for encryption, or
// pinned to another algorithm, are never tried.
func (ks *StaticKeySet) candidates(kid, alg string) []interface{} {
	var keys []interface{}
	for _, k := range ks.keys {
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		if kid != "" && k.KeyID != "" && k.KeyID != kid {
			continue
		}
		if k.Algorithm != "" && k.Algorithm != alg {
			continue
		}
		if !keyMatchesAlg(k.Key, Alg(alg)) {
			continue
		}
		key := k.Key
		if !k.IsPublic() {
			if pub := k.Public(); pub.Key != nil {
				key = pub.Key
			}
		}
		keys = append(keys, key)
	}
	return keys
}

// JSONWebKeySet verifies JWT signatures using keys obtained from a JWKS URL.
// The document is fetched once, on first use.
type JSONWebKeySet struct {
	jwksURL string
	client  *http.Client
	opts    keySetOptions

	mu     sync.Mutex
	cached *StaticKeySet
}

// NewJSONWebKeySet returns a KeySet that verifies JWT signatures using keys
// from the JSON Web Key Set (JWKS) at the given jwksURL. The URL is checked
// with the WithURLValidator hook before every fetch.
// Supported options:
//   - WithHTTPClient
//   - WithCACert
//   - WithURLValidator
//   - WithTimeout
//   - WithMaxResponseSize
func NewJSONWebKeySet(ctx context.Context, jwksURL string, opt ...Option) (*JSONWebKeySet, error) {
	const op = "jwt.NewJSONWebKeySet"
	if jwksURL == "" {
		return nil, fmt.Errorf("%s: missing JWKS URL: %w", op, ErrInvalidParameter)
	}
	opts := getKeySetOpts(opt...)

	client := opts.withHTTPClient
	if client == nil {
		var err error
		client, err = sdkhttp.NewClient(opts.withCACert)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	return &JSONWebKeySet{
		jwksURL: jwksURL,
		client:  client,
		opts:    opts,
	}, nil
}

// URL returns the JWKS URL.
func (ks *JSONWebKeySet) URL() string {
	return ks.jwksURL
}

// Keys fetches (or returns the cached) key set.
func (ks *JSONWebKeySet) Keys(ctx context.Context) (*StaticKeySet, error) {
	const op = "JSONWebKeySet.Keys"
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.cached != nil {
		return ks.cached, nil
	}

	if ks.opts.withURLValidator != nil {
		if err := ks.opts.withURLValidator(ctx, ks.jwksURL); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	body, err := sdkhttp.FetchJSON(ctx, ks.client, ks.jwksURL, nil,
		sdkhttp.WithTimeout(ks.opts.withTimeout),
		sdkhttp.WithMaxResponseSize(ks.opts.withMaxResponseSize),
		sdkhttp.WithAccept("application/jwk-set+json, application/json"),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrKeySetUnavailable, err)
	}
	set, err := NewStaticKeySet(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrKeySetUnavailable, err)
	}
	ks.cached = set
	return set, nil
}

// VerifySignature parses the given JWT, verifies its signature using JWKS keys, and returns
// the claims in its payload. The given JWT must be of the JWS compact serialization form.
func (ks *JSONWebKeySet) VerifySignature(ctx context.Context, token string) (map[string]interface{}, error) {
	const op = "JSONWebKeySet.VerifySignature"
	set, err := ks.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return set.VerifySignature(ctx, token)
}

// IsKeySetUnavailable reports whether err came from failing to obtain a
// remote key set, as opposed to a problem with the token itself.
func IsKeySetUnavailable(err error) bool {
	return errors.Is(err, ErrKeySetUnavailable)
}

// NewStaticKeySetFromJWKS returns a StaticKeySet over an already parsed
// JSON Web Key Set.
func NewStaticKeySetFromJWKS(jwks *jose.JSONWebKeySet) (*StaticKeySet, error) {
	const op = "jwt.NewStaticKeySetFromJWKS"
	if jwks == nil {
		return nil, fmt.Errorf("%s: missing JWKS: %w", op, ErrInvalidParameter)
	}
	return NewStaticKeySetFromKeys(jwks.Keys...)
}
