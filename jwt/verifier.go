// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/hashicorp/oauthlab/internal/strutils"
)

// DefaultLeeway is the clock skew tolerated when validating exp, nbf and iat.
const DefaultLeeway = time.Minute

// KeyMaterial is what a caller supplied to verify a token with. KeySet
// verifies signed tokens; Secret decrypts encrypted tokens and verifies
// HMAC signed tokens when no KeySet is given.
type KeyMaterial struct {
	KeySet KeySet
	Secret string
}

// Expected holds the optional issuer and audience a token must carry.
// Empty fields are not checked.
type Expected struct {
	Issuer   string
	Audience string
}

// Outcome is a successfully verified token.
type Outcome struct {
	Format Format                 `json:"tokenFormat"`
	Header map[string]interface{} `json:"header"`
	Claims map[string]interface{} `json:"claims"`
}

// Verifier verifies signed and encrypted bearer tokens.
type Verifier struct {
	now                 func() time.Time
	leeway              time.Duration
	algs                []Alg
	normalizedAudiences bool
}

// NewVerifier creates a Verifier.
// Supported options:
//   - WithNow
//   - WithLeeway
//   - WithSupportedAlgs
//   - WithNormalizedAudiences
func NewVerifier(opt ...Option) (*Verifier, error) {
	const op = "jwt.NewVerifier"
	opts := getVerifierOpts(opt...)
	if err := SupportedSigningAlgorithm(opts.withSupportedAlgs...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Verifier{
		now:                 opts.withNow,
		leeway:              opts.withLeeway,
		algs:                opts.withSupportedAlgs,
		normalizedAudiences: opts.withNormalizedAudiences,
	}, nil
}

// Verify classifies token by its segment count and verifies it with km: a
// signed token against km.KeySet (or km.Secret for HMAC), an encrypted token
// by decrypting with km.Secret. The claims are then checked for expiry and
// against exp.
func (v *Verifier) Verify(ctx context.Context, token string, km KeyMaterial, exp Expected) (*Outcome, error) {
	const op = "Verifier.Verify"
	format, err := Classify(token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	switch {
	case format == FormatJWE && km.Secret == "":
		return nil, fmt.Errorf("%s: %w: a secret is required to decrypt an encrypted token", op, ErrMissingKeyMaterial)
	case format == FormatJWS && km.KeySet == nil && km.Secret == "":
		return nil, fmt.Errorf("%s: %w: a JWKS is required to verify a signed token", op, ErrMissingKeyMaterial)
	}
	header, err := decodeHeader(token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var claims map[string]interface{}
	switch format {
	case FormatJWS:
		claims, err = v.verifySigned(ctx, token, header, km)
	case FormatJWE:
		claims, err = v.decrypt(ctx, token, header, km)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := v.validateClaims(claims, exp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Outcome{
		Format: format,
		Header: header,
		Claims: claims,
	}, nil
}

func (v *Verifier) verifySigned(ctx context.Context, token string, header map[string]interface{}, km KeyMaterial) (map[string]interface{}, error) {
	alg := Alg(headerString(header, "alg"))
	if !v.supports(alg) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlg, alg)
	}
	switch {
	case km.KeySet != nil:
		return km.KeySet.VerifySignature(ctx, token)
	case km.Secret != "" && alg.IsHMAC():
		ks, err := NewStaticKeySetFromKeys(jose.JSONWebKey{
			Key:       []byte(km.Secret),
			Algorithm: string(alg),
			Use:       "sig",
		})
		if err != nil {
			return nil, err
		}
		return ks.verify(token, v.algs)
	default:
		return nil, fmt.Errorf("%w: a JWKS is required to verify a %s signed token", ErrMissingKeyMaterial, alg)
	}
}

func (v *Verifier) decrypt(ctx context.Context, token string, header map[string]interface{}, km KeyMaterial) (map[string]interface{}, error) {
	if km.Secret == "" {
		return nil, fmt.Errorf("%w: a secret is required to decrypt an encrypted token", ErrMissingKeyMaterial)
	}
	alg, enc := headerString(header, "alg"), headerString(header, "enc")
	if !secretDecrypts(alg, enc) {
		return nil, fmt.Errorf("%w: alg %q enc %q", ErrUnsupportedAlg, alg, enc)
	}
	jwe, err := jose.ParseEncrypted(token, keyAlgorithms, contentEncryptions)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedToken, err)
	}
	payload, err := jwe.Decrypt([]byte(km.Secret))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecryptionFailed, err)
	}

	// nested token: the decrypted payload is itself a signed JWT
	if strings.EqualFold(headerString(header, "cty"), "JWT") {
		inner := strings.TrimSpace(string(payload))
		if f, err := Classify(inner); err != nil || f != FormatJWS {
			return nil, fmt.Errorf("%w: nested payload is not a signed JWT", ErrDecryptionFailed)
		}
		innerHeader, err := decodeHeader(inner)
		if err != nil {
			return nil, err
		}
		return v.verifySigned(ctx, inner, innerHeader, km)
	}

	claims, err := decodeJSONObject(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypted payload is not a JSON claims set", ErrDecryptionFailed)
	}
	return claims, nil
}

func (v *Verifier) supports(alg Alg) bool {
	for _, a := range v.algs {
		if a == alg {
			return true
		}
	}
	return false
}

// validateClaims checks the registered time claims, with leeway, and the
// expected issuer and audience.
func (v *Verifier) validateClaims(claims map[string]interface{}, exp Expected) error {
	raw, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedToken, err)
	}
	var c josejwt.Claims
	if err := json.Unmarshal(raw, &c); err != nil {
		return fmt.Errorf("%w: invalid registered claims: %s", ErrMalformedToken, err)
	}

	now := v.now()
	if c.Expiry != nil && now.After(c.Expiry.Time().Add(v.leeway)) {
		return fmt.Errorf("%w: expired at %s", ErrExpired, c.Expiry.Time().UTC().Format(time.RFC3339))
	}
	if c.NotBefore != nil && now.Add(v.leeway).Before(c.NotBefore.Time()) {
		return fmt.Errorf("%w: not valid before %s", ErrNotYetValid, c.NotBefore.Time().UTC().Format(time.RFC3339))
	}
	if c.IssuedAt != nil && now.Add(v.leeway).Before(c.IssuedAt.Time()) {
		return fmt.Errorf("%w: issued in the future at %s", ErrNotYetValid, c.IssuedAt.Time().UTC().Format(time.RFC3339))
	}

	if exp.Issuer != "" && c.Issuer != exp.Issuer {
		return fmt.Errorf("%w: expected %q, got %q", ErrInvalidIssuer, exp.Issuer, c.Issuer)
	}
	if exp.Audience != "" {
		if err := validateAudience([]string{exp.Audience}, c.Audience, v.normalizedAudiences); err != nil {
			return err
		}
	}
	return nil
}

// validateAudience returns an error if audClaim does not contain any audiences
// given by expectedAudiences.
func validateAudience(expectedAudiences, audClaim []string, normalized bool) error {
	if normalized {
		for i := range expectedAudiences {
			expectedAudiences[i] = strings.TrimSuffix(expectedAudiences[i], "/")
		}
		for i := range audClaim {
			audClaim[i] = strings.TrimSuffix(audClaim[i], "/")
		}
	}
	for _, v := range expectedAudiences {
		if strutils.StrListContains(audClaim, v) {
			return nil
		}
	}
	return fmt.Errorf("%w: expected %q, got %q", ErrInvalidAudience, expectedAudiences, audClaim)
}
