// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import "errors"

var (
	ErrInvalidParameter   = errors.New("invalid parameter")
	ErrNotJWT             = errors.New("not a valid JWT")
	ErrMalformedToken     = errors.New("malformed token")
	ErrMissingKeyMaterial = errors.New("missing key material")
	ErrUnsupportedAlg     = errors.New("unsupported algorithm")
	ErrKeyNotFound        = errors.New("no matching key found")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrDecryptionFailed   = errors.New("decryption failed")
	ErrExpired            = errors.New("token is expired")
	ErrNotYetValid        = errors.New("token is not yet valid")
	ErrInvalidIssuer      = errors.New("invalid issuer")
	ErrInvalidAudience    = errors.New("invalid audience")
	ErrKeySetUnavailable  = errors.New("key set unavailable")
)
