// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"
	"strings"

	"github.com/go-jose/go-jose/v4"
)

// Alg represents asymmetric and symmetric signing algorithms
type Alg string

const (
	RS256 Alg = "RS256"
	RS384 Alg = "RS384"
	RS512 Alg = "RS512"
	ES256 Alg = "ES256"
	ES384 Alg = "ES384"
	ES512 Alg = "ES512"
	PS256 Alg = "PS256"
	PS384 Alg = "PS384"
	PS512 Alg = "PS512"
	EdDSA Alg = "EdDSA"
	HS256 Alg = "HS256"
	HS384 Alg = "HS384"
	HS512 Alg = "HS512"
)

var supportedAlgorithms = map[Alg]bool{
	RS256: true,
	RS384: true,
	RS512: true,
	ES256: true,
	ES384: true,
	ES512: true,
	PS256: true,
	PS384: true,
	PS512: true,
	EdDSA: true,
	HS256: true,
	HS384: true,
	HS512: true,
}

// SupportedSigningAlgorithm returns an error if any of the given Algs
// are not supported signing algorithms.
func SupportedSigningAlgorithm(algs ...Alg) error {
	for _, a := range algs {
		if !supportedAlgorithms[a] {
			return fmt.Errorf("%w: %q", ErrUnsupportedAlg, a)
		}
	}
	return nil
}

// AllAlgs returns every supported signing algorithm.
func AllAlgs() []Alg {
	return []Alg{RS256, RS384, RS512, ES256, ES384, ES512, PS256, PS384, PS512, EdDSA, HS256, HS384, HS512}
}

// IsHMAC reports whether a is a shared-secret algorithm.
func (a Alg) IsHMAC() bool {
	return strings.HasPrefix(string(a), "HS")
}

func joseSignatureAlgs(algs []Alg) []jose.SignatureAlgorithm {
	out := make([]jose.SignatureAlgorithm, 0, len(algs))
	for _, a := range algs {
		out = append(out, jose.SignatureAlgorithm(a))
	}
	return out
}

// keyAlgorithms and contentEncryptions are the JWE algorithms a shared
// secret can decrypt.
var (
	keyAlgorithms = []jose.KeyAlgorithm{
		jose.DIRECT,
		jose.A128KW,
		jose.A192KW,
		jose.A256KW,
		jose.A128GCMKW,
		jose.A192GCMKW,
		jose.A256GCMKW,
		jose.PBES2_HS256_A128KW,
		jose.PBES2_HS384_A192KW,
		jose.PBES2_HS512_A256KW,
	}
	contentEncryptions = []jose.ContentEncryption{
		jose.A128CBC_HS256,
		jose.A192CBC_HS384,
		jose.A256CBC_HS512,
		jose.A128GCM,
		jose.A192GCM,
		jose.A256GCM,
	}
)

// secretDecrypts reports whether a JWE with the given alg and enc header
// values can be decrypted with a shared secret.
func secretDecrypts(alg, enc string) bool {
	var algOK, encOK bool
	for _, a := range keyAlgorithms {
		if string(a) == alg {
			algOK = true
			break
		}
	}
	for _, e := range contentEncryptions {
		if string(e) == enc {
			encOK = true
			break
		}
	}
	return algOK && encOK
}

// keyMatchesAlg reports whether key is of the type alg signs with.
func keyMatchesAlg(key interface{}, alg Alg) bool {
	switch key.(type) {
	case *rsa.PublicKey, *rsa.PrivateKey:
		return strings.HasPrefix(string(alg), "RS") || strings.HasPrefix(string(alg), "PS")
	case *ecdsa.PublicKey, *ecdsa.PrivateKey:
		return strings.HasPrefix(string(alg), "ES")
	case ed25519.PublicKey, ed25519.PrivateKey:
		return alg == EdDSA
	case []byte:
		return alg.IsHMAC()
	default:
		return false
	}
}
