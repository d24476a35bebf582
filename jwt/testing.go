// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"strings"
	"testing"

	"github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
)

// TestGenerateKeys will generate a test key pair for alg, labeled with kid.
func TestGenerateKeys(t *testing.T, alg Alg, kid string) (pub, priv jose.JSONWebKey) {
	t.Helper()
	require := require.New(t)

	var signer crypto.Signer
	var err error
	switch {
	case strings.HasPrefix(string(alg), "RS"), strings.HasPrefix(string(alg), "PS"):
		signer, err = rsa.GenerateKey(rand.Reader, 2048)
	case alg == ES256:
		signer, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case alg == ES384:
		signer, err = ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	case alg == ES512:
		signer, err = ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	case alg == EdDSA:
		_, signer, err = ed25519.GenerateKey(rand.Reader)
	default:
		require.FailNowf("unsupported alg", "%s has no key pair", alg)
	}
	require.NoError(err)

	priv = jose.JSONWebKey{Key: signer, KeyID: kid, Algorithm: string(alg), Use: "sig"}
	pub = jose.JSONWebKey{Key: signer.Public(), KeyID: kid, Algorithm: string(alg), Use: "sig"}
	return pub, priv
}

// TestSignJWT will bundle the provided claims into a signed JWT. key is a
// private JSONWebKey, or one wrapping a []byte secret for the HS algorithms.
func TestSignJWT(t *testing.T, key jose.JSONWebKey, alg Alg, claims josejwt.Claims, privateClaims interface{}) string {
	t.Helper()
	require := require.New(t)

	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.SignatureAlgorithm(alg), Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(err)

	b := josejwt.Signed(sig).Claims(claims)
	if privateClaims != nil {
		b = b.Claims(privateClaims)
	}
	raw, err := b.Serialize()
	require.NoError(err)
	return raw
}

// TestEncryptJWT will bundle the provided claims into a JWT encrypted with
// secret.
func TestEncryptJWT(t *testing.T, secret []byte, keyAlg jose.KeyAlgorithm, enc jose.ContentEncryption, claims josejwt.Claims, privateClaims interface{}) string {
	t.Helper()
	require := require.New(t)

	encrypter, err := jose.NewEncrypter(
		enc,
		jose.Recipient{Algorithm: keyAlg, Key: secret},
		(&jose.EncrypterOptions{}).WithType("JWT"),
	)
	require.NoError(err)

	b := josejwt.Encrypted(encrypter).Claims(claims)
	if privateClaims != nil {
		b = b.Claims(privateClaims)
	}
	raw, err := b.Serialize()
	require.NoError(err)
	return raw
}

// TestJWKS will marshal the keys into a JWKS document.
func TestJWKS(t *testing.T, keys ...jose.JSONWebKey) []byte {
	t.Helper()
	b, err := json.Marshal(jose.JSONWebKeySet{Keys: keys})
	require.NoError(t, err)
	return b
}
