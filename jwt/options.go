// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"context"
	"net/http"
	"time"

	sdkhttp "github.com/hashicorp/oauthlab/sdk/http"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// URLValidator vets a URL before anything is fetched from it.
type URLValidator func(ctx context.Context, rawURL string) error

type verifierOptions struct {
	withNow                 func() time.Time
	withLeeway              time.Duration
	withSupportedAlgs       []Alg
	withNormalizedAudiences bool
}

func verifierDefaults() verifierOptions {
	return verifierOptions{
		withNow:           time.Now,
		withLeeway:        DefaultLeeway,
		withSupportedAlgs: AllAlgs(),
	}
}

// getVerifierOpts gets the defaults and applies the opt overrides passed
// in.
func getVerifierOpts(opt ...Option) verifierOptions {
	opts := verifierDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

type keySetOptions struct {
	withHTTPClient      *http.Client
	withCACert          string
	withURLValidator    URLValidator
	withTimeout         time.Duration
	withMaxResponseSize int64
}

func keySetDefaults() keySetOptions {
	return keySetOptions{
		withTimeout:         sdkhttp.DefaultTimeout,
		withMaxResponseSize: sdkhttp.DefaultMaxResponseSize,
	}
}

func getKeySetOpts(opt ...Option) keySetOptions {
	opts := keySetDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// WithNow provides an optional func for determining what the current time it
// is when validating time based claims.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if v, ok := o.(*verifierOptions); ok && now != nil {
			v.withNow = now
		}
	}
}

// WithLeeway sets the clock skew tolerated for exp, nbf and iat.
func WithLeeway(d time.Duration) Option {
	return func(o interface{}) {
		if v, ok := o.(*verifierOptions); ok && d >= 0 {
			v.withLeeway = d
		}
	}
}

// WithSupportedAlgs restricts the signing algorithms a verifier accepts.
func WithSupportedAlgs(algs ...Alg) Option {
	return func(o interface{}) {
		if v, ok := o.(*verifierOptions); ok && len(algs) > 0 {
			v.withSupportedAlgs = algs
		}
	}
}

// WithNormalizedAudiences enables removing the trailing slash (if it exists) from all bound audiences
// before comparing against the aud claims.
func WithNormalizedAudiences() Option {
	return func(o interface{}) {
		if v, ok := o.(*verifierOptions); ok {
			v.withNormalizedAudiences = true
		}
	}
}

// WithHTTPClient sets the client a JSONWebKeySet fetches with. It takes
// precedence over WithCACert.
func WithHTTPClient(c *http.Client) Option {
	return func(o interface{}) {
		if v, ok := o.(*keySetOptions); ok {
			v.withHTTPClient = c
		}
	}
}

// WithCACert provides PEM encoded root certificates for verifying the JWKS
// server's certificate.
func WithCACert(caPEM string) Option {
	return func(o interface{}) {
		if v, ok := o.(*keySetOptions); ok {
			v.withCACert = caPEM
		}
	}
}

// WithURLValidator sets the check a JWKS URL must pass before it is fetched.
func WithURLValidator(fn URLValidator) Option {
	return func(o interface{}) {
		if v, ok := o.(*keySetOptions); ok {
			v.withURLValidator = fn
		}
	}
}

// WithTimeout bounds a JWKS fetch.
func WithTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if v, ok := o.(*keySetOptions); ok && d > 0 {
			v.withTimeout = d
		}
	}
}

// WithMaxResponseSize bounds the JWKS document size.
func WithMaxResponseSize(n int64) Option {
	return func(o interface{}) {
		if v, ok := o.(*keySetOptions); ok && n > 0 {
			v.withMaxResponseSize = n
		}
	}
}
