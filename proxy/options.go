// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package proxy

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hashicorp/oauthlab/endpoint"
	"github.com/hashicorp/oauthlab/jwt"
	"github.com/hashicorp/oauthlab/ratelimit"
	sdkhttp "github.com/hashicorp/oauthlab/sdk/http"
)

const (
	// DefaultUpstreamTimeout bounds every outbound call.
	DefaultUpstreamTimeout = sdkhttp.DefaultTimeout

	// DefaultMaxResponseSize bounds token, discovery and JWKS responses.
	DefaultMaxResponseSize = sdkhttp.DefaultMaxResponseSize
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

type serverOptions struct {
	withLogger          hclog.Logger
	withLimiter         *ratelimit.Limiter
	withValidator       *endpoint.Validator
	withHTTPClient      *http.Client
	withCACert          string
	withVerifier        *jwt.Verifier
	withUpstreamTimeout time.Duration
	withMaxResponseSize int64
	withRegistry        *prometheus.Registry
}

func serverDefaults() serverOptions {
	return serverOptions{
		withLogger:          hclog.NewNullLogger(),
		withUpstreamTimeout: DefaultUpstreamTimeout,
		withMaxResponseSize: DefaultMaxResponseSize,
	}
}

func getServerOpts(opt ...Option) serverOptions {
	opts := serverDefaults()
	for _, o := range opt {
		if o == nil {
			continue
		}
		o(&opts)
	}
	return opts
}

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if v, ok := o.(*serverOptions); ok && l != nil {
			v.withLogger = l
		}
	}
}

// WithLimiter sets the rate limiter. The caller keeps ownership and must
// call its Done. Without it the server creates an in-memory limiter with the
// default limit and window.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(o interface{}) {
		if v, ok := o.(*serverOptions); ok {
			v.withLimiter = l
		}
	}
}

// WithValidator sets the endpoint validator outbound URLs are checked with.
func WithValidator(val *endpoint.Validator) Option {
	return func(o interface{}) {
		if v, ok := o.(*serverOptions); ok {
			v.withValidator = val
		}
	}
}

// WithHTTPClient sets the client used for every outbound call. Without it a
// client is built whose dialer refuses blocked addresses.
func WithHTTPClient(c *http.Client) Option {
	return func(o interface{}) {
		if v, ok := o.(*serverOptions); ok {
			v.withHTTPClient = c
		}
	}
}

// WithCACert provides PEM encoded root certificates for the default
// outbound client.
func WithCACert(caPEM string) Option {
	return func(o interface{}) {
		if v, ok := o.(*serverOptions); ok {
			v.withCACert = caPEM
		}
	}
}

// WithVerifier sets the token verifier used by the resource operation.
func WithVerifier(ver *jwt.Verifier) Option {
	return func(o interface{}) {
		if v, ok := o.(*serverOptions); ok {
			v.withVerifier = ver
		}
	}
}

// WithUpstreamTimeout bounds every outbound call.
func WithUpstreamTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if v, ok := o.(*serverOptions); ok && d > 0 {
			v.withUpstreamTimeout = d
		}
	}
}

// WithMaxResponseSize bounds the size of every upstream response.
func WithMaxResponseSize(n int64) Option {
	return func(o interface{}) {
		if v, ok := o.(*serverOptions); ok && n > 0 {
			v.withMaxResponseSize = n
		}
	}
}

// WithRegistry sets the registry metrics are registered with and served
// from. Without it the server uses a private registry.
func WithRegistry(r *prometheus.Registry) Option {
	return func(o interface{}) {
		if v, ok := o.(*serverOptions); ok {
			v.withRegistry = r
		}
	}
}
