// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package http

import "time"

const (
	// DefaultTimeout bounds a single outbound request.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxResponseSize is the largest response body read (1MB).
	DefaultMaxResponseSize = 1024 * 1024
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

type clientOptions struct {
	withDialControl DialControlFunc
	withTimeout     time.Duration
}

func getClientOpts(opt ...Option) clientOptions {
	opts := clientOptions{}
	applyOpts(&opts, opt...)
	return opts
}

type fetchOptions struct {
	withTimeout         time.Duration
	withMaxResponseSize int64
	withAccept          string
}

func getFetchOpts(opt ...Option) fetchOptions {
	opts := fetchOptions{
		withTimeout:         DefaultTimeout,
		withMaxResponseSize: DefaultMaxResponseSize,
		withAccept:          "application/json",
	}
	applyOpts(&opts, opt...)
	return opts
}

func applyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil {
			continue
		}
		o(opts)
	}
}

// WithDialControl installs a dialer control hook on the client's transport.
func WithDialControl(fn DialControlFunc) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withDialControl = fn
		}
	}
}

// WithTimeout sets the client timeout for NewClient, or the per-request
// deadline for FetchJSON.
func WithTimeout(d time.Duration) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *clientOptions:
			v.withTimeout = d
		case *fetchOptions:
			v.withTimeout = d
		}
	}
}

// WithMaxResponseSize bounds the response body FetchJSON reads.
func WithMaxResponseSize(n int64) Option {
	return func(o interface{}) {
		if o, ok := o.(*fetchOptions); ok && n > 0 {
			o.withMaxResponseSize = n
		}
	}
}

// WithAccept overrides the Accept header FetchJSON sends.
func WithAccept(accept string) Option {
	return func(o interface{}) {
		if o, ok := o.(*fetchOptions); ok {
			o.withAccept = accept
		}
	}
}
