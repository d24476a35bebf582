// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ratelimit

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	// DefaultLimit is the number of requests a client may make per window.
	DefaultLimit = 30

	// DefaultWindow is the length of a client's window.
	DefaultWindow = 60 * time.Second

	// DefaultSweepInterval is how often elapsed entries are removed.
	DefaultSweepInterval = 60 * time.Second
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

type limiterOptions struct {
	withLimit         int
	withWindow        time.Duration
	withSweepInterval time.Duration
	withNowFunc       func() time.Time
	withLogger        hclog.Logger
}

func limiterDefaults() limiterOptions {
	return limiterOptions{
		withLimit:         DefaultLimit,
		withWindow:        DefaultWindow,
		withSweepInterval: DefaultSweepInterval,
		withNowFunc:       time.Now,
		withLogger:        hclog.NewNullLogger(),
	}
}

func getLimiterOpts(opt ...Option) limiterOptions {
	opts := limiterDefaults()
	for _, o := range opt {
		if o == nil {
			continue
		}
		o(&opts)
	}
	return opts
}

// WithLimit sets the number of requests allowed per window.
func WithLimit(n int) Option {
	return func(o interface{}) {
		if o, ok := o.(*limiterOptions); ok {
			o.withLimit = n
		}
	}
}

// WithWindow sets the window length.
func WithWindow(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*limiterOptions); ok {
			o.withWindow = d
		}
	}
}

// WithSweepInterval sets how often elapsed entries are swept. Zero disables
// the background sweep.
func WithSweepInterval(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*limiterOptions); ok {
			o.withSweepInterval = d
		}
	}
}

// WithNow provides a time source, mostly for tests.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*limiterOptions); ok && now != nil {
			o.withNowFunc = now
		}
	}
}

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*limiterOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}
