// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package endpoint

import (
	"net"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// validatorOptions is the set of available options for a Validator.
type validatorOptions struct {
	withResolver     Resolver
	withAllowedPorts []string
	withLogger       hclog.Logger
}

func validatorDefaults() validatorOptions {
	return validatorOptions{
		withResolver:     net.DefaultResolver,
		withAllowedPorts: DefaultAllowedPorts(),
		withLogger:       hclog.NewNullLogger(),
	}
}

func getValidatorOpts(opt ...Option) validatorOptions {
	opts := validatorDefaults()
	for _, o := range opt {
		if o == nil {
			continue
		}
		o(&opts)
	}
	return opts
}

// WithResolver provides the resolver used to look up hostnames. Tests use it
// to avoid real DNS.
func WithResolver(r Resolver) Option {
	return func(o interface{}) {
		if o, ok := o.(*validatorOptions); ok && r != nil {
			o.withResolver = r
		}
	}
}

// WithAllowedPorts replaces the default port allow-list.
func WithAllowedPorts(ports ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*validatorOptions); ok {
			o.withAllowedPorts = ports
		}
	}
}

// WithLogger provides an optional logger for rejected endpoints.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*validatorOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}
