// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package config

import "os"

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

type loadOptions struct {
	withEnvFiles  []string
	withLookupEnv func(string) (string, bool)
}

func loadDefaults() loadOptions {
	return loadOptions{
		withEnvFiles:  []string{".env"},
		withLookupEnv: os.LookupEnv,
	}
}

func getLoadOpts(opt ...Option) loadOptions {
	opts := loadDefaults()
	for _, o := range opt {
		if o == nil {
			continue
		}
		o(&opts)
	}
	return opts
}

// WithEnvFiles replaces the default ".env" with the given dotenv files.
// Later files take precedence over earlier ones.
func WithEnvFiles(files ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*loadOptions); ok {
			o.withEnvFiles = files
		}
	}
}

// WithLookupEnv replaces os.LookupEnv as the source of environment values.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(o interface{}) {
		if o, ok := o.(*loadOptions); ok && fn != nil {
			o.withLookupEnv = fn
		}
	}
}
