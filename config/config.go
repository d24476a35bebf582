// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"

	"github.com/hashicorp/oauthlab/proxy"
	"github.com/hashicorp/oauthlab/ratelimit"
)

// EnvPrefix is prepended to every environment variable Load reads.
const EnvPrefix = "OAUTHLAB_"

// Environment variable names, without EnvPrefix.
const (
	EnvAddr              = "ADDR"
	EnvLogLevel          = "LOG_LEVEL"
	EnvLogJSON           = "LOG_JSON"
	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"
	EnvRateLimitSweep    = "RATE_LIMIT_SWEEP"
	EnvRateLimitStore    = "RATE_LIMIT_STORE"
	EnvRedisAddr         = "REDIS_ADDR"
	EnvRedisPassword     = "REDIS_PASSWORD"
	EnvRedisDB           = "REDIS_DB"
	EnvUpstreamTimeout   = "UPSTREAM_TIMEOUT"
	EnvMaxResponseBytes  = "MAX_RESPONSE_BYTES"
	EnvProviderCA        = "PROVIDER_CA"
)

// Rate limit store kinds.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// Config is the process configuration of the oauthlab server.
type Config struct {
	Addr     string
	LogLevel string
	LogJSON  bool

	RateLimit RateLimit
	Redis     Redis

	UpstreamTimeout  time.Duration
	MaxResponseBytes int64

	// ProviderCAFile is an optional PEM bundle that replaces the system roots
	// for outbound calls.
	ProviderCAFile string
}

// RateLimit configures the per-client fixed window.
type RateLimit struct {
	Requests      int
	Window        time.Duration
	SweepInterval time.Duration
	Store         string
}

// Redis configures the shared rate limit store.
type Redis struct {
	Addr     string
	Password string
	DB       int
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Addr:     DefaultAddr,
		LogLevel: hclog.Info.String(),
		RateLimit: RateLimit{
			Requests:      ratelimit.DefaultLimit,
			Window:        ratelimit.DefaultWindow,
			SweepInterval: ratelimit.DefaultSweepInterval,
			Store:         StoreMemory,
		},
		UpstreamTimeout:  proxy.DefaultUpstreamTimeout,
		MaxResponseBytes: proxy.DefaultMaxResponseSize,
	}
}

// Load builds a Config from the defaults, the env files and the process
// environment, in increasing order of precedence. A missing env file is not
// an error. The result is not validated; call Validate once any command line
// overrides have been applied.
// Supported options:
//   - WithEnvFiles
//   - WithLookupEnv
func Load(opt ...Option) (*Config, error) {
	const op = "config.Load"
	opts := getLoadOpts(opt...)

	fileVals := map[string]string{}
	for _, f := range opts.withEnvFiles {
		vals, err := godotenv.Read(f)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			continue
		case err != nil:
			return nil, fmt.Errorf("%s: unable to read %s: %w", op, f, err)
		}
		for k, v := range vals {
			fileVals[k] = v
		}
	}
	lookup := func(name string) (string, bool) {
		key := EnvPrefix + name
		if v, ok := opts.withLookupEnv(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
		v, ok := fileVals[key]
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}

	cfg := Default()
	p := &parser{lookup: lookup}
	p.string(EnvAddr, &cfg.Addr)
	p.string(EnvLogLevel, &cfg.LogLevel)
	p.bool(EnvLogJSON, &cfg.LogJSON)
	p.int(EnvRateLimitRequests, &cfg.RateLimit.Requests)
	p.duration(EnvRateLimitWindow, &cfg.RateLimit.Window)
	p.duration(EnvRateLimitSweep, &cfg.RateLimit.SweepInterval)
	p.string(EnvRateLimitStore, &cfg.RateLimit.Store)
	p.string(EnvRedisAddr, &cfg.Redis.Addr)
	p.string(EnvRedisPassword, &cfg.Redis.Password)
	p.int(EnvRedisDB, &cfg.Redis.DB)
	p.duration(EnvUpstreamTimeout, &cfg.UpstreamTimeout)
	p.int64(EnvMaxResponseBytes, &cfg.MaxResponseBytes)
	p.string(EnvProviderCA, &cfg.ProviderCAFile)
	if p.errs != nil {
		return nil, fmt.Errorf("%s: %w", op, p.errs)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	var errs *multierror.Error
	fail := func(format string, args ...interface{}) {
		errs = multierror.Append(errs, fmt.Errorf(format, args...))
	}

	if c.Addr == "" {
		fail("listen address is empty")
	}
	if hclog.LevelFromString(c.LogLevel) == hclog.NoLevel {
		fail("unknown log level %q", c.LogLevel)
	}
	if c.RateLimit.Requests <= 0 {
		fail("rate limit requests must be positive, got %d", c.RateLimit.Requests)
	}
	if c.RateLimit.Window <= 0 {
		fail("rate limit window must be positive, got %s", c.RateLimit.Window)
	}
	if c.RateLimit.SweepInterval < 0 {
		fail("rate limit sweep interval must not be negative, got %s", c.RateLimit.SweepInterval)
	}
	switch c.RateLimit.Store {
	case StoreMemory:
	case StoreRedis:
		if c.Redis.Addr == "" {
			fail("%s%s is required when the rate limit store is %q", EnvPrefix, EnvRedisAddr, StoreRedis)
		}
	default:
		fail("unknown rate limit store %q, expected %q or %q", c.RateLimit.Store, StoreMemory, StoreRedis)
	}
	if c.Redis.DB < 0 {
		fail("redis db must not be negative, got %d", c.Redis.DB)
	}
	if c.UpstreamTimeout <= 0 {
		fail("upstream timeout must be positive, got %s", c.UpstreamTimeout)
	}
	if c.MaxResponseBytes <= 0 {
		fail("max response bytes must be positive, got %d", c.MaxResponseBytes)
	}
	if c.ProviderCAFile != "" {
		if _, err := os.Stat(c.ProviderCAFile); err != nil {
			fail("provider CA file: %s", err)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidConfig, err)
	}
	return nil
}

// ProviderCA returns the PEM bundle named by ProviderCAFile, or "" when none
// is configured.
func (c *Config) ProviderCA() (string, error) {
	const op = "Config.ProviderCA"
	if c.ProviderCAFile == "" {
		return "", nil
	}
	b, err := os.ReadFile(c.ProviderCAFile)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(b), nil
}

// parser converts environment values, collecting every conversion failure.
type parser struct {
	lookup func(string) (string, bool)
	errs   *multierror.Error
}

func (p *parser) fail(name string, err error) {
	p.errs = multierror.Append(p.errs, fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err))
}

func (p *parser) string(name string, dst *string) {
	if v, ok := p.lookup(name); ok {
		*dst = v
	}
}

func (p *parser) bool(name string, dst *bool) {
	v, ok := p.lookup(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(name, err)
		return
	}
	*dst = b
}

func (p *parser) int(name string, dst *int) {
	v, ok := p.lookup(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(name, err)
		return
	}
	*dst = n
}

func (p *parser) int64(name string, dst *int64) {
	v, ok := p.lookup(name)
	if !ok {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.fail(name, err)
		return
	}
	*dst = n
}

// duration accepts a Go duration ("90s") or a bare number of seconds.
func (p *parser) duration(name string, dst *time.Duration) {
	v, ok := p.lookup(name)
	if !ok {
		return
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(name, err)
		return
	}
	*dst = d
}
