// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) Option {
	return WithLookupEnv(func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	})
}

func writeEnvFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()
	missing := filepath.Join(t.TempDir(), "missing.env")

	tests := []struct {
		name      string
		env       map[string]string
		envFile   string
		want      func(c *Config)
		wantErr   bool
		wantInErr []string
	}{
		{
			name: "defaults",
			want: func(c *Config) {},
		},
		{
			name: "environment",
			env: map[string]string{
				"OAUTHLAB_ADDR":                ":9090",
				"OAUTHLAB_LOG_LEVEL":           "debug",
				"OAUTHLAB_LOG_JSON":            "true",
				"OAUTHLAB_RATE_LIMIT_REQUESTS": "5",
				"OAUTHLAB_RATE_LIMIT_WINDOW":   "2m",
				"OAUTHLAB_RATE_LIMIT_SWEEP":    "30",
				"OAUTHLAB_RATE_LIMIT_STORE":    "redis",
				"OAUTHLAB_REDIS_ADDR":          "localhost:6379",
				"OAUTHLAB_REDIS_DB":            "2",
				"OAUTHLAB_UPSTREAM_TIMEOUT":    "3s",
				"OAUTHLAB_MAX_RESPONSE_BYTES":  "2048",
			},
			want: func(c *Config) {
				c.Addr = ":9090"
				c.LogLevel = "debug"
				c.LogJSON = true
				c.RateLimit.Requests = 5
				c.RateLimit.Window = 2 * time.Minute
				c.RateLimit.SweepInterval = 30 * time.Second
				c.RateLimit.Store = StoreRedis
				c.Redis.Addr = "localhost:6379"
				c.Redis.DB = 2
				c.UpstreamTimeout = 3 * time.Second
				c.MaxResponseBytes = 2048
			},
		},
		{
			name:    "env-file",
			envFile: "OAUTHLAB_ADDR=:7070\nOAUTHLAB_REDIS_PASSWORD=\"hunter2\"\n",
			want: func(c *Config) {
				c.Addr = ":7070"
				c.Redis.Password = "hunter2"
			},
		},
		{
			name:    "environment-beats-env-file",
			env:     map[string]string{"OAUTHLAB_ADDR": ":6060"},
			envFile: "OAUTHLAB_ADDR=:7070\n",
			want: func(c *Config) {
				c.Addr = ":6060"
			},
		},
		{
			name: "blank-values-ignored",
			env:  map[string]string{"OAUTHLAB_ADDR": "   "},
			want: func(c *Config) {},
		},
		{
			name: "unparseable-values-reported-together",
			env: map[string]string{
				"OAUTHLAB_RATE_LIMIT_REQUESTS": "many",
				"OAUTHLAB_LOG_JSON":            "sometimes",
				"OAUTHLAB_UPSTREAM_TIMEOUT":    "soon",
			},
			wantErr:   true,
			wantInErr: []string{"OAUTHLAB_RATE_LIMIT_REQUESTS", "OAUTHLAB_LOG_JSON", "OAUTHLAB_UPSTREAM_TIMEOUT"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			opts := []Option{envMap(tt.env), WithEnvFiles(missing)}
			if tt.envFile != "" {
				opts = append(opts, WithEnvFiles(writeEnvFile(t, tt.envFile)))
			}
			got, err := Load(opts...)
			if tt.wantErr {
				require.Error(err)
				for _, s := range tt.wantInErr {
					assert.Contains(err.Error(), s)
				}
				return
			}
			require.NoError(err)
			want := Default()
			tt.want(want)
			assert.Equal(want, got)
		})
	}
}

func TestLoad_MalformedEnvFile(t *testing.T) {
	t.Parallel()
	path := writeEnvFile(t, "OAUTHLAB_ADDR='unterminated\n")
	_, err := Load(envMap(nil), WithEnvFiles(path))
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	caFile := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(caFile, []byte("pem"), 0o600))

	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantInErr []string
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{
			name: "redis",
			mutate: func(c *Config) {
				c.RateLimit.Store = StoreRedis
				c.Redis.Addr = "localhost:6379"
			},
		},
		{name: "ca-file", mutate: func(c *Config) { c.ProviderCAFile = caFile }},
		{
			name:      "redis-without-addr",
			mutate:    func(c *Config) { c.RateLimit.Store = StoreRedis },
			wantInErr: []string{"OAUTHLAB_REDIS_ADDR is required"},
		},
		{
			name: "everything-wrong",
			mutate: func(c *Config) {
				c.Addr = ""
				c.LogLevel = "loud"
				c.RateLimit.Requests = 0
				c.RateLimit.Window = 0
				c.RateLimit.SweepInterval = -time.Second
				c.RateLimit.Store = "memcached"
				c.UpstreamTimeout = 0
				c.MaxResponseBytes = -1
				c.ProviderCAFile = filepath.Join(t.TempDir(), "nope.pem")
			},
			wantInErr: []string{
				"listen address is empty",
				`unknown log level "loud"`,
				"rate limit requests must be positive",
				"rate limit window must be positive",
				"sweep interval must not be negative",
				`unknown rate limit store "memcached"`,
				"upstream timeout must be positive",
				"max response bytes must be positive",
				"provider CA file",
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if len(tt.wantInErr) == 0 {
				require.NoError(err)
				return
			}
			require.Error(err)
			assert.ErrorIs(err, ErrInvalidConfig)
			for _, s := range tt.wantInErr {
				assert.Contains(err.Error(), s)
			}
		})
	}
}

func TestConfig_ProviderCA(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)

	c := Default()
	pem, err := c.ProviderCA()
	require.NoError(err)
	assert.Empty(pem)

	c.ProviderCAFile = filepath.Join(t.TempDir(), "ca.pem")
	_, err = c.ProviderCA()
	require.Error(err)

	require.NoError(os.WriteFile(c.ProviderCAFile, []byte("-----BEGIN CERTIFICATE-----\n"), 0o600))
	pem, err = c.ProviderCA()
	require.NoError(err)
	assert.Equal("-----BEGIN CERTIFICATE-----\n", pem)
}
