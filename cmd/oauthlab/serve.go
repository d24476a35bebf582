// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hashicorp/oauthlab/config"
	"github.com/hashicorp/oauthlab/endpoint"
	"github.com/hashicorp/oauthlab/proxy"
	"github.com/hashicorp/oauthlab/ratelimit"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

type serveFlags struct {
	envFile         string
	addr            string
	logLevel        string
	logJSON         bool
	rateLimit       int
	rateWindow      time.Duration
	rateStore       string
	redisAddr       string
	upstreamTimeout time.Duration
	providerCA      string
}

func newServeCmd() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the oauthlab HTTP server",
		Long: `Starts the HTTP server exposing /token-exchange, /discover and /resource.

Settings are read from OAUTHLAB_* environment variables and an optional
dotenv file. Flags given on the command line take precedence.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, &f)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.envFile, "env-file", ".env", "dotenv file to read settings from")
	flags.StringVar(&f.addr, "addr", config.DefaultAddr, "address to listen on")
	flags.StringVar(&f.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.BoolVar(&f.logJSON, "log-json", false, "emit logs as JSON")
	flags.IntVar(&f.rateLimit, "rate-limit", ratelimit.DefaultLimit, "requests allowed per client per window")
	flags.DurationVar(&f.rateWindow, "rate-window", ratelimit.DefaultWindow, "length of a client's rate limit window")
	flags.StringVar(&f.rateStore, "rate-store", config.StoreMemory, "rate limit store (memory or redis)")
	flags.StringVar(&f.redisAddr, "redis-addr", "", "redis address for the redis rate limit store")
	flags.DurationVar(&f.upstreamTimeout, "upstream-timeout", proxy.DefaultUpstreamTimeout, "timeout for calls to identity providers")
	flags.StringVar(&f.providerCA, "provider-ca", "", "PEM file of the CAs trusted for provider calls, replacing the system roots")
	return cmd
}

// loadConfig reads the environment and applies the flags the user set.
func loadConfig(cmd *cobra.Command, f *serveFlags) (*config.Config, error) {
	cfg, err := config.Load(config.WithEnvFiles(f.envFile))
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr = f.addr
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if flags.Changed("log-json") {
		cfg.LogJSON = f.logJSON
	}
	if flags.Changed("rate-limit") {
		cfg.RateLimit.Requests = f.rateLimit
	}
	if flags.Changed("rate-window") {
		cfg.RateLimit.Window = f.rateWindow
	}
	if flags.Changed("rate-store") {
		cfg.RateLimit.Store = f.rateStore
	}
	if flags.Changed("redis-addr") {
		cfg.Redis.Addr = f.redisAddr
	}
	if flags.Changed("upstream-timeout") {
		cfg.UpstreamTimeout = f.upstreamTimeout
	}
	if flags.Changed("provider-ca") {
		cfg.ProviderCAFile = f.providerCA
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       "oauthlab",
		Level:      hclog.LevelFromString(cfg.LogLevel),
		JSONFormat: cfg.LogJSON,
		Output:     w,
	})
}

func run(ctx context.Context, cfg *config.Config, logOutput io.Writer) error {
	logger := newLogger(cfg, logOutput)
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("unable to listen on %s: %w", cfg.Addr, err)
	}
	return serve(ctx, cfg, ln, logger)
}

// serve runs the server on ln until ctx is cancelled, then shuts it down
// gracefully.
func serve(ctx context.Context, cfg *config.Config, ln net.Listener, logger hclog.Logger) error {
	srv, cleanup, err := newServer(ctx, cfg, logger)
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer cleanup()

	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          logger.StandardLogger(&hclog.StandardLoggerOptions{InferLevels: true}),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", ln.Addr().String(), "rate_limit_store", cfg.RateLimit.Store)
		if err := httpSrv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newServer wires the rate limiter, endpoint validator and metrics registry
// into a proxy.Server. cleanup releases everything it created.
func newServer(ctx context.Context, cfg *config.Config, logger hclog.Logger) (*proxy.Server, func(), error) {
	store, closeStore, err := newRateLimitStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	limiter, err := ratelimit.NewLimiter(store,
		ratelimit.WithLimit(cfg.RateLimit.Requests),
		ratelimit.WithWindow(cfg.RateLimit.Window),
		ratelimit.WithSweepInterval(cfg.RateLimit.SweepInterval),
		ratelimit.WithLogger(logger.Named("ratelimit")),
	)
	if err != nil {
		_ = closeStore()
		return nil, nil, err
	}
	cleanup := func() {
		limiter.Done()
		if err := closeStore(); err != nil {
			logger.Warn("unable to close rate limit store", "error", err)
		}
	}

	caPEM, err := cfg.ProviderCA()
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv, err := proxy.NewServer(
		proxy.WithLogger(logger.Named("proxy")),
		proxy.WithLimiter(limiter),
		proxy.WithValidator(endpoint.NewValidator(endpoint.WithLogger(logger.Named("endpoint")))),
		proxy.WithCACert(caPEM),
		proxy.WithUpstreamTimeout(cfg.UpstreamTimeout),
		proxy.WithMaxResponseSize(cfg.MaxResponseBytes),
		proxy.WithRegistry(reg),
	)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return srv, func() {
		srv.Done()
		cleanup()
	}, nil
}

func newRateLimitStore(ctx context.Context, cfg *config.Config) (ratelimit.Store, func() error, error) {
	switch cfg.RateLimit.Store {
	case config.StoreRedis:
		s, err := ratelimit.NewRedisStore(ctx, ratelimit.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return ratelimit.NewMemoryStore(), func() error { return nil }, nil
	}
}
