// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hashicorp/oauthlab/endpoint"
	"github.com/hashicorp/oauthlab/jwt"
	"github.com/hashicorp/oauthlab/ratelimit"
	sdkhttp "github.com/hashicorp/oauthlab/sdk/http"
)

// Server serves the discovery, token exchange and resource token operations.
// Every operation is rate limited per client, validates its input before any
// other work, and checks each caller supplied URL with the endpoint validator
// before requesting it.
type Server struct {
	logger          hclog.Logger
	limiter         *ratelimit.Limiter
	ownsLimiter     bool
	validator       *endpoint.Validator
	client          *http.Client
	verifier        *jwt.Verifier
	timeout         time.Duration
	maxResponseSize int64
	registry        *prometheus.Registry
	metrics         *metrics
}

// NewServer creates a Server. Call Done when finished with it.
// Supported options:
//   - WithLogger
//   - WithLimiter
//   - WithValidator
//   - WithHTTPClient
//   - WithCACert
//   - WithVerifier
//   - WithUpstreamTimeout
//   - WithMaxResponseSize
//   - WithRegistry
func NewServer(opt ...Option) (*Server, error) {
	const op = "proxy.NewServer"
	opts := getServerOpts(opt...)

	s := &Server{
		logger:          opts.withLogger,
		limiter:         opts.withLimiter,
		validator:       opts.withValidator,
		client:          opts.withHTTPClient,
		verifier:        opts.withVerifier,
		timeout:         opts.withUpstreamTimeout,
		maxResponseSize: opts.withMaxResponseSize,
		registry:        opts.withRegistry,
	}

	if s.validator == nil {
		s.validator = endpoint.NewValidator(endpoint.WithLogger(s.logger.Named("endpoint")))
	}
	if s.client == nil {
		c, err := sdkhttp.NewClient(opts.withCACert,
			sdkhttp.WithDialControl(s.validator.DialControl),
			sdkhttp.WithTimeout(s.timeout),
		)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
		}
		s.client = c
	}
	if s.verifier == nil {
		v, err := jwt.NewVerifier()
		if err != nil {
			return nil, fmt.Errorf("%s: unable to create verifier: %w", op, err)
		}
		s.verifier = v
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	s.metrics = newMetrics(s.registry)

	if s.limiter == nil {
		l, err := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), ratelimit.WithLogger(s.logger.Named("ratelimit")))
		if err != nil {
			return nil, fmt.Errorf("%s: unable to create rate limiter: %w", op, err)
		}
		s.limiter = l
		s.ownsLimiter = true
	}
	return s, nil
}

// Done releases the resources the server created itself.
func (s *Server) Done() {
	if s.ownsLimiter {
		s.limiter.Done()
	}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID, securityHeaders, s.logRequests, middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Post("/token-exchange", s.tokenExchange)
		r.Post("/discover", s.discover)
		r.Get("/resource", s.resource)
		r.Post("/resource", s.resource)
	})
	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// validateEndpoint runs the endpoint validator on a caller supplied URL.
func (s *Server) validateEndpoint(r *http.Request, field, rawURL string) *Error {
	err := s.validator.Validate(r.Context(), rawURL)
	if err == nil {
		return nil
	}
	var epErr *endpoint.Error
	if !errors.As(err, &epErr) {
		return internalError(err)
	}
	s.metrics.blockedEndpoint.WithLabelValues(epErr.Reason).Inc()
	s.requestLogger(r).Warn("blocked outbound endpoint", "field", field, "reason", epErr.Reason)
	return BlockedEndpoint(field, epErr)
}
