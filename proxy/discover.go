// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/hashicorp/oauthlab/endpoint"
	"github.com/hashicorp/oauthlab/internal/strutils"
	"github.com/hashicorp/oauthlab/jwt"
	sdkhttp "github.com/hashicorp/oauthlab/sdk/http"
)

type discoverRequest struct {
	WellKnownURL string `json:"wellKnownUrl"`
}

type discoverResponse struct {
	Success               bool              `json:"success"`
	Issuer                string            `json:"issuer"`
	JWKSURI               string            `json:"jwksUri"`
	Keys                  []json.RawMessage `json:"keys"`
	AuthorizationEndpoint string            `json:"authorizationEndpoint,omitempty"`
	TokenEndpoint         string            `json:"tokenEndpoint,omitempty"`
	UserInfoEndpoint      string            `json:"userinfoEndpoint,omitempty"`
	SigningAlgs           []string          `json:"idTokenSigningAlgValuesSupported,omitempty"`
}

// discover fetches a provider's discovery document and the key set it
// names.
func (s *Server) discover(w http.ResponseWriter, r *http.Request) {
	const op = "Server.discover"
	var req discoverRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	var c inputChecker
	if c.required("wellKnownUrl", req.WellKnownURL) {
		c.url("wellKnownUrl", req.WellKnownURL)
	}
	if err := c.err(); err != nil {
		writeError(w, err)
		return
	}
	if err := s.validateEndpoint(r, "wellKnownUrl", req.WellKnownURL); err != nil {
		writeError(w, err)
		return
	}

	var cfg oidc.ProviderConfig
	_, err := sdkhttp.FetchJSON(r.Context(), s.client, req.WellKnownURL, &cfg,
		sdkhttp.WithTimeout(s.timeout),
		sdkhttp.WithMaxResponseSize(s.maxResponseSize),
	)
	if err != nil {
		s.requestLogger(r).Warn("discovery fetch failed", "op", op, "error", err)
		writeError(w, s.upstreamError("wellKnownUrl", "discovery", "discovery document", err))
		return
	}
	var missing []string
	if cfg.IssuerURL == "" {
		missing = append(missing, "issuer")
	}
	if cfg.JWKSURL == "" {
		missing = append(missing, "jwks_uri")
	}
	if len(missing) > 0 {
		e := UpstreamUnavailable("discovery document", nil)
		e.Message = "discovery document is missing " + strings.Join(missing, ", ")
		writeError(w, e)
		return
	}
	if err := s.validateEndpoint(r, "jwks_uri", cfg.JWKSURL); err != nil {
		writeError(w, err)
		return
	}

	ks, err := jwt.NewJSONWebKeySet(r.Context(), cfg.JWKSURL,
		jwt.WithHTTPClient(s.client),
		jwt.WithTimeout(s.timeout),
		jwt.WithMaxResponseSize(s.maxResponseSize),
	)
	if err != nil {
		writeError(w, internalError(err))
		return
	}
	keys, err := ks.Keys(r.Context())
	if err != nil {
		s.requestLogger(r).Warn("jwks fetch failed", "op", op, "error", err)
		writeError(w, s.upstreamError("jwks_uri", "jwks", "JWKS", err))
		return
	}

	writeJSON(w, http.StatusOK, &discoverResponse{
		Success:               true,
		Issuer:                cfg.IssuerURL,
		JWKSURI:               cfg.JWKSURL,
		Keys:                  keys.RawKeys(),
		AuthorizationEndpoint: cfg.AuthURL,
		TokenEndpoint:         cfg.TokenURL,
		UserInfoEndpoint:      cfg.UserInfoURL,
		SigningAlgs:           cfg.Algorithms,
	})
}

// upstreamError classifies a failed fetch of what. A connection the dialer
// refused is reported against field. Provider text in the message is
// sanitized.
func (s *Server) upstreamError(field, operation, what string, err error) *Error {
	var epErr *endpoint.Error
	if errors.As(err, &epErr) {
		s.metrics.blockedEndpoint.WithLabelValues(epErr.Reason).Inc()
		return BlockedEndpoint(field, epErr)
	}
	e := UpstreamUnavailable(what, err)
	var statusErr *sdkhttp.StatusError
	switch {
	case e.Timeout:
		e.Message = fmt.Sprintf("%s request timed out after %s", what, s.timeout)
	case errors.As(err, &statusErr):
		e.Message = fmt.Sprintf("%s request failed with HTTP %d", what, statusErr.StatusCode)
		if text := strutils.Sanitize(string(statusErr.Body), MaxProviderErrorLength); text != "" {
			e.Message += ": " + text
		}
	case errors.Is(err, sdkhttp.ErrResponseTooLarge):
		e.Message = fmt.Sprintf("%s exceeded %d bytes", what, s.maxResponseSize)
	case errors.Is(err, sdkhttp.ErrInvalidResponse), errors.Is(err, jwt.ErrInvalidParameter):
		e.Message = fmt.Sprintf("%s is not valid", what)
	}
	s.metrics.upstreamErrors.WithLabelValues(operation, fmt.Sprint(e.Timeout)).Inc()
	return e
}
