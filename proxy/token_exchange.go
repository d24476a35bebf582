// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/hashicorp/oauthlab/endpoint"
	"github.com/hashicorp/oauthlab/internal/strutils"
	sdkhttp "github.com/hashicorp/oauthlab/sdk/http"
)

const (
	grantTypeAuthorizationCode = "authorization_code"

	// MaxProviderErrorLength caps provider error text shown to a caller.
	MaxProviderErrorLength = 500

	redacted = "********"
)

type tokenExchangeRequest struct {
	TokenEndpoint string `json:"tokenEndpoint"`
	GrantType     string `json:"grantType"`
	Code          string `json:"code"`
	RedirectURI   string `json:"redirectUri"`
	ClientID      string `json:"clientId"`
	ClientSecret  string `json:"clientSecret"`
	CodeVerifier  string `json:"codeVerifier"`
}

func (req *tokenExchangeRequest) validate() *Error {
	var c inputChecker
	if c.required("tokenEndpoint", req.TokenEndpoint) {
		c.url("tokenEndpoint", req.TokenEndpoint)
	}
	if req.GrantType != "" && req.GrantType != grantTypeAuthorizationCode {
		c.add("grantType must be %q", grantTypeAuthorizationCode)
	}
	if c.required("code", req.Code) {
		c.maxLen("code", req.Code, MaxCodeLength)
	}
	if c.required("redirectUri", req.RedirectURI) {
		c.redirectURI("redirectUri", req.RedirectURI)
	}
	if c.required("clientId", req.ClientID) {
		c.maxLen("clientId", req.ClientID, MaxClientIDLength)
	}
	c.maxLen("clientSecret", req.ClientSecret, MaxSecretLength)
	c.maxLen("codeVerifier", req.CodeVerifier, MaxCodeVerifierLength)
	return c.err()
}

type tokenExchangeResponse struct {
	Success      bool          `json:"success"`
	Data         interface{}   `json:"data,omitempty"`
	Error        string        `json:"error,omitempty"`
	StatusCode   int           `json:"statusCode,omitempty"`
	RawResponse  interface{}   `json:"rawResponse,omitempty"`
	DebugRequest *debugRequest `json:"debugRequest,omitempty"`
}

// debugRequest echoes the outbound token request with secrets masked.
type debugRequest struct {
	URL    string            `json:"url"`
	Method string            `json:"method"`
	Body   map[string]string `json:"body"`
}

func newDebugRequest(req *tokenExchangeRequest) *debugRequest {
	body := map[string]string{
		"grant_type":   grantTypeAuthorizationCode,
		"code":         req.Code,
		"redirect_uri": req.RedirectURI,
		"client_id":    req.ClientID,
	}
	if req.ClientSecret != "" {
		body["client_secret"] = redacted
	}
	if req.CodeVerifier != "" {
		body["code_verifier"] = redacted
	}
	return &debugRequest{URL: req.TokenEndpoint, Method: http.MethodPost, Body: body}
}

// tokenExchange redeems an authorization code at a caller supplied token
// endpoint and relays the provider's answer.
func (s *Server) tokenExchange(w http.ResponseWriter, r *http.Request) {
	const op = "Server.tokenExchange"
	var req tokenExchangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err)
		return
	}
	if err := s.validateEndpoint(r, "tokenEndpoint", req.TokenEndpoint); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	capture := &captureTransport{base: s.client.Transport, limit: s.maxResponseSize}
	client := &http.Client{
		Transport:     capture,
		Timeout:       s.client.Timeout,
		CheckRedirect: s.client.CheckRedirect,
		Jar:           s.client.Jar,
	}
	config := oauth2.Config{
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		RedirectURL:  req.RedirectURI,
		Endpoint: oauth2.Endpoint{
			TokenURL:  req.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	var opts []oauth2.AuthCodeOption
	if req.CodeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(req.CodeVerifier))
	}

	debug := newDebugRequest(&req)
	tok, err := config.Exchange(sdkhttp.OidcClientContext(ctx, client), req.Code, opts...)
	if err == nil {
		writeJSON(w, http.StatusOK, &tokenExchangeResponse{
			Success:      true,
			Data:         tokenData(capture.body, tok),
			StatusCode:   capture.status,
			DebugRequest: debug,
		})
		return
	}

	var epErr *endpoint.Error
	var retrieveErr *oauth2.RetrieveError
	switch {
	case errors.As(err, &epErr):
		s.metrics.blockedEndpoint.WithLabelValues(epErr.Reason).Inc()
		writeError(w, BlockedEndpoint("tokenEndpoint", epErr))
	case errors.As(err, &retrieveErr), capture.status != 0:
		status := capture.status
		body := capture.body
		if retrieveErr != nil && retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
			body = retrieveErr.Body
		}
		msg := providerErrorMessage(body, status)
		if retrieveErr == nil {
			msg = strutils.Sanitize(fmt.Sprintf("token endpoint returned an unusable response: %s", trimOAuth2Prefix(err)), MaxProviderErrorLength)
		}
		s.requestLogger(r).Debug("token endpoint rejected exchange", "op", op, "status", status)
		httpStatus := status
		if httpStatus < 400 || httpStatus > 599 {
			httpStatus = http.StatusBadGateway
		}
		writeJSON(w, httpStatus, &tokenExchangeResponse{
			Success:      false,
			Error:        msg,
			StatusCode:   status,
			RawResponse:  rawResponse(body),
			DebugRequest: debug,
		})
	default:
		e := UpstreamUnavailable("token endpoint", err)
		if e.Timeout {
			e.Message = fmt.Sprintf("token endpoint timed out after %s", s.timeout)
		}
		if errors.Is(err, sdkhttp.ErrResponseTooLarge) {
			e.Message = fmt.Sprintf("token endpoint response exceeded %d bytes", s.maxResponseSize)
		}
		s.metrics.upstreamErrors.WithLabelValues("token-exchange", fmt.Sprint(e.Timeout)).Inc()
		s.requestLogger(r).Warn("token exchange failed", "op", op, "error", err)
		writeError(w, e)
	}
}

// captureTransport records the status and body of the token response so
// they can be relayed verbatim, and enforces the response size ceiling.
type captureTransport struct {
	base  http.RoundTripper
	limit int64

	status int
	body   []byte
}

func (t *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	body, err := sdkhttp.ReadLimited(resp.Body, t.limit)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	t.status = resp.StatusCode
	t.body = body
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

// tokenData returns the provider's token response as an object: the JSON
// body when there is one, the form fields otherwise.
func tokenData(body []byte, tok *oauth2.Token) interface{} {
	var m map[string]interface{}
	if err := json.Unmarshal(body, &m); err == nil && m != nil {
		return m
	}
	if vals, err := url.ParseQuery(string(body)); err == nil && vals.Get("access_token") != "" {
		out := make(map[string]string, len(vals))
		for k := range vals {
			out[k] = vals.Get(k)
		}
		return out
	}
	out := map[string]interface{}{
		"access_token": tok.AccessToken,
		"token_type":   tok.TokenType,
	}
	if tok.RefreshToken != "" {
		out["refresh_token"] = tok.RefreshToken
	}
	if tok.ExpiresIn != 0 {
		out["expires_in"] = tok.ExpiresIn
	}
	return out
}

// providerErrorMessage extracts a human readable error from a provider
// response and sanitizes it.
func providerErrorMessage(body []byte, status int) string {
	var fields map[string]interface{}
	if err := json.Unmarshal(body, &fields); err == nil {
		code, _ := fields["error"].(string)
		desc, _ := fields["error_description"].(string)
		if desc == "" {
			desc, _ = fields["message"].(string)
		}
		switch {
		case code != "" && desc != "":
			return strutils.Sanitize(code+": "+desc, MaxProviderErrorLength)
		case desc != "":
			return strutils.Sanitize(desc, MaxProviderErrorLength)
		case code != "":
			return strutils.Sanitize(code, MaxProviderErrorLength)
		}
	}
	if text := strutils.Sanitize(string(body), MaxProviderErrorLength); text != "" {
		return text
	}
	return fmt.Sprintf("token endpoint returned HTTP %d", status)
}

// rawResponse returns a provider error body for display: JSON with every
// string value sanitized, or sanitized text.
func rawResponse(body []byte) interface{} {
	if len(body) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(body, &v); err == nil {
		return sanitizeValue(v)
	}
	return strutils.Sanitize(string(body), MaxProviderErrorLength)
}

func sanitizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return strutils.Sanitize(t, MaxProviderErrorLength)
	case map[string]interface{}:
		for k, e := range t {
			t[k] = sanitizeValue(e)
		}
		return t
	case []interface{}:
		for i, e := range t {
			t[i] = sanitizeValue(e)
		}
		return t
	default:
		return v
	}
}

func trimOAuth2Prefix(err error) string {
	return strings.TrimPrefix(err.Error(), "oauth2: ")
}
