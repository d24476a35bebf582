// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package proxy

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/hashicorp/oauthlab/endpoint"
	"github.com/hashicorp/oauthlab/jwt"
)

type resourceRequest struct {
	JWKSURI  string          `json:"jwksUri"`
	JWKS     json.RawMessage `json:"jwks"`
	Secret   string          `json:"secret"`
	Issuer   string          `json:"issuer"`
	Audience string          `json:"audience"`
}

func (req *resourceRequest) validate() *Error {
	var c inputChecker
	if req.JWKSURI != "" {
		c.url("jwksUri", req.JWKSURI)
	}
	c.maxLen("secret", req.Secret, MaxSecretLength)
	c.maxLen("issuer", req.Issuer, MaxURLLength)
	c.maxLen("audience", req.Audience, MaxURLLength)
	return c.err()
}

type resourceResponse struct {
	Status      string                 `json:"status"`
	Message     string                 `json:"message"`
	TokenFormat jwt.Format             `json:"tokenFormat"`
	Header      map[string]interface{} `json:"header"`
	Claims      map[string]interface{} `json:"claims"`
}

// resource verifies the bearer token of the request against the key material
// the caller supplied.
func (s *Server) resource(w http.ResponseWriter, r *http.Request) {
	const op = "Server.resource"
	token, authErr := bearerToken(r)
	if authErr != nil {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, authErr)
		return
	}

	var req resourceRequest
	switch r.Method {
	case http.MethodPost:
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
	default:
		q := r.URL.Query()
		req.JWKSURI = q.Get("jwks_uri")
		if req.JWKSURI == "" {
			req.JWKSURI = q.Get("jwksUri")
		}
		req.Secret = q.Get("secret")
		req.Issuer = q.Get("issuer")
		req.Audience = q.Get("audience")
	}
	if err := req.validate(); err != nil {
		writeError(w, err)
		return
	}

	format, err := jwt.Classify(token)
	if err != nil {
		s.metrics.tokens.WithLabelValues(format.String(), "invalid").Inc()
		writeError(w, TokenInvalid(err.Error(), err))
		return
	}

	km := jwt.KeyMaterial{Secret: req.Secret}
	switch {
	case len(req.JWKS) > 0 && string(req.JWKS) != "null":
		ks, err := inlineKeySet(req.JWKS)
		if err != nil {
			writeError(w, InvalidInput("jwks must be a JSON Web Key Set"))
			return
		}
		km.KeySet = ks
	case req.JWKSURI != "":
		opts := []jwt.Option{
			jwt.WithHTTPClient(s.client),
			jwt.WithTimeout(s.timeout),
			jwt.WithMaxResponseSize(s.maxResponseSize),
		}
		if format == jwt.FormatJWS {
			if err := s.validateEndpoint(r, "jwksUri", req.JWKSURI); err != nil {
				writeError(w, err)
				return
			}
		} else {
			// an encrypted token only reaches the key set when it nests a
			// signed one, so the URL is checked then.
			opts = append(opts, jwt.WithURLValidator(s.validator.Validate))
		}
		ks, err := jwt.NewJSONWebKeySet(r.Context(), req.JWKSURI, opts...)
		if err != nil {
			writeError(w, internalError(err))
			return
		}
		km.KeySet = ks
	}

	out, err := s.verifier.Verify(r.Context(), token, km, jwt.Expected{Issuer: req.Issuer, Audience: req.Audience})
	if err != nil {
		s.metrics.tokens.WithLabelValues(format.String(), "invalid").Inc()
		s.requestLogger(r).Debug("token rejected", "op", op, "format", format, "error", err)
		writeError(w, s.verifyError(err))
		return
	}
	s.metrics.tokens.WithLabelValues(format.String(), "valid").Inc()

	msg := "token signature and claims are valid"
	if format == jwt.FormatJWE {
		msg = "token decrypted and claims are valid"
	}
	writeJSON(w, http.StatusOK, &resourceResponse{
		Status:      "valid",
		Message:     msg,
		TokenFormat: out.Format,
		Header:      out.Header,
		Claims:      out.Claims,
	})
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) (string, *Error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", AuthRequired("missing bearer token")
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", AuthRequired("authorization header must use the Bearer scheme")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", AuthRequired("missing bearer token")
	}
	if len(token) > MaxBearerTokenLength {
		return "", AuthRequired("bearer token is too large")
	}
	return token, nil
}

// inlineKeySet accepts the JWKS as a JSON object or as a string holding one.
func inlineKeySet(raw json.RawMessage) (*jwt.StaticKeySet, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		raw = json.RawMessage(s)
	}
	return jwt.NewStaticKeySet(raw)
}

// tokenReasons maps verification failures to the reason shown to a caller.
var tokenReasons = []error{
	jwt.ErrNotJWT,
	jwt.ErrMalformedToken,
	jwt.ErrUnsupportedAlg,
	jwt.ErrKeyNotFound,
	jwt.ErrInvalidSignature,
	jwt.ErrDecryptionFailed,
	jwt.ErrExpired,
	jwt.ErrNotYetValid,
	jwt.ErrInvalidIssuer,
	jwt.ErrInvalidAudience,
}

func (s *Server) verifyError(err error) *Error {
	var epErr *endpoint.Error
	switch {
	case errors.Is(err, jwt.ErrMissingKeyMaterial):
		return MissingKeyMaterial(fromSentinel(err, jwt.ErrMissingKeyMaterial))
	case errors.As(err, &epErr):
		s.metrics.blockedEndpoint.WithLabelValues(epErr.Reason).Inc()
		return BlockedEndpoint("jwksUri", epErr)
	case errors.Is(err, jwt.ErrKeySetUnavailable):
		return s.upstreamError("jwksUri", "jwks", "JWKS", err)
	}
	for _, reason := range tokenReasons {
		if errors.Is(err, reason) {
			return TokenInvalid(fromSentinel(err, reason), err)
		}
	}
	return TokenInvalid("token could not be verified", err)
}

// fromSentinel drops the operation prefixes in front of sentinel's text.
func fromSentinel(err, sentinel error) string {
	msg := err.Error()
	if i := strings.Index(msg, sentinel.Error()); i >= 0 {
		return msg[i:]
	}
	return msg
}
