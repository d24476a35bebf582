// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oauthlab_test

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp/oauthlab/endpoint"
	"github.com/hashicorp/oauthlab/jwt"
	"github.com/hashicorp/oauthlab/proxy"
	"github.com/hashicorp/oauthlab/ratelimit"
)

func Example_endpoint() {
	v := endpoint.NewValidator()
	for _, u := range []string{
		"https://169.254.169.254/latest/meta-data",
		"http://issuer.example.com/.well-known/openid-configuration",
		"https://10.0.0.7:9000/token",
		"http://localhost:3000/callback",
	} {
		if err := v.Validate(context.Background(), u); err != nil {
			fmt.Println(err)
			continue
		}
		fmt.Println("allowed")
	}
	// Output:
	// endpoint rejected: link-local / cloud metadata
	// endpoint rejected: not HTTPS
	// endpoint rejected: disallowed port
	// allowed
}

func Example_classify() {
	for _, tok := range []string{"a.b.c", "a.b.c.d.e", "gho_opaque"} {
		f, err := jwt.Classify(tok)
		if err != nil {
			fmt.Println(err)
			continue
		}
		fmt.Println(f)
	}
	// Output:
	// JWS
	// JWE
	// not a valid JWT: expected 3 or 5 parts, got 1
}

func Example_verify() {
	ctx := context.Background()

	v, err := jwt.NewVerifier(jwt.WithLeeway(30 * time.Second))
	if err != nil {
		// handle error
	}

	// The key set usually comes from a provider's jwks_uri (see
	// jwt.NewJSONWebKeySet) or is pasted inline (see jwt.NewStaticKeySet).
	// An encrypted token needs KeyMaterial.Secret instead.
	_, err = v.Verify(ctx, "header.payload.signature", jwt.KeyMaterial{}, jwt.Expected{
		Issuer:   "https://issuer.example.com",
		Audience: "api://resource",
	})
	fmt.Println(err)
	// Output:
	// Verifier.Verify: missing key material: a JWKS is required to verify a signed token
}

func Example_server() {
	limiter, err := ratelimit.NewLimiter(ratelimit.NewMemoryStore(),
		ratelimit.WithLimit(30),
		ratelimit.WithWindow(time.Minute),
	)
	if err != nil {
		// handle error
	}
	defer limiter.Done()

	logger := hclog.Default().Named("proxy")
	srv, err := proxy.NewServer(
		proxy.WithLogger(logger),
		proxy.WithLimiter(limiter),
		proxy.WithUpstreamTimeout(10*time.Second),
	)
	if err != nil {
		// handle error
	}
	defer srv.Done()

	httpSrv := &http.Server{
		Addr:              ":8080",
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	_ = httpSrv // httpSrv.ListenAndServe()
}
