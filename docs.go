// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// oauthlab is the server side of an OAuth 2.0 / OpenID Connect playground. It
// performs the calls a browser cannot make safely on its own: redeeming an
// authorization code at a token endpoint, fetching a provider's discovery
// document and key set, and verifying bearer tokens presented to a protected
// resource.
//
// Every URL a caller supplies is checked by package endpoint before it is
// requested, every client is held to a fixed window by package ratelimit, and
// tokens are classified and verified by package jwt. Package proxy puts these
// together behind an HTTP API; cmd/oauthlab runs it.
package oauthlab
