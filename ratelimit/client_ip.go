// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// UnknownClient is the identifier shared by every request that carries no
// usable address. All such requests draw from one quota.
const UnknownClient = "unknown"

// ClientIP identifies the client of r: the first X-Forwarded-For hop, else
// X-Real-IP, else the host of the connection's remote address, else
// UnknownClient. Forwarding headers are trusted as given, which is only
// appropriate behind a proxy that sets them.
func ClientIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if xRealIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); xRealIP != "" {
		return xRealIP
	}

	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return UnknownClient
	}
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	if host == "" {
		return UnknownClient
	}
	return host
}
