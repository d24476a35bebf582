// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package endpoint

import (
	"context"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/net/idna"

	"github.com/hashicorp/oauthlab/internal/strutils"
)

// Resolver looks up every address of a host. *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// DefaultAllowedPorts returns the ports an outbound URL may name explicitly.
func DefaultAllowedPorts() []string {
	return []string{"80", "443", "3000", "8080", "8443"}
}

// Validator decides whether a URL is safe to request from the server. It must
// be consulted before any outbound request whose target came from a caller.
type Validator struct {
	resolver     Resolver
	allowedPorts []string
	logger       hclog.Logger
}

// NewValidator creates a Validator.
// Supported options:
//   - WithResolver
//   - WithAllowedPorts
//   - WithLogger
func NewValidator(opt ...Option) *Validator {
	opts := getValidatorOpts(opt...)
	return &Validator{
		resolver:     opts.withResolver,
		allowedPorts: opts.withAllowedPorts,
		logger:       opts.withLogger,
	}
}

// Validate returns nil when rawURL may be requested, otherwise an *Error
// carrying the reason. Hostnames are resolved and every returned address is
// checked, so a name that resolves to one public and one internal address is
// rejected.
func (v *Validator) Validate(ctx context.Context, rawURL string) error {
	err := v.validate(ctx, rawURL)
	if err != nil {
		v.logger.Debug("endpoint rejected", "reason", err.Reason)
		return err
	}
	return nil
}

func (v *Validator) validate(ctx context.Context, rawURL string) *Error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return newError(rawURL, ReasonMalformedURL, ErrMalformedURL)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return newError(rawURL, ReasonMalformedURL, ErrMalformedURL)
	}

	local := isLocalhost(host)
	switch {
	case u.Scheme == "https":
	case local && u.Scheme == "http":
	default:
		return newError(rawURL, ReasonNotHTTPS, ErrNotHTTPS)
	}

	if port := u.Port(); port != "" && !strutils.StrListContains(v.allowedPorts, port) {
		return newError(rawURL, ReasonDisallowedPort, ErrDisallowedPort)
	}

	if local {
		return nil
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if r, blocked := blockedRange(addr); blocked {
			return newError(rawURL, r.description, ErrBlockedAddress)
		}
		return nil
	}

	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return newError(rawURL, ReasonMalformedURL, ErrMalformedURL)
	}
	addrs, err := v.resolver.LookupIPAddr(ctx, ascii)
	if err != nil || len(addrs) == 0 {
		return newError(rawURL, ReasonUnresolvable, ErrUnresolvable)
	}
	for _, a := range addrs {
		addr, ok := netip.AddrFromSlice(a.IP)
		if !ok {
			return newError(rawURL, ReasonUnresolvable, ErrUnresolvable)
		}
		if r, blocked := blockedRange(addr); blocked {
			return newError(rawURL, r.description, ErrBlockedAddress)
		}
	}
	return nil
}

// DialControl is a net.Dialer Control hook that refuses to connect to a
// blocked address. It closes the window between Validate resolving a name
// and the transport resolving it again. Loopback stays reachable because
// Validate lets localhost through.
func (v *Validator) DialControl(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return newError(address, ReasonMalformedURL, ErrMalformedURL)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return newError(address, ReasonMalformedURL, ErrMalformedURL)
	}
	if addr.Unmap().IsLoopback() {
		return nil
	}
	if r, blocked := blockedRange(addr); blocked {
		v.logger.Warn("refused connection to blocked address", "range", r.description)
		return newError(address, r.description, ErrBlockedAddress)
	}
	return nil
}

func isLocalhost(host string) bool {
	return host == "localhost" || host == "127.0.0.1"
}

// IsLocalhost reports whether rawURL targets localhost or 127.0.0.1.
func IsLocalhost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return isLocalhost(strings.ToLower(u.Hostname()))
}
