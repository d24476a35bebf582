// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package endpoint

import (
	"net/netip"
	"strconv"
	"strings"
)

// rangeRule blocks every address whose textual form starts with prefix and,
// when refine is set, also satisfies refine.
type rangeRule struct {
	prefix      string
	description string
	refine      func(addr string) bool
}

func (r rangeRule) matches(addr string) bool {
	if !strings.HasPrefix(addr, r.prefix) {
		return false
	}
	return r.refine == nil || r.refine(addr)
}

// blockedRanges is consulted top to bottom and the first matching rule wins.
// New ranges are added here, not as branches in the validator.
var blockedRanges = []rangeRule{
	{prefix: "127.", description: "loopback"},
	{prefix: "::1", description: "loopback", refine: exactly("::1")},
	{prefix: "::ffff:127.", description: "loopback (IPv4-mapped)"},
	{prefix: "10.", description: "private network (10.0.0.0/8)"},
	{prefix: "192.168.", description: "private network (192.168.0.0/16)"},
	{prefix: "172.", description: "private network (172.16.0.0/12)", refine: secondOctetBetween(16, 31)},
	{prefix: "169.254.", description: "link-local / cloud metadata"},
	{prefix: "fc", description: "IPv6 unique local address"},
	{prefix: "fd", description: "IPv6 unique local address"},
	{prefix: "fe80:", description: "IPv6 link-local"},
	{prefix: "100.100.100.200", description: "cloud metadata", refine: exactly("100.100.100.200")},
	{prefix: "0.0.0.0", description: "unspecified address", refine: exactly("0.0.0.0")},
	{prefix: "::", description: "unspecified address", refine: exactly("::")},
}

func exactly(want string) func(string) bool {
	return func(addr string) bool { return addr == want }
}

func secondOctetBetween(lo, hi int) func(string) bool {
	return func(addr string) bool {
		parts := strings.Split(addr, ".")
		if len(parts) != 4 {
			return false
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			return false
		}
		return n >= lo && n <= hi
	}
}

// blockedRange returns the first rule matching addr. Both the address as
// given and its IPv4-unmapped form are checked, so ::ffff:10.0.0.1 is caught
// by the 10. rule.
func blockedRange(addr netip.Addr) (rangeRule, bool) {
	forms := []string{strings.ToLower(addr.String())}
	if unmapped := addr.Unmap(); unmapped != addr {
		forms = append(forms, unmapped.String())
	}
	for _, r := range blockedRanges {
		for _, f := range forms {
			if r.matches(f) {
				return r, true
			}
		}
	}
	return rangeRule{}, false
}
