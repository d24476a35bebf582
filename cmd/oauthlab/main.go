// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Command oauthlab runs the server side of an OAuth/OIDC playground: token
// exchange, provider discovery and protected-resource verification, behind
// SSRF protection and per-client rate limiting.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "oauthlab",
		Short:         "Server side of the OAuth/OIDC playground",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "oauthlab: %s\n", err)
		os.Exit(1)
	}
}
