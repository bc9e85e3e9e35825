// Package main is the entry point for the edgefip CLI.
//
// edgefip binds public addresses of a vCloud Director edge gateway to
// workloads behind it by managing SNAT/DNAT rule pairs.
//
// Commands: connect, disconnect, pairs, free-ip, version.
//
// For detailed usage information, run:
//
//	edgefip --help
package main

import (
	"fmt"
	"os"

	"github.com/imamik/edgefip/cmd/edgefip/commands"
	"github.com/imamik/edgefip/cmd/edgefip/handlers"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(handlers.ExitCode(err))
	}
}
