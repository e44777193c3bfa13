// Package main is the entry point for the pppmon CLI.
//
// pppmon can be embedded as a library or run as a standalone binary with
// YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	pppmon serve -c config.yaml              # Start the dashboard
//	pppmon check -c config.yaml --router r1  # One polling pass, printed as a table
//	pppmon validate -c config.yaml           # Validate configuration
//	pppmon version                           # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "pppmon",
	Short: "Live PPP session monitor for managed routers",
	Long: `pppmon watches the PPP sessions of a router through its collector
backend and reconciles them against the list of customers you expect online.

It polls the backend on a one-second heartbeat, tracks whether the backend
still holds a live connection to the router, and serves a dashboard with
Server-Sent Events for live updates.

Quick start:
  1. Create a config file (pppmon.yaml)
  2. Run: pppmon serve -c pppmon.yaml
  3. Open http://localhost:1080 in your browser

Example config:
  backend_url: http://127.0.0.1:5000
  router: core-1
  names_file: customers.txt`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("log-file", "", "also write logs to this file, rotated by size")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this pppmon binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "pppmon %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}
