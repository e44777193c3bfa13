package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pppmon/pppmon/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a pppmon configuration file without starting the server.

This command parses the YAML, expands environment variables, reads the
names file and validates all fields. Every problem found is reported.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  pppmon validate -c config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	names, err := cfg.ExpectedNames()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	router := cfg.Router
	if router == "" {
		router = "(none, pick one in the dashboard)"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Backend:        %s\n", cfg.BackendURL)
	fmt.Fprintf(out, "  Port:           %d\n", cfg.Port)
	fmt.Fprintf(out, "  Router:         %s\n", router)
	fmt.Fprintf(out, "  Expected names: %d\n", len(names))
	fmt.Fprintf(out, "  Heartbeat:      %s (data every %d, db every %d)\n",
		cfg.Heartbeat.Duration(), cfg.WebRefresh, cfg.DBRefresh)
	fmt.Fprintf(out, "  Status:         every %s, timeout %s\n",
		cfg.StatusInterval.Duration(), cfg.StatusTimeout.Duration())

	return nil
}
