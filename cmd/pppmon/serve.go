package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pppmon/pppmon"
	"github.com/pppmon/pppmon/config"
)

const shutdownTimeout = 10 * time.Second

// serveCmd starts the monitor and its dashboard.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the monitor and dashboard server",
	Long: `Start the pppmon monitor and dashboard server.

The server will:
  - Load configuration from the specified YAML file
  - Select the configured router, if any, and process the expected names
  - Poll the backend on the configured heartbeat
  - Serve the dashboard UI on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  pppmon serve -c config.yaml
  pppmon serve --config /etc/pppmon/config.yaml --log-file /var/log/pppmon.log`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, closer := newLogger(cmd, cfg.Log, cfg.LogLevel())
	defer func() { _ = closer.Close() }()

	opts, err := config.BuildOptions(cfg)
	if err != nil {
		return fmt.Errorf("failed to build options: %w", err)
	}
	opts = append(opts, pppmon.WithLogger(logger))

	logger.Info("starting monitor",
		"backend", cfg.BackendURL,
		"router", cfg.Router,
		"port", cfg.Port,
		"heartbeat", cfg.Heartbeat.Duration().String(),
	)

	m, err := pppmon.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	if err := awaitMonitor(ctx, done, shutdownTimeout); err != nil {
		return err
	}
	logger.Info("monitor stopped", "dashboard_port", m.Port())
	return nil
}

// awaitMonitor waits for Start to return. Once ctx is cancelled it allows
// grace for the HTTP server and pollers to drain, then gives up.
func awaitMonitor(ctx context.Context, done <-chan error, grace time.Duration) error {
	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		select {
		case err = <-done:
		case <-time.After(grace):
			return fmt.Errorf("monitor did not stop within %s", grace)
		}
	}
	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	return nil
}
