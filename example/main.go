package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pppmon/pppmon"
	"github.com/pppmon/pppmon/example/mockbackend"
)

func main() {
	// start an in-process mock backend (see mockbackend)
	backend := mockbackend.New(40)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		slog.Error("failed to listen", "error", err)
		os.Exit(1)
	}
	srv := &http.Server{Handler: backend.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer func() { _ = srv.Close() }()

	// expect every core customer plus two that are not configured at all
	names := append(backend.Secrets("core-1"), "core-cust-901", "core-cust-902")

	m, err := pppmon.New(
		pppmon.WithBackendURL("http://"+ln.Addr().String()),
		pppmon.WithPort(1080),
		pppmon.WithTitle("PPP Monitor Demo"),
		pppmon.WithRefresh(5, 30),
		pppmon.WithInitialRouter("core-1"),
		pppmon.WithExpectedNames(names...),
		pppmon.WithConnectionCallback(func(ev pppmon.ConnectionEvent) {
			slog.Info("connection changed",
				"router", ev.RouterID,
				"to", ev.To.String(),
				"reason", ev.Reason,
			)
		}),
	)
	if err != nil {
		slog.Error("failed to create monitor", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  PPP Monitor demo")
	fmt.Println()
	fmt.Println("  Open http://localhost:1080 in your browser")
	fmt.Println("  Mock backend at http://" + ln.Addr().String())
	fmt.Println("  Routers: core-1 (selected), edge-2, lab-3 (refuses to connect)")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := m.Start(ctx); err != nil {
		slog.Error("monitor error", "error", err)
		os.Exit(1)
	}
}
