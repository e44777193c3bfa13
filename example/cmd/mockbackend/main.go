// Standalone mock router backend for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockbackend
//
// Then in another terminal:
//
//	go run ./cmd/pppmon serve -c example/config.yaml
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/pppmon/pppmon/example/mockbackend"
)

func main() {
	addr := flag.String("addr", ":5000", "listen address")
	customers := flag.Int("customers", 40, "PPP secrets per router")
	flag.Parse()

	fmt.Printf("Mock router backend starting on %s\n", *addr)
	fmt.Println("Routers: core-1, edge-2 (lab-3 refuses to connect)")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mockbackend.New(*customers).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
