package pppmon

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// monitorConfig holds mutable state during Monitor construction.
type monitorConfig struct {
	title          string
	backendURL     string
	headers        map[string]string
	port           int
	serve          bool
	logger         *slog.Logger
	clock          clockwork.Clock
	heartbeat      time.Duration
	webRefresh     int
	dbRefresh      int
	statusTimeout  time.Duration
	statusInterval time.Duration
	listRefresh    time.Duration
	requestTimeout time.Duration
	maxConcurrency int
	suggestLimit   int
	initialRouter  string
	expectedNames  []string
	filters        Filters
	callbacks      []func(ConnectionEvent)
}

// Option is a function that configures a [Monitor] during construction.
//
// Option implements the functional options pattern. Options return an error
// if validation fails.
type Option func(*monitorConfig) error

// WithBackendURL sets the base URL of the router backend. Required.
//
// Example:
//
//	m, err := pppmon.New(pppmon.WithBackendURL("http://127.0.0.1:5000"))
func WithBackendURL(u string) Option {
	return func(cfg *monitorConfig) error {
		u = strings.TrimSpace(u)
		if u == "" {
			return errors.New("backend url cannot be empty")
		}
		cfg.backendURL = u
		return nil
	}
}

// WithHeaders adds static headers sent with every backend request, given
// as alternating key/value pairs.
//
// Returns an error if an odd number of arguments is given.
func WithHeaders(kv ...string) Option {
	return func(cfg *monitorConfig) error {
		if len(kv)%2 != 0 {
			return errors.New("headers must be key-value pairs")
		}
		if cfg.headers == nil {
			cfg.headers = make(map[string]string, len(kv)/2)
		}
		for i := 0; i < len(kv); i += 2 {
			if kv[i] == "" {
				return errors.New("header name cannot be empty")
			}
			cfg.headers[kv[i]] = kv[i+1]
		}
		return nil
	}
}

// WithPort sets the HTTP port for the dashboard server. Defaults to 1080.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *monitorConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithoutServer disables the dashboard server. The monitor still polls and
// its methods still work.
func WithoutServer() Option {
	return func(cfg *monitorConfig) error {
		cfg.serve = false
		return nil
	}
}

// WithTitle sets the dashboard title displayed in the browser tab and header.
func WithTitle(title string) Option {
	return func(cfg *monitorConfig) error {
		cfg.title = title
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *monitorConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithClock replaces the wall clock driving the heartbeat and the status
// and router-list timers. Tests pass a [clockwork.FakeClock].
func WithClock(c clockwork.Clock) Option {
	return func(cfg *monitorConfig) error {
		if c == nil {
			return errors.New("clock cannot be nil")
		}
		cfg.clock = c
		return nil
	}
}

// WithHeartbeat sets the heartbeat period. Countdowns are expressed in
// heartbeats. Defaults to one second.
func WithHeartbeat(d time.Duration) Option {
	return func(cfg *monitorConfig) error {
		if d <= 0 {
			return errors.New("heartbeat must be positive")
		}
		cfg.heartbeat = d
		return nil
	}
}

// WithRefresh sets the web and db countdown periods in heartbeats. The web
// countdown schedules data polls; the db countdown is display only. Both
// default to 30.
func WithRefresh(web, db int) Option {
	return func(cfg *monitorConfig) error {
		if web <= 0 || db <= 0 {
			return fmt.Errorf("refresh periods must be positive, got web=%d db=%d", web, db)
		}
		cfg.webRefresh = web
		cfg.dbRefresh = db
		return nil
	}
}

// WithStatusTimeout sets how long a confirmed connection stays connected
// without a new positive status poll. Defaults to 120 seconds.
func WithStatusTimeout(d time.Duration) Option {
	return func(cfg *monitorConfig) error {
		if d <= 0 {
			return errors.New("status timeout must be positive")
		}
		cfg.statusTimeout = d
		return nil
	}
}

// WithStatusInterval sets how often the status endpoint is polled.
// Defaults to 5 seconds.
func WithStatusInterval(d time.Duration) Option {
	return func(cfg *monitorConfig) error {
		if d <= 0 {
			return errors.New("status interval must be positive")
		}
		cfg.statusInterval = d
		return nil
	}
}

// WithListRefresh sets how often the router list is refreshed.
// Defaults to 30 seconds.
func WithListRefresh(d time.Duration) Option {
	return func(cfg *monitorConfig) error {
		if d <= 0 {
			return errors.New("list refresh must be positive")
		}
		cfg.listRefresh = d
		return nil
	}
}

// WithRequestTimeout bounds every backend request. Defaults to 10 seconds.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *monitorConfig) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		cfg.requestTimeout = d
		return nil
	}
}

// WithMaxConcurrency sets the maximum number of in-flight backend requests.
// Defaults to 4.
func WithMaxConcurrency(n int) Option {
	return func(cfg *monitorConfig) error {
		if n <= 0 {
			return errors.New("max concurrency must be positive")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithSuggestLimit sets the default number of vendor suggestions.
// Defaults to 10.
func WithSuggestLimit(n int) Option {
	return func(cfg *monitorConfig) error {
		if n <= 0 {
			return errors.New("suggest limit must be positive")
		}
		cfg.suggestLimit = n
		return nil
	}
}

// WithInitialRouter selects routerID as soon as the monitor starts.
func WithInitialRouter(routerID string) Option {
	return func(cfg *monitorConfig) error {
		cfg.initialRouter = strings.TrimSpace(routerID)
		return nil
	}
}

// WithExpectedNames sets the expected-name list processed automatically
// whenever a router is selected.
func WithExpectedNames(names ...string) Option {
	return func(cfg *monitorConfig) error {
		cfg.expectedNames = append(cfg.expectedNames, names...)
		return nil
	}
}

// WithFilters sets the filters used with [WithExpectedNames].
func WithFilters(f Filters) Option {
	return func(cfg *monitorConfig) error {
		cfg.filters = f
		return nil
	}
}

// WithConnectionCallback registers a function called on every liveness
// transition, including watchdog timeouts.
//
// Callbacks are invoked synchronously from the monitor's event loop and
// must not block. Panics within callbacks are recovered and logged.
//
// Example:
//
//	m, err := pppmon.New(
//	    pppmon.WithBackendURL(url),
//	    pppmon.WithConnectionCallback(func(ev pppmon.ConnectionEvent) {
//	        if ev.To == pppmon.StateDisconnected {
//	            log.Printf("router %s lost (%s)", ev.RouterID, ev.Reason)
//	        }
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithConnectionCallback(cb func(ConnectionEvent)) Option {
	return func(cfg *monitorConfig) error {
		if cb == nil {
			return nil
		}
		cfg.callbacks = append(cfg.callbacks, cb)
		return nil
	}
}
