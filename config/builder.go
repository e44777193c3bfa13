package config

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/pppmon/pppmon"
)

// BuildOptions converts parsed configuration into monitor options.
//
// The names file, if any, is read here so that a missing file is reported
// at startup. Logging options are left to the caller.
func BuildOptions(cfg *Config) ([]pppmon.Option, error) {
	names, err := cfg.ExpectedNames()
	if err != nil {
		return nil, err
	}

	opts := []pppmon.Option{
		pppmon.WithBackendURL(cfg.BackendURL),
		pppmon.WithPort(cfg.Port),
		pppmon.WithRequestTimeout(cfg.Timeout.Duration()),
		pppmon.WithHeartbeat(cfg.Heartbeat.Duration()),
		pppmon.WithRefresh(cfg.WebRefresh, cfg.DBRefresh),
		pppmon.WithStatusTimeout(cfg.StatusTimeout.Duration()),
		pppmon.WithStatusInterval(cfg.StatusInterval.Duration()),
		pppmon.WithListRefresh(cfg.ListRefresh.Duration()),
		pppmon.WithMaxConcurrency(cfg.MaxConcurrency),
		pppmon.WithSuggestLimit(cfg.SuggestLimit),
	}

	if cfg.Title != "" {
		opts = append(opts, pppmon.WithTitle(cfg.Title))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, pppmon.WithHeaders(mapToKeyValuePairs(cfg.Headers)...))
	}
	if cfg.Router != "" {
		opts = append(opts, pppmon.WithInitialRouter(cfg.Router))
	}
	if len(names) > 0 {
		opts = append(opts,
			pppmon.WithExpectedNames(names...),
			pppmon.WithFilters(cfg.Filters()),
		)
	}

	return opts, nil
}

// ExpectedNames returns the configured names followed by those read from
// names_file, cleaned the same way as names typed into the dashboard.
func (c *Config) ExpectedNames() ([]string, error) {
	var names []string
	for _, n := range c.Names {
		names = append(names, pppmon.ParseNames(n)...)
	}
	if c.NamesFile == "" {
		return names, nil
	}
	data, err := os.ReadFile(c.NamesFile)
	if err != nil {
		return nil, fmt.Errorf("names_file: %w", err)
	}
	return append(names, pppmon.ParseNames(string(data))...), nil
}

// Filters returns the configured initial filters.
func (c *Config) Filters() pppmon.Filters {
	return pppmon.Filters{Vendor: c.Vendor, Search: c.Search}
}

// LogLevel maps log.level to a slog level.
func (c *Config) LogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
