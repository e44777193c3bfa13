// Package config provides YAML configuration parsing for pppmon.
//
// This package enables running the monitor as a standalone binary with a
// configuration file, as an alternative to the programmatic API.
//
// Example configuration:
//
//	title: North PoP
//	port: 1080
//	backend_url: ${PPPMON_BACKEND:-http://127.0.0.1:5000}
//	headers:
//	  Authorization: Bearer ${PPPMON_TOKEN}
//
//	router: core-1
//	names_file: customers.txt
//	vendor: ""
//	search: ""
//
//	heartbeat: 1s
//	web_refresh: 30
//	db_refresh: 30
//	status_timeout: 120s
//	status_interval: 5s
//
//	log:
//	  file: /var/log/pppmon.log
//	  max_size_mb: 10
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort           = 1080
	defaultTimeout        = 10 * time.Second
	defaultHeartbeat      = time.Second
	defaultRefresh        = 30
	defaultStatusTimeout  = 120 * time.Second
	defaultStatusInterval = 5 * time.Second
	defaultListRefresh    = 30 * time.Second
	defaultMaxConcurrency = 4
	defaultSuggestLimit   = 10

	defaultLogMaxSizeMB  = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAgeDays = 28
)

// minHeartbeat keeps the countdown from spinning the event loop.
const minHeartbeat = 100 * time.Millisecond

// Config is the root configuration structure for pppmon.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title. Defaults to "PPP Monitor" if not set.
	Title string `yaml:"title"`

	// Port is the dashboard HTTP port. Defaults to 1080.
	Port int `yaml:"port"`

	// BackendURL is the base URL of the router backend. Required.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	BackendURL string `yaml:"backend_url"`

	// Headers are sent with every backend request.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`

	// Timeout bounds each backend request. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// Heartbeat is the countdown tick period. Defaults to 1s.
	Heartbeat Duration `yaml:"heartbeat"`

	// WebRefresh and DBRefresh are countdown lengths in heartbeats.
	// Both default to 30.
	WebRefresh int `yaml:"web_refresh"`
	DBRefresh  int `yaml:"db_refresh"`

	// StatusTimeout is how long a connection stays confirmed without a
	// positive status poll. Defaults to 120s.
	StatusTimeout Duration `yaml:"status_timeout"`

	// StatusInterval is the status poll period. Defaults to 5s.
	StatusInterval Duration `yaml:"status_interval"`

	// ListRefresh is the router list refresh period. Defaults to 30s.
	ListRefresh Duration `yaml:"list_refresh"`

	MaxConcurrency int `yaml:"max_concurrency"`
	SuggestLimit   int `yaml:"suggest_limit"`

	// Router is selected on startup when set.
	Router string `yaml:"router"`

	// Names is the expected-name list. NamesFile adds one name per line
	// from a text file, resolved relative to the config file.
	Names     []string `yaml:"names"`
	NamesFile string   `yaml:"names_file"`

	// Vendor and Search are the initial filters.
	Vendor string `yaml:"vendor"`
	Search string `yaml:"search"`

	Log LogConfig `yaml:"log"`
}

// LogConfig configures the optional rotating log file.
type LogConfig struct {
	// File is the log file path. Empty logs to stderr only.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`

	// Level is one of debug, info, warn or error. Defaults to info.
	Level string `yaml:"level"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		sub := envVarPattern.FindStringSubmatch(match)
		if len(sub) < 2 {
			return match
		}

		name := sub[1]
		hasDefault := len(sub) > 2 && sub[2] != ""

		value, exists := os.LookupEnv(name)
		if exists {
			return value
		}
		if hasDefault {
			return sub[3]
		}
		firstErr = fmt.Errorf("environment variable %q is not set", name)
		return match
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before validation. A
// relative names_file is resolved against the directory of path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if cfg.NamesFile != "" && !filepath.IsAbs(cfg.NamesFile) {
		cfg.NamesFile = filepath.Join(filepath.Dir(path), cfg.NamesFile)
	}
	return cfg, nil
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in backend_url, router and header
// values. Every validation problem is reported, not just the first.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.Timeout == 0 {
		c.Timeout = Duration(defaultTimeout)
	}
	if c.Heartbeat == 0 {
		c.Heartbeat = Duration(defaultHeartbeat)
	}
	if c.WebRefresh == 0 {
		c.WebRefresh = defaultRefresh
	}
	if c.DBRefresh == 0 {
		c.DBRefresh = defaultRefresh
	}
	if c.StatusTimeout == 0 {
		c.StatusTimeout = Duration(defaultStatusTimeout)
	}
	if c.StatusInterval == 0 {
		c.StatusInterval = Duration(defaultStatusInterval)
	}
	if c.ListRefresh == 0 {
		c.ListRefresh = Duration(defaultListRefresh)
	}
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = defaultMaxConcurrency
	}
	if c.SuggestLimit == 0 {
		c.SuggestLimit = defaultSuggestLimit
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = defaultLogMaxBackups
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = defaultLogMaxAgeDays
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	var errs error

	if c.BackendURL == "" {
		errs = multierr.Append(errs, errors.New("backend_url is required"))
	} else if expanded, err := expandEnvVars(c.BackendURL); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("backend_url: %w", err))
	} else {
		c.BackendURL = expanded
		errs = multierr.Append(errs, validateURL(c.BackendURL))
	}

	if c.Router != "" {
		expanded, err := expandEnvVars(c.Router)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("router: %w", err))
		}
		c.Router = expanded
	}

	for k, v := range c.Headers {
		if k == "" {
			errs = multierr.Append(errs, errors.New("headers: name cannot be empty"))
			continue
		}
		expanded, err := expandEnvVars(v)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("headers[%s]: %w", k, err))
			continue
		}
		c.Headers[k] = expanded
	}

	if c.Port < 1 || c.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("port must be between 1 and 65535, got %d", c.Port))
	}

	if c.Timeout.Duration() < 0 {
		errs = multierr.Append(errs, fmt.Errorf("timeout cannot be negative, got %s", c.Timeout.Duration()))
	}
	if c.Heartbeat.Duration() < minHeartbeat {
		errs = multierr.Append(errs, fmt.Errorf("heartbeat must be at least %s, got %s", minHeartbeat, c.Heartbeat.Duration()))
	}
	if c.WebRefresh < 0 || c.DBRefresh < 0 {
		errs = multierr.Append(errs, fmt.Errorf("web_refresh and db_refresh must be positive, got %d and %d", c.WebRefresh, c.DBRefresh))
	}
	if c.StatusInterval.Duration() < time.Second {
		errs = multierr.Append(errs, fmt.Errorf("status_interval must be at least 1s, got %s", c.StatusInterval.Duration()))
	}
	if c.StatusTimeout.Duration() <= c.StatusInterval.Duration() {
		errs = multierr.Append(errs, fmt.Errorf("status_timeout (%s) must exceed status_interval (%s)",
			c.StatusTimeout.Duration(), c.StatusInterval.Duration()))
	}
	if c.ListRefresh.Duration() < time.Second {
		errs = multierr.Append(errs, fmt.Errorf("list_refresh must be at least 1s, got %s", c.ListRefresh.Duration()))
	}
	if c.MaxConcurrency < 0 {
		errs = multierr.Append(errs, fmt.Errorf("max_concurrency must be positive, got %d", c.MaxConcurrency))
	}
	if c.SuggestLimit < 0 {
		errs = multierr.Append(errs, fmt.Errorf("suggest_limit must be positive, got %d", c.SuggestLimit))
	}

	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		errs = multierr.Append(errs, errors.New("log: max_size_mb, max_backups and max_age_days cannot be negative"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = multierr.Append(errs, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}

	return errs
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("backend_url: invalid url: %w", err)
	}
	if parsed.Scheme == "" {
		return errors.New("backend_url: url must have a scheme (http:// or https://)")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("backend_url: url scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("backend_url: url must include a host")
	}
	return nil
}
