package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pppmon/pppmon/internal/models"
)

// DefaultRequestTimeout bounds every backend request unless overridden.
const DefaultRequestTimeout = 10 * time.Second

// ErrEmptyRouterID is returned by router-scoped calls given an empty id.
var ErrEmptyRouterID = errors.New("router id is required")

// StatusError is returned when the backend answers with a non-2xx code.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend %s returned %d", e.Path, e.StatusCode)
	}
	return fmt.Sprintf("backend %s returned %d: %s", e.Path, e.StatusCode, e.Body)
}

// Backend is a typed client for the router backend HTTP API.
type Backend struct {
	client  *Client
	baseURL string
}

// NewBackend returns a [Backend] rooted at baseURL. headers are sent with
// every request. A non-positive timeout falls back to
// [DefaultRequestTimeout].
func NewBackend(baseURL string, headers map[string]string, timeout time.Duration) (*Backend, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("backend url scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("backend url must include a host")
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Backend{
		client:  NewClient(headers, timeout),
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Routers lists the routers the backend manages.
func (b *Backend) Routers(ctx context.Context) ([]models.Router, error) {
	var out []models.Router
	if err := b.call(ctx, http.MethodGet, "/routers", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Connect asks the backend to start collecting from routerID. A decoded
// {success:false} body is returned without error; callers decide how to
// surface it.
func (b *Backend) Connect(ctx context.Context, routerID string) (models.ConnectResult, error) {
	var out models.ConnectResult
	if routerID == "" {
		return out, ErrEmptyRouterID
	}
	err := b.call(ctx, http.MethodPost, "/connect/"+url.PathEscape(routerID), &out)
	return out, err
}

// Status fetches the liveness report for routerID.
func (b *Backend) Status(ctx context.Context, routerID string) (models.StatusReport, error) {
	var out models.StatusReport
	if routerID == "" {
		return out, ErrEmptyRouterID
	}
	err := b.call(ctx, http.MethodGet, "/status/"+url.PathEscape(routerID), &out)
	return out, err
}

// Secrets fetches the PPP secret names configured on routerID.
func (b *Backend) Secrets(ctx context.Context, routerID string) ([]string, error) {
	if routerID == "" {
		return nil, ErrEmptyRouterID
	}
	var out []string
	if err := b.call(ctx, http.MethodGet, "/secrets/"+url.PathEscape(routerID), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Data fetches the currently-online sessions of routerID.
func (b *Backend) Data(ctx context.Context, routerID string) ([]models.DeviceRecord, error) {
	if routerID == "" {
		return nil, ErrEmptyRouterID
	}
	var out []models.DeviceRecord
	if err := b.call(ctx, http.MethodGet, "/data/"+url.PathEscape(routerID), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Vendors fetches the bulk vendor list used to seed autosuggest.
func (b *Backend) Vendors(ctx context.Context) ([]string, error) {
	var out []string
	if err := b.call(ctx, http.MethodGet, "/vendors", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Logs fetches the backend's recent log lines.
func (b *Backend) Logs(ctx context.Context) ([]models.LogEntry, error) {
	var out []models.LogEntry
	if err := b.call(ctx, http.MethodGet, "/logs", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases idle connections.
func (b *Backend) Close() {
	if b == nil {
		return
	}
	b.client.Close()
}

func (b *Backend) call(ctx context.Context, method, path string, out any) error {
	reply, err := b.client.Do(ctx, method, b.baseURL+path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if !reply.OK() {
		return &StatusError{
			Path:       path,
			StatusCode: reply.StatusCode,
			Body:       truncate(strings.TrimSpace(string(reply.Body)), 200),
		}
	}
	if err := json.Unmarshal(reply.Body, out); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
