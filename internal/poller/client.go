package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// maxReplySize caps a backend reply. Large routers report thousands of
// sessions in a single /data body.
const maxReplySize = 4 << 20

// RequestIDHeader carries a per-request id so backend log lines can be
// matched to monitor log lines.
const RequestIDHeader = "X-Request-ID"

// ErrReplyTooLarge is returned when a reply exceeds the size cap.
var ErrReplyTooLarge = errors.New("backend reply exceeds 4MB")

// Reply is a raw backend answer.
type Reply struct {
	RequestID  string
	StatusCode int
	Body       []byte
	Latency    time.Duration
}

// OK reports whether the backend answered with a 2xx code.
func (r Reply) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client sends requests to a single backend host over a small keep-alive
// pool. Each call gets its own deadline, so the slow data feed and the
// status feed share connections without sharing timeouts.
type Client struct {
	hc      *http.Client
	headers map[string]string
	timeout time.Duration
}

// NewClient returns a [Client] that adds headers to every request and bounds
// each one by timeout. A non-positive timeout leaves only the caller's
// context in charge.
func NewClient(headers map[string]string, timeout time.Duration) *Client {
	return &Client{
		hc: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 8,
				MaxConnsPerHost:     8,
				IdleConnTimeout:     time.Minute,
			},
		},
		headers: headers,
		timeout: timeout,
	}
}

// Do sends a bodiless request to target. A reply with any status code is not
// an error; transport failures and oversized bodies are.
func (c *Client) Do(ctx context.Context, method, target string) (Reply, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	reply := Reply{RequestID: uuid.NewString()}
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return reply, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, reply.RequestID)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		reply.Latency = time.Since(start)
		return reply, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	reply.StatusCode = resp.StatusCode
	// one extra byte tells a full body apart from a truncated one
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize+1))
	reply.Latency = time.Since(start)
	if err != nil {
		return reply, fmt.Errorf("read reply: %w", err)
	}
	if len(body) > maxReplySize {
		return reply, ErrReplyTooLarge
	}
	reply.Body = body
	return reply, nil
}

// Close drops idle pooled connections. The client remains usable and Close
// is safe on a nil client.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.hc.CloseIdleConnections()
}
