package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"StockLive/internal/token"
	applogger "StockLive/pkg/logger"
)

// Refresher renews the credential after a 401. Implemented by auth.Refresher.
type Refresher interface {
	RefreshOnce(ctx context.Context) bool
}

// Metrics records request traffic.
type Metrics interface {
	RecordRequest(method, status string)
	RecordRetry()
	RecordLatency(method string, seconds float64)
}

// ClientOption configures Client.
type ClientOption func(*Client)

// Client issues authenticated API requests. On a 401 it triggers one
// coordinated credential refresh and resends the request exactly once; a
// second 401 is surfaced to the caller unchanged.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	refreshPath string
	cache       *token.Cache
	refresher   Refresher
	logger      *applogger.Logger
	metrics     Metrics
}

// NewClient creates a request executor. The http.Client must share its cookie
// jar with the refresher so the httponly session cookie backs renewal.
func NewClient(httpClient *http.Client, baseURL, refreshPath string, cache *token.Cache, r Refresher, l *applogger.Logger, opts ...ClientOption) *Client {
	c := &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		refreshPath: refreshPath,
		cache:       cache,
		refresher:   r,
		logger:      l,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// RequestOptions describes one request for the generic entry point. Method
// defaults to GET; Body and Dest are optional.
type RequestOptions struct {
	Method string
	Path   string
	Body   interface{}
	Dest   interface{}
}

// Do issues a request described by opts through the same resilient path as
// the verb helpers.
func (c *Client) Do(ctx context.Context, opts RequestOptions) error {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	return c.request(ctx, method, opts.Path, opts.Body, opts.Dest)
}

// Get issues a GET request and decodes the JSON response into dest.
func (c *Client) Get(ctx context.Context, path string, dest interface{}) error {
	return c.request(ctx, http.MethodGet, path, nil, dest)
}

// Post issues a POST request with an optional JSON body.
func (c *Client) Post(ctx context.Context, path string, body, dest interface{}) error {
	return c.request(ctx, http.MethodPost, path, body, dest)
}

// Put issues a PUT request with an optional JSON body.
func (c *Client) Put(ctx context.Context, path string, body, dest interface{}) error {
	return c.request(ctx, http.MethodPut, path, body, dest)
}

// Patch issues a PATCH request with an optional JSON body.
func (c *Client) Patch(ctx context.Context, path string, body, dest interface{}) error {
	return c.request(ctx, http.MethodPatch, path, body, dest)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, dest interface{}) error {
	return c.request(ctx, http.MethodDelete, path, nil, dest)
}

func (c *Client) request(ctx context.Context, method, path string, body, dest interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
	}

	start := time.Now()
	resp, err := c.send(ctx, method, path, payload)
	if err != nil {
		c.observe(method, "error", start)
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized && !c.isRefreshPath(path) {
		if c.refresher.RefreshOnce(ctx) {
			drain(resp)
			if c.metrics != nil {
				c.metrics.RecordRetry()
			}
			// Resend once with the freshly cached credential. The headers
			// are rebuilt inside send, which re-reads the cache.
			resp, err = c.send(ctx, method, path, payload)
			if err != nil {
				c.observe(method, "error", start)
				return err
			}
		}
		// Refresh failed: fall through and surface the original 401.
	}

	c.observe(method, fmt.Sprintf("%d", resp.StatusCode), start)
	return c.handle(resp, dest)
}

// send performs a single HTTP exchange, building headers from current state.
func (c *Client) send(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	// The renewal endpoint must never see a bearer credential, stale or not.
	if tok, ok := c.cache.Get(); ok && !c.isRefreshPath(path) {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// handle normalizes the response: 204 or an empty body resolves as success
// with dest left untouched, non-2xx becomes a StatusError carrying the
// server's message, and a 2xx body is JSON-decoded into dest.
func (c *Client) handle(resp *http.Response, dest interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		c.logger.Warn("request rejected",
			applogger.String("url", resp.Request.URL.Path),
			applogger.Int("status", resp.StatusCode),
		)
		return &StatusError{Status: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	if resp.StatusCode == http.StatusNoContent || resp.ContentLength == 0 {
		return nil
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(b) == 0 {
		return nil
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

// isRefreshPath reports whether a request targets the renewal endpoint.
// Absolute URLs are reduced to their path first so the no-credential rule
// holds however the endpoint is addressed.
func (c *Client) isRefreshPath(path string) bool {
	if strings.HasPrefix(path, "http") {
		if u, err := neturl.Parse(path); err == nil {
			path = u.Path
		}
	}
	return strings.HasPrefix(path, c.refreshPath)
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func (c *Client) observe(method, status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordRequest(method, status)
	c.metrics.RecordLatency(method, time.Since(start).Seconds())
}

// drain discards and closes a response body so the connection can be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 8192))
	resp.Body.Close()
}
