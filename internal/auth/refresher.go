package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"StockLive/internal/token"
	applogger "StockLive/pkg/logger"
)

// Metrics records refresh attempt outcomes.
type Metrics interface {
	RecordRefresh(outcome string)
}

// Refresher coordinates credential renewal so that a burst of concurrent 401s
// results in exactly one renewal call. Callers discovering an in-flight
// attempt join it and share its outcome.
type Refresher struct {
	httpClient *http.Client
	refreshURL string
	cache      *token.Cache
	logger     *applogger.Logger
	metrics    Metrics

	mu       sync.Mutex
	inflight *attempt
}

// attempt is the single in-flight renewal. done is closed after ok is set.
type attempt struct {
	done chan struct{}
	ok   bool
}

// NewRefresher creates a refresh coordinator. The http.Client must carry the
// cookie jar holding the httponly session cookie; renewal authenticates with
// that cookie alone and never sends the stale bearer credential.
func NewRefresher(httpClient *http.Client, baseURL, refreshPath string, cache *token.Cache, l *applogger.Logger, m Metrics) *Refresher {
	return &Refresher{
		httpClient: httpClient,
		refreshURL: joinURL(baseURL, refreshPath),
		cache:      cache,
		logger:     l,
		metrics:    m,
	}
}

// RefreshOnce renews the credential, collapsing concurrent callers onto one
// network call. It reports whether a new credential was stored and never
// returns an error; every failure path clears the cache and reports false.
func (r *Refresher) RefreshOnce(ctx context.Context) bool {
	r.mu.Lock()
	if a := r.inflight; a != nil {
		r.mu.Unlock()
		<-a.done
		return a.ok
	}
	a := &attempt{done: make(chan struct{})}
	r.inflight = a
	r.mu.Unlock()

	a.ok = r.renew(ctx)
	close(a.done)

	// Release the slot only after the outcome is published so that joiners
	// racing with completion still read a settled attempt.
	r.mu.Lock()
	r.inflight = nil
	r.mu.Unlock()

	return a.ok
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

// renew performs the actual renewal call.
func (r *Refresher) renew(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.refreshURL, nil)
	if err != nil {
		return r.fail("refresh request build failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return r.fail("refresh request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r.logger.Warn("refresh rejected", applogger.Int("status", resp.StatusCode))
		return r.failSilently()
	}

	var body refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return r.fail("refresh response decode failed", err)
	}
	if body.AccessToken == "" {
		r.logger.Warn("refresh response missing accessToken")
		return r.failSilently()
	}

	r.cache.Set(body.AccessToken)
	if r.metrics != nil {
		r.metrics.RecordRefresh("renewed")
	}
	r.logger.Debug("credential renewed")
	return true
}

func (r *Refresher) fail(msg string, err error) bool {
	r.logger.Warn(msg, applogger.Error(err))
	return r.failSilently()
}

func (r *Refresher) failSilently() bool {
	r.cache.Clear()
	if r.metrics != nil {
		r.metrics.RecordRefresh("failed")
	}
	return false
}

// joinURL joins a base URL and a path without doubling slashes.
func joinURL(base, path string) string {
	if strings.HasPrefix(path, "http") {
		return path
	}
	base = strings.TrimSuffix(base, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}
