package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"StockLive/internal/auth"
	"StockLive/internal/token"
	applogger "StockLive/pkg/logger"
)

const refreshPath = "/api/users/auth/refresh"

func newClient(srv *httptest.Server, cache *token.Cache) *Client {
	r := auth.NewRefresher(srv.Client(), srv.URL, refreshPath, cache, applogger.Nop(), nil)
	return NewClient(srv.Client(), srv.URL, refreshPath, cache, r, applogger.Nop())
}

func TestExpiredCredentialIsRefreshedAndRetriedOnce(t *testing.T) {
	var refreshCalls, dataCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc(refreshPath, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
		w.Write([]byte(`{"accessToken":"fresh"}`))
	})
	mux.HandleFunc("/api/data", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&dataCalls, 1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"value":42}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cache := token.NewCache()
	cache.Set("stale")
	c := newClient(srv, cache)

	var out struct {
		Value int `json:"value"`
	}
	if err := c.Get(context.Background(), "/api/data", &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Value != 42 {
		t.Fatalf("unexpected payload %+v", out)
	}
	if got := atomic.LoadInt32(&refreshCalls); got != 1 {
		t.Fatalf("expected one renewal, got %d", got)
	}
	if got := atomic.LoadInt32(&dataCalls); got != 2 {
		t.Fatalf("expected original plus one retry, got %d calls", got)
	}
	if tok, _ := cache.Get(); tok != "fresh" {
		t.Fatalf("cache holds %q after retry, want fresh", tok)
	}
}

func TestSecond401IsSurfacedWithoutAnotherRefresh(t *testing.T) {
	var refreshCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc(refreshPath, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
		w.Write([]byte(`{"accessToken":"fresh"}`))
	})
	mux.HandleFunc("/api/data", func(w http.ResponseWriter, r *http.Request) {
		// Always 401, even with the fresh credential.
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cache := token.NewCache()
	cache.Set("stale")
	c := newClient(srv, cache)

	err := c.Get(context.Background(), "/api/data", nil)
	if !IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("expected 401 error, got %v", err)
	}
	if got := atomic.LoadInt32(&refreshCalls); got != 1 {
		t.Fatalf("retry budget is one renewal per request, got %d", got)
	}
}

func TestFailedRefreshSurfacesOriginal401(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(refreshPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/api/data", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cache := token.NewCache()
	cache.Set("stale")
	c := newClient(srv, cache)

	err := c.Get(context.Background(), "/api/data", nil)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	if _, ok := cache.Get(); ok {
		t.Fatalf("expected cache cleared after failed renewal")
	}
}

func TestRefreshEndpointNeverReceivesAuthorization(t *testing.T) {
	var gotAuth atomic.Value
	gotAuth.Store("unset")
	mux := http.NewServeMux()
	mux.HandleFunc(refreshPath, func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		w.Write([]byte(`{"accessToken":"abc"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cache := token.NewCache()
	cache.Set("stale")
	c := newClient(srv, cache)

	var out struct {
		AccessToken string `json:"accessToken"`
	}
	if err := c.Post(context.Background(), refreshPath, nil, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h := gotAuth.Load().(string); h != "" {
		t.Fatalf("refresh request carried Authorization %q", h)
	}
	if out.AccessToken != "abc" {
		t.Fatalf("unexpected body %+v", out)
	}
}

func TestConcurrent401BurstTriggersOneRenewal(t *testing.T) {
	const n = 5

	var refreshCalls int32
	var barrier sync.WaitGroup
	barrier.Add(n)

	mux := http.NewServeMux()
	mux.HandleFunc(refreshPath, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte(`{"accessToken":"fresh"}`))
	})
	mux.HandleFunc("/api/data", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer fresh" {
			w.Write([]byte(`{"value":1}`))
			return
		}
		// Hold every first attempt until the whole burst has arrived so all
		// N requests observe 401 together.
		barrier.Done()
		barrier.Wait()
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cache := token.NewCache()
	cache.Set("stale")
	c := newClient(srv, cache)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var out struct {
				Value int `json:"value"`
			}
			errs[i] = c.Get(context.Background(), "/api/data", &out)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&refreshCalls); got != 1 {
		t.Fatalf("burst of %d 401s produced %d renewals, want 1", n, got)
	}
}

func TestNoContentResolvesWithoutDecodeError(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"204", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}},
		{"empty 200", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			cache := token.NewCache()
			c := newClient(srv, cache)

			out := map[string]string{"untouched": "yes"}
			if err := c.Delete(context.Background(), "/api/thing", &out); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out["untouched"] != "yes" {
				t.Fatalf("dest was mutated: %v", out)
			}
		})
	}
}

func TestServerRejectionCarriesStatusAndMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte("duplicate order"))
	}))
	defer srv.Close()

	cache := token.NewCache()
	c := newClient(srv, cache)

	err := c.Post(context.Background(), "/api/orders", map[string]int{"qty": 1}, nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Status != http.StatusConflict || se.Message != "duplicate order" {
		t.Fatalf("unexpected error detail %+v", se)
	}
}

func TestDoCarriesMethodBodyAndDest(t *testing.T) {
	var gotMethod, gotBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod.Store(r.Method)
		b, _ := io.ReadAll(r.Body)
		gotBody.Store(string(b))
		w.Write([]byte(`{"id":7}`))
	}))
	defer srv.Close()

	cache := token.NewCache()
	c := newClient(srv, cache)

	var out struct {
		ID int `json:"id"`
	}
	err := c.Do(context.Background(), RequestOptions{
		Method: http.MethodPost,
		Path:   "/api/orders",
		Body:   map[string]int{"qty": 3},
		Dest:   &out,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m := gotMethod.Load().(string); m != http.MethodPost {
		t.Fatalf("unexpected method %q", m)
	}
	if b := gotBody.Load().(string); b != `{"qty":3}` {
		t.Fatalf("unexpected body %q", b)
	}
	if out.ID != 7 {
		t.Fatalf("unexpected payload %+v", out)
	}
}

func TestDoDefaultsToGet(t *testing.T) {
	var gotMethod atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod.Store(r.Method)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	cache := token.NewCache()
	c := newClient(srv, cache)

	if err := c.Do(context.Background(), RequestOptions{Path: "/api/data"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m := gotMethod.Load().(string); m != http.MethodGet {
		t.Fatalf("unexpected method %q", m)
	}
}

func TestAbsoluteRefreshURLReceivesNoAuthorization(t *testing.T) {
	var gotAuth atomic.Value
	gotAuth.Store("unset")
	mux := http.NewServeMux()
	mux.HandleFunc(refreshPath, func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		w.Write([]byte(`{"accessToken":"abc"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cache := token.NewCache()
	cache.Set("stale")
	c := newClient(srv, cache)

	// Address the renewal endpoint by absolute URL instead of path.
	if err := c.Post(context.Background(), srv.URL+refreshPath, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h := gotAuth.Load().(string); h != "" {
		t.Fatalf("refresh request carried Authorization %q", h)
	}
}

func TestAuthorizationHeaderUsesCachedCredential(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	cache := token.NewCache()
	cache.Set("abc")
	c := newClient(srv, cache)

	if err := c.Get(context.Background(), "/api/data", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h := gotAuth.Load().(string); h != "Bearer abc" {
		t.Fatalf("unexpected Authorization %q", h)
	}
}
