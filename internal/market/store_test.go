package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	applogger "StockLive/pkg/logger"
)

// streamServer upgrades incoming connections and serves frames pushed through
// the returned channel. Closing the channel closes the connection.
func streamServer(t *testing.T, conns *int32) (*httptest.Server, chan []byte, string) {
	t.Helper()
	frames := make(chan []byte)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		atomic.AddInt32(conns, 1)
		defer conn.Close()
		for f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, f); err != nil {
				return
			}
		}
	}))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	return srv, frames, url
}

// waitFor polls until the condition holds or the deadline passes. Merges are
// applied by the read loop, so observations are asynchronous.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached before deadline")
}

func TestMergeOverwritesOnlyMentionedKeys(t *testing.T) {
	var conns int32
	srv, frames, url := streamServer(t, &conns)
	defer srv.Close()
	defer close(frames)

	s := NewStore(url, applogger.Nop())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer s.Disconnect()

	frames <- []byte(`[{"ticker":"AAPL","price":"10","rate":0.1},{"ticker":"TSLA","price":"20","rate":0.2}]`)
	waitFor(t, func() bool { return len(s.Snapshot()) == 2 })

	frames <- []byte(`[{"ticker":"AAPL","price":"11","rate":0.3}]`)
	waitFor(t, func() bool {
		q, _ := s.Lookup("AAPL")
		return q.Price == "11"
	})

	snap := s.Snapshot()
	if snap["AAPL"].Price != "11" || snap["AAPL"].Rate != 0.3 {
		t.Fatalf("AAPL not overwritten: %+v", snap["AAPL"])
	}
	if snap["TSLA"].Price != "20" {
		t.Fatalf("TSLA should be untouched: %+v", snap["TSLA"])
	}
}

func TestMalformedFramePreservesConnectionAndSnapshot(t *testing.T) {
	var conns int32
	srv, frames, url := streamServer(t, &conns)
	defer srv.Close()
	defer close(frames)

	s := NewStore(url, applogger.Nop())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer s.Disconnect()

	frames <- []byte(`[{"ticker":"AAPL","price":"10","rate":0.1}]`)
	waitFor(t, func() bool { _, ok := s.Lookup("AAPL"); return ok })

	frames <- []byte(`{not json`)
	frames <- []byte(`[{"ticker":"TSLA","price":"20","rate":0.2}]`)
	waitFor(t, func() bool { _, ok := s.Lookup("TSLA"); return ok })

	if s.State() != Connected {
		t.Fatalf("connection dropped by malformed frame")
	}
	if q, _ := s.Lookup("AAPL"); q.Price != "10" {
		t.Fatalf("snapshot disturbed by malformed frame: %+v", q)
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	var conns int32
	srv, frames, url := streamServer(t, &conns)
	defer srv.Close()
	defer close(frames)

	s := NewStore(url, applogger.Nop())
	for i := 0; i < 3; i++ {
		if err := s.Connect(context.Background()); err != nil {
			t.Fatalf("connect %d failed: %v", i, err)
		}
	}
	defer s.Disconnect()

	waitFor(t, func() bool { return atomic.LoadInt32(&conns) == 1 })
	time.Sleep(20 * time.Millisecond)
	if got := atomic.LoadInt32(&conns); got != 1 {
		t.Fatalf("expected one connection, got %d", got)
	}
}

func TestDisconnectDuringDialWins(t *testing.T) {
	release := make(chan struct{})
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Hold the handshake until the test has issued Disconnect.
		<-release
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_, _, _ = conn.ReadMessage()
		conn.Close()
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	s := NewStore(url, applogger.Nop())

	done := make(chan error, 1)
	go func() { done <- s.Connect(context.Background()) }()

	waitFor(t, func() bool { return s.State() == Connecting })
	s.Disconnect()
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if got := s.State(); got != Disconnected {
		t.Fatalf("stream resurrected after disconnect, state=%v", got)
	}
}

func TestSnapshotSurvivesDisconnect(t *testing.T) {
	var conns int32
	srv, frames, url := streamServer(t, &conns)
	defer srv.Close()
	defer close(frames)

	s := NewStore(url, applogger.Nop())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	frames <- []byte(`[{"ticker":"AAPL","price":"10","rate":0.1}]`)
	waitFor(t, func() bool { _, ok := s.Lookup("AAPL"); return ok })

	s.Disconnect()
	waitFor(t, func() bool { return s.State() == Disconnected })

	if q, ok := s.Lookup("AAPL"); !ok || q.Price != "10" {
		t.Fatalf("snapshot lost on disconnect: %+v ok=%v", q, ok)
	}
}

func TestSubscribersAndPublisherSeeMergedQuotes(t *testing.T) {
	var conns int32
	srv, frames, url := streamServer(t, &conns)
	defer srv.Close()
	defer close(frames)

	pub := &capturingPublisher{}
	s := NewStore(url, applogger.Nop(), WithPublisher(pub))

	var seen int32
	unsub := s.Subscribe(func(q Quote) {
		atomic.AddInt32(&seen, 1)
	})
	defer unsub()

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer s.Disconnect()

	frames <- []byte(`[{"ticker":"AAPL","price":"10","rate":0.1},{"ticker":"TSLA","price":"20","rate":0.2}]`)
	waitFor(t, func() bool { return atomic.LoadInt32(&seen) == 2 })
	waitFor(t, func() bool { return atomic.LoadInt32(&pub.count) == 2 })
}

type capturingPublisher struct {
	count int32
}

func (p *capturingPublisher) PublishQuote(_ context.Context, _ Quote) error {
	atomic.AddInt32(&p.count, 1)
	return nil
}
