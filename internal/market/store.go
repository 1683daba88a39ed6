package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	applogger "StockLive/pkg/logger"
)

// Metrics records stream activity.
type Metrics interface {
	RecordFrame(result string)
	RecordLastPrice(ticker string, price float64)
}

// QuotePublisher forwards merged quotes to a downstream channel. Publish
// failures are logged and do not disturb the snapshot.
type QuotePublisher interface {
	PublishQuote(ctx context.Context, q Quote) error
}

// StoreOption configures Store.
type StoreOption func(*Store)

// Store owns one websocket connection and reconciles its partial push
// updates into a keyed snapshot. Readers observe the snapshot without ever
// touching the socket; the snapshot outlives the connection.
type Store struct {
	url       string
	logger    *applogger.Logger
	metrics   Metrics
	publisher QuotePublisher

	mu       sync.Mutex
	conn     *websocket.Conn
	state    ConnState
	snapshot map[string]Quote
	nextSub  int
	subs     map[int]func(Quote)
}

// NewStore creates a reconciliation store for the given websocket URL.
func NewStore(url string, l *applogger.Logger, opts ...StoreOption) *Store {
	s := &Store{
		url:      url,
		logger:   l,
		snapshot: make(map[string]Quote),
		subs:     make(map[int]func(Quote)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithStoreMetrics attaches a metrics recorder.
func WithStoreMetrics(m Metrics) StoreOption {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithPublisher attaches a downstream quote publisher.
func WithPublisher(p QuotePublisher) StoreOption {
	return func(s *Store) {
		s.publisher = p
	}
}

// Connect opens the socket and starts the read loop. It is idempotent: a
// call while a connection exists or is being established is a no-op. There
// is no timer-based reconnect; the owner re-invokes Connect on its own
// lifecycle signals.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Disconnected {
		s.mu.Unlock()
		return nil
	}
	s.state = Connecting
	s.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		s.mu.Lock()
		s.state = Disconnected
		s.mu.Unlock()
		return fmt.Errorf("stream connect: %w", err)
	}

	s.mu.Lock()
	// A Disconnect issued while the dial was in flight wins; drop the
	// fresh connection instead of resurrecting the stream.
	if s.state != Connecting {
		s.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	s.conn = conn
	s.state = Connected
	s.mu.Unlock()

	s.logger.Info("stream connected", applogger.String("url", s.url))
	go s.readLoop(conn)
	return nil
}

// Disconnect closes the socket. The snapshot is kept: stale-but-available
// beats empty.
func (s *Store) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.state = Disconnected
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// State returns the connection state.
func (s *Store) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the current reconciled snapshot.
func (s *Store) Snapshot() map[string]Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Quote, len(s.snapshot))
	for k, v := range s.snapshot {
		out[k] = v
	}
	return out
}

// Lookup returns the latest quote for a ticker.
func (s *Store) Lookup(ticker string) (Quote, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.snapshot[ticker]
	return q, ok
}

// Subscribe registers a per-quote change listener.
func (s *Store) Subscribe(fn func(Quote)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// readLoop drains one connection until it fails or is closed.
func (s *Store) readLoop(conn *websocket.Conn) {
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			s.teardown(conn, err)
			return
		}

		var records []Quote
		if err := json.Unmarshal(b, &records); err != nil {
			// Malformed frames are dropped; the connection stays up.
			s.logger.Warn("malformed stream frame", applogger.Error(err))
			if s.metrics != nil {
				s.metrics.RecordFrame("malformed")
			}
			continue
		}

		s.merge(records)
	}
}

// merge applies one message. Each record overwrites only its own key; keys
// the message does not mention are untouched. The store mutex serializes
// merges, so a message applies atomically relative to other messages and to
// readers.
func (s *Store) merge(records []Quote) {
	s.mu.Lock()
	for _, q := range records {
		s.snapshot[q.Ticker] = q
	}
	fns := make([]func(Quote), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordFrame("merged")
	}
	for _, q := range records {
		if s.metrics != nil {
			if p, err := strconv.ParseFloat(q.Price, 64); err == nil {
				s.metrics.RecordLastPrice(q.Ticker, p)
			}
		}
		for _, fn := range fns {
			fn(q)
		}
		if s.publisher != nil {
			if err := s.publisher.PublishQuote(context.Background(), q); err != nil {
				s.logger.Warn("quote publish failed", applogger.Error(err))
			}
		}
	}
}

// teardown marks the store disconnected after a read failure, unless a newer
// connection has already replaced the failed one.
func (s *Store) teardown(conn *websocket.Conn, err error) {
	_ = conn.Close()

	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.state = Disconnected
	s.mu.Unlock()

	s.logger.Warn("stream disconnected", applogger.Error(err))
}
