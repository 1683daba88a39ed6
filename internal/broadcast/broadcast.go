package broadcast

import (
	"context"
	"sync"
)

// Handler receives a published payload.
type Handler func(payload []byte)

// Broadcaster is the shared change channel used to keep independent session
// holders (other processes, other tabs) converged on the same identity. It
// carries identity state only, never credentials.
type Broadcaster interface {
	Publish(ctx context.Context, payload []byte) error
	Subscribe(h Handler) (unsubscribe func())
	Close() error
}

// Memory is the in-process backend for single-process deployments.
type Memory struct {
	mu       sync.Mutex
	nextSub  int
	handlers map[int]Handler
}

// NewMemory creates an in-process broadcaster.
func NewMemory() *Memory {
	return &Memory{handlers: make(map[int]Handler)}
}

func (m *Memory) Publish(_ context.Context, payload []byte) error {
	m.mu.Lock()
	hs := make([]Handler, 0, len(m.handlers))
	for _, h := range m.handlers {
		hs = append(hs, h)
	}
	m.mu.Unlock()

	for _, h := range hs {
		h(payload)
	}
	return nil
}

func (m *Memory) Subscribe(h Handler) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.handlers[id] = h
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.handlers, id)
		m.mu.Unlock()
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.handlers = make(map[int]Handler)
	m.mu.Unlock()
	return nil
}
