package broadcast

import (
	"context"
	"testing"
)

func TestMemoryFanOut(t *testing.T) {
	m := NewMemory()

	var a, b [][]byte
	m.Subscribe(func(p []byte) { a = append(a, p) })
	m.Subscribe(func(p []byte) { b = append(b, p) })

	if err := m.Publish(context.Background(), []byte("one")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("expected both subscribers notified, got %d and %d", len(a), len(b))
	}
	if string(a[0]) != "one" {
		t.Fatalf("unexpected payload %q", a[0])
	}
}

func TestMemoryUnsubscribe(t *testing.T) {
	m := NewMemory()

	var got int
	unsub := m.Subscribe(func(p []byte) { got++ })

	_ = m.Publish(context.Background(), []byte("x"))
	unsub()
	_ = m.Publish(context.Background(), []byte("y"))

	if got != 1 {
		t.Fatalf("expected one delivery, got %d", got)
	}
}

func TestMemoryCloseDropsSubscribers(t *testing.T) {
	m := NewMemory()

	var got int
	m.Subscribe(func(p []byte) { got++ })

	if err := m.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	_ = m.Publish(context.Background(), []byte("x"))

	if got != 0 {
		t.Fatalf("delivery after close: %d", got)
	}
}
