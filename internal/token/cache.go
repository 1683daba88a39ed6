package token

import "sync"

// Listener receives the new credential value after every change.
// ok is false when the credential was cleared.
type Listener func(token string, ok bool)

// Cache is the process-wide holder of the short-lived access credential.
// The credential never leaves memory through any other path; every mutation
// goes through Set or Clear, which fan out change notifications synchronously.
type Cache struct {
	mu        sync.Mutex
	token     string
	present   bool
	nextSub   int
	listeners map[int]Listener
}

// NewCache creates an empty credential cache.
func NewCache() *Cache {
	return &Cache{listeners: make(map[int]Listener)}
}

// Get returns the current credential and whether one is held.
func (c *Cache) Get() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, c.present
}

// Set stores a credential. Setting the currently-held value is a no-op and
// produces no notifications.
func (c *Cache) Set(tok string) {
	c.mu.Lock()
	if c.present && c.token == tok {
		c.mu.Unlock()
		return
	}
	c.token = tok
	c.present = true
	ls := c.snapshotListeners()
	c.mu.Unlock()

	for _, l := range ls {
		notify(l, tok, true)
	}
}

// Clear drops the credential. Clearing an empty cache is a no-op.
func (c *Cache) Clear() {
	c.mu.Lock()
	if !c.present {
		c.mu.Unlock()
		return
	}
	c.token = ""
	c.present = false
	ls := c.snapshotListeners()
	c.mu.Unlock()

	for _, l := range ls {
		notify(l, "", false)
	}
}

// Subscribe registers a change listener and returns its unsubscribe function.
func (c *Cache) Subscribe(l Listener) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.listeners[id] = l
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// snapshotListeners copies the listener set so notification runs outside the
// lock and a listener calling back into the cache cannot deadlock.
func (c *Cache) snapshotListeners() []Listener {
	ls := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		ls = append(ls, l)
	}
	return ls
}

// notify invokes a single listener; a panicking listener must not prevent
// the remaining listeners from running.
func notify(l Listener, tok string, ok bool) {
	defer func() { _ = recover() }()
	l(tok, ok)
}
