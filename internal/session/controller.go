package session

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"

	"StockLive/internal/api"
	"StockLive/internal/broadcast"
	"StockLive/internal/token"
	applogger "StockLive/pkg/logger"
)

// Paths holds the session endpoints relative to the API base URL.
type Paths struct {
	Refresh  string
	Logout   string
	Identity string
}

// Controller orchestrates application-level bootstrap and logout. It owns the
// identity record; credential state lives in the token cache and is observed,
// not owned.
type Controller struct {
	client *api.Client
	cache  *token.Cache
	caster broadcast.Broadcaster
	logger *applogger.Logger
	paths  Paths

	mu       sync.Mutex
	booting  bool
	loading  bool
	identity *Identity
	nextSub  int
	subs     map[int]func(*Identity)
}

// NewController creates a session controller. It subscribes to the credential
// cache so that an irrecoverable refresh failure anywhere tears the session
// down without the failing caller knowing about the controller, and to the
// broadcast channel so identity changes made elsewhere converge here.
func NewController(client *api.Client, cache *token.Cache, caster broadcast.Broadcaster, paths Paths, l *applogger.Logger) *Controller {
	c := &Controller{
		client: client,
		cache:  cache,
		caster: caster,
		logger: l,
		paths:  paths,
		subs:   make(map[int]func(*Identity)),
	}

	cache.Subscribe(func(_ string, ok bool) {
		if !ok {
			c.setIdentity(nil, true)
		}
	})

	if caster != nil {
		caster.Subscribe(c.applyRemote)
	}

	return c
}

// Identity returns the current identity, or nil while anonymous.
func (c *Controller) Identity() *Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Loading reports whether a bootstrap or logout is in progress. Identity
// must not be trusted while loading.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Subscribe registers an identity change listener.
func (c *Controller) Subscribe(fn func(*Identity)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// SetIdentity replaces the identity and broadcasts the change.
func (c *Controller) SetIdentity(id *Identity) {
	c.setIdentity(id, true)
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

// Bootstrap converts the ambient session cookie into an in-memory credential
// and identity. Overlapping calls collapse into one execution: the second
// caller returns immediately with no side effects and observes the outcome
// through the identity change notification.
func (c *Controller) Bootstrap(ctx context.Context) error {
	c.mu.Lock()
	if c.booting {
		c.mu.Unlock()
		return nil
	}
	c.booting = true
	c.loading = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.loading = false
		c.booting = false
		c.mu.Unlock()
	}()

	// Cold-start renewal. The executor never attaches a bearer credential to
	// the refresh path and never refresh-retries it, so this is a plain
	// cookie-authenticated call.
	var rr refreshResponse
	if err := c.client.Post(ctx, c.paths.Refresh, nil, &rr); err != nil {
		c.logger.Warn("bootstrap refresh failed", applogger.Error(err))
		c.cache.Clear()
		c.setIdentity(nil, true)
		return err
	}
	if rr.AccessToken == "" {
		c.logger.Warn("bootstrap refresh returned no credential")
		c.cache.Clear()
		c.setIdentity(nil, true)
		return nil
	}
	c.cache.Set(rr.AccessToken)

	var id Identity
	if err := c.client.Get(ctx, c.paths.Identity, &id); err != nil {
		c.logger.Warn("identity fetch failed", applogger.Error(err))
		c.cache.Clear()
		c.setIdentity(nil, true)
		return err
	}

	c.setIdentity(&id, true)
	c.logger.Info("session established", applogger.String("nickname", id.Nickname))
	return nil
}

// Logout notifies the server best-effort and unconditionally clears local
// state. A server that cannot be reached must not block local cleanup.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	c.loading = true
	c.mu.Unlock()

	if err := c.client.Post(ctx, c.paths.Logout, nil, nil); err != nil {
		c.logger.Warn("logout request failed", applogger.Error(err))
	}

	c.cache.Clear()
	c.setIdentity(nil, true)

	c.mu.Lock()
	c.loading = false
	c.mu.Unlock()
	return nil
}

// setIdentity applies an identity change. Unchanged values are dropped so
// broadcast echoes and repeated teardowns cannot loop.
func (c *Controller) setIdentity(id *Identity, publish bool) {
	c.mu.Lock()
	if identityEqual(c.identity, id) {
		c.mu.Unlock()
		return
	}
	c.identity = id
	fns := make([]func(*Identity), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(id)
	}

	if publish && c.caster != nil {
		payload, err := json.Marshal(broadcastPayload{State: broadcastState{Identity: id}})
		if err != nil {
			return
		}
		if err := c.caster.Publish(context.Background(), payload); err != nil {
			c.logger.Warn("identity broadcast failed", applogger.Error(err))
		}
	}
}

// applyRemote folds in an identity update published by another holder.
func (c *Controller) applyRemote(payload []byte) {
	var p broadcastPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warn("malformed identity broadcast", applogger.Error(err))
		return
	}
	c.setIdentity(p.State.Identity, false)
}

func identityEqual(a, b *Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return reflect.DeepEqual(*a, *b)
}
