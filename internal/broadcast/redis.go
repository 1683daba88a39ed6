package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	applogger "StockLive/pkg/logger"
)

// RedisOption configures the Redis broadcaster.
type RedisOption func(*RedisConfig)

// RedisConfig holds Redis broadcaster configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// WithRedisAddr sets the Redis address.
func WithRedisAddr(addr string) RedisOption {
	return func(c *RedisConfig) {
		c.Addr = addr
	}
}

// WithRedisAuth sets password and database number.
func WithRedisAuth(password string, db int) RedisOption {
	return func(c *RedisConfig) {
		c.Password = password
		c.DB = db
	}
}

// WithRedisChannel sets the pub/sub channel key.
func WithRedisChannel(channel string) RedisOption {
	return func(c *RedisConfig) {
		c.Channel = channel
	}
}

// Redis is the shared-storage backend: identity changes are relayed over a
// Redis pub/sub channel so every process holding a session converges.
type Redis struct {
	client  *redis.Client
	channel string
	logger  *applogger.Logger

	mu       sync.Mutex
	nextSub  int
	handlers map[int]Handler

	cancel context.CancelFunc
}

// NewRedis creates a Redis-backed broadcaster and starts its receive loop.
func NewRedis(l *applogger.Logger, opts ...RedisOption) (*Redis, error) {
	cfg := &RedisConfig{
		Addr:    "localhost:6379",
		Channel: "auth-store",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	loopCtx, loopCancel := context.WithCancel(context.Background())
	r := &Redis{
		client:   client,
		channel:  cfg.Channel,
		logger:   l,
		handlers: make(map[int]Handler),
		cancel:   loopCancel,
	}
	go r.receive(loopCtx)
	return r, nil
}

func (r *Redis) Publish(ctx context.Context, payload []byte) error {
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (r *Redis) Subscribe(h Handler) func() {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.handlers[id] = h
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.handlers, id)
		r.mu.Unlock()
	}
}

func (r *Redis) receive(ctx context.Context) {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.mu.Lock()
			hs := make([]Handler, 0, len(r.handlers))
			for _, h := range r.handlers {
				hs = append(hs, h)
			}
			r.mu.Unlock()

			for _, h := range hs {
				h([]byte(msg.Payload))
			}
		}
	}
}

func (r *Redis) Close() error {
	r.cancel()
	return r.client.Close()
}
