package di

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"

	"StockLive/internal/api"
	"StockLive/internal/auth"
	"StockLive/internal/broadcast"
	"StockLive/internal/market"
	"StockLive/internal/repository"
	"StockLive/internal/session"
	"StockLive/internal/token"
	"StockLive/pkg/config"
	pkgkafka "StockLive/pkg/kafka"
	"StockLive/pkg/logger"
	"StockLive/pkg/metrics"
	"StockLive/pkg/server"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideHTTPClient creates the shared HTTP client. The cookie jar is shared
// between the executor and the refresher so the httponly session cookie set
// at login backs every renewal.
func ProvideHTTPClient(cfg *config.Config) (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &http.Client{
		Jar:     jar,
		Timeout: cfg.API.Timeout,
	}, nil
}

// ProvideTokenCache creates the process-wide credential cache.
func ProvideTokenCache() *token.Cache {
	return token.NewCache()
}

// ProvideRefresher creates the refresh coordinator.
func ProvideRefresher(httpClient *http.Client, cfg *config.Config, cache *token.Cache, l *logger.Logger, m *metrics.Recorder) *auth.Refresher {
	return auth.NewRefresher(httpClient, cfg.API.BaseURL, cfg.API.RefreshPath, cache, l, m)
}

// ProvideAPIClient creates the resilient request executor.
func ProvideAPIClient(httpClient *http.Client, cfg *config.Config, cache *token.Cache, r *auth.Refresher, l *logger.Logger, m *metrics.Recorder) *api.Client {
	return api.NewClient(httpClient, cfg.API.BaseURL, cfg.API.RefreshPath, cache, r, l,
		api.WithMetrics(m),
	)
}

// ProvideBroadcaster creates the identity change channel backend.
func ProvideBroadcaster(cfg *config.Config, l *logger.Logger) (broadcast.Broadcaster, error) {
	switch cfg.Broadcast.Backend {
	case "redis":
		b, err := broadcast.NewRedis(l,
			broadcast.WithRedisAddr(cfg.Broadcast.Redis.Addr),
			broadcast.WithRedisAuth(cfg.Broadcast.Redis.Password, cfg.Broadcast.Redis.DB),
			broadcast.WithRedisChannel(cfg.Broadcast.Channel),
		)
		if err != nil {
			return nil, fmt.Errorf("redis broadcaster: %w", err)
		}
		return b, nil
	default:
		return broadcast.NewMemory(), nil
	}
}

// ProvideSessionController creates the session controller.
func ProvideSessionController(client *api.Client, cache *token.Cache, caster broadcast.Broadcaster, cfg *config.Config, l *logger.Logger) *session.Controller {
	return session.NewController(client, cache, caster, session.Paths{
		Refresh:  cfg.API.RefreshPath,
		Logout:   cfg.API.LogoutPath,
		Identity: cfg.API.IdentityPath,
	}, l)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideMarketStore creates the streaming reconciliation store.
func ProvideMarketStore(cfg *config.Config, l *logger.Logger, m *metrics.Recorder, producer *pkgkafka.Producer) *market.Store {
	opts := []market.StoreOption{market.WithStoreMetrics(m)}
	if producer != nil {
		opts = append(opts, market.WithPublisher(repository.NewKafkaQuotePublisher(producer, cfg.Kafka.Topic)))
	}
	return market.NewStore(cfg.Stream.WebSocketURL, l, opts...)
}

// ProvideApp creates the application daemon.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	sc *session.Controller,
	store *market.Store,
	caster broadcast.Broadcaster,
	producer *pkgkafka.Producer,
) *server.App {
	return server.New(cfg, l, sc, store, caster, producer)
}
