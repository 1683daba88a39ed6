package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	handlerapi "StockLive/internal/handler/api"
	"StockLive/internal/broadcast"
	"StockLive/internal/market"
	"StockLive/internal/session"
	"StockLive/pkg/config"
	xhttp "StockLive/pkg/http"
	pkgkafka "StockLive/pkg/kafka"
	applogger "StockLive/pkg/logger"
)

// App encapsulates the daemon lifecycle: session bootstrap, stream
// connection, HTTP surface, graceful shutdown.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	sessionCtl *session.Controller
	store      *market.Store
	caster     broadcast.Broadcaster
	producer   *pkgkafka.Producer
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	sc *session.Controller,
	store *market.Store,
	caster broadcast.Broadcaster,
	producer *pkgkafka.Producer,
) *App {
	return &App{
		cfg:        cfg,
		logger:     l,
		sessionCtl: sc,
		store:      store,
		caster:     caster,
		producer:   producer,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cold-start session. An anonymous daemon is fine; authenticated calls
	// will surface their own errors.
	if err := a.sessionCtl.Bootstrap(ctx); err != nil {
		a.logger.Warn("starting anonymous", applogger.Error(err))
	}

	if err := a.store.Connect(ctx); err != nil {
		a.logger.Warn("stream unavailable, reconnect via /api/connect", applogger.Error(err))
	}

	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	handler := handlerapi.NewLiveHandler(a.logger, a.store, a.sessionCtl)
	a.httpServer = xhttp.NewServer(handler, a.logger,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
	)
	if err := a.httpServer.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	a.store.Disconnect()

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("kafka close error", applogger.Error(err))
		}
	}
	if a.caster != nil {
		if err := a.caster.Close(); err != nil {
			a.logger.Warn("broadcast close error", applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
