//go:build wireinject
// +build wireinject

package di

import (
	"StockLive/pkg/config"
	"StockLive/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Shared transport state
		ProvideHTTPClient,
		ProvideTokenCache,

		// Auth plane
		ProvideRefresher,
		ProvideAPIClient,
		ProvideBroadcaster,
		ProvideSessionController,

		// Data plane
		ProvideKafkaProducer,
		ProvideMarketStore,

		// Application daemon
		ProvideApp,
	)
	return &server.App{}, nil
}
