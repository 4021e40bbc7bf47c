//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"FinDS/pkg/config"
	"FinDS/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideKafkaProducer,

		// Repositories and shared state
		ProvideVintageStore,
		ProvideCaches,
		ProvideQueue,
		ProvideEventPublisher,
		ProvideHub,

		// Use cases
		ProvideVintageService,
		ProvideRecipeService,
		ProvideDatasetService,
		ProvideJobService,
		ProvideKafkaConsumer,

		// Transport and application
		ProvideRouter,
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
