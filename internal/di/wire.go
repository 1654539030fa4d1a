//go:build wireinject
// +build wireinject

package di

import (
	"Kavach/pkg/config"
	"Kavach/pkg/server"

	"github.com/google/wire"
)

var marketSet = wire.NewSet(
	ProvideFetcher,
	ProvideMarketData,
	ProvideClassifier,
	ProvidePriceUseCase,
)

var decisionSet = wire.NewSet(
	ProvideClickHouseClient,
	ProvideDecisionStore,
	ProvideDecisionHistory,
	ProvideDecisionHub,
	ProvideDecisionSink,
	ProvideKafkaConsumer,
	ProvideDecisionEventsHandler,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideRedisCache,

		marketSet,
		decisionSet,

		ProvideRegimeUseCase,
		ProvideEngine,
		ProvideCoordinator,
		ProvidePortfolioStore,
		ProvidePortfolioService,
		ProvideJobQueue,
		ProvideEvaluationScheduler,

		ProvideRiskHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}

// InitializeToolkit wires the read-only use cases for the CLI.
func InitializeToolkit(cfg *config.Config) (*Toolkit, error) {
	wire.Build(
		ProvideToolkitLogger,
		ProvideNopMetrics,
		ProvideNoRedis,
		marketSet,
		ProvideToolkitRegimeUseCase,
		ProvideToolkit,
	)
	return &Toolkit{}, nil
}
