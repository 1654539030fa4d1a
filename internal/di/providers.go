package di

import (
	"context"
	"fmt"
	"time"

	"Kavach/internal/domain/models"
	"Kavach/internal/domain/repository"
	"Kavach/internal/domain/service"
	"Kavach/internal/handler/api"
	internalrepo "Kavach/internal/repository"
	"Kavach/internal/service/coingecko"
	"Kavach/internal/service/marketdata"
	"Kavach/internal/service/ratelimit"
	"Kavach/internal/service/stooq"
	"Kavach/internal/service/yahoo"
	"Kavach/internal/services/allocation"
	"Kavach/internal/services/regime"
	"Kavach/internal/usecase"
	"Kavach/pkg/cache"
	pkgch "Kavach/pkg/clickhouse"
	"Kavach/pkg/config"
	xhttp "Kavach/pkg/http"
	pkgkafka "Kavach/pkg/kafka"
	applogger "Kavach/pkg/logger"
	"Kavach/pkg/metrics"
	"Kavach/pkg/queue"
	"Kavach/pkg/server"
)

// Toolkit bundles the read-only use cases for the operator CLI.
type Toolkit struct {
	Logger *applogger.Logger
	Prices *usecase.PriceUseCase
	Regime *usecase.RegimeUseCase
}

// ProvideKafkaProducer creates a Kafka producer when decisions go to Kafka.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if cfg.Decisions.Backend != "kafka" {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the application logger. With a producer, repeated
// errors are aggregated and shipped to the log topic.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if producer != nil && cfg.Kafka.LogTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.LogTopic,
			Service:        "kavach",
			Publisher:      producer,
		})
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideNopMetrics is used by tools that never expose /metrics.
func ProvideNopMetrics() repository.Metrics {
	return metrics.Nop{}
}

// ProvideRedisCache connects to Redis when it is enabled.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Cache.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Cache.Redis.Addr),
		cache.WithRedisPassword(cfg.Cache.Redis.Password),
		cache.WithRedisDB(cfg.Cache.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideFetcher assembles the provider chains and their protection.
func ProvideFetcher(cfg *config.Config, rc *cache.RedisCache, logger *applogger.Logger, m repository.Metrics) *marketdata.Fetcher {
	pc := cfg.Providers
	httpClient := xhttp.NewClient(xhttp.WithTimeout(pc.Timeout))

	yh := yahoo.New(httpClient, yahoo.WithBaseURL(pc.YahooURL))
	cg := coingecko.New(httpClient, coingecko.WithBaseURL(pc.CoinGeckoURL), coingecko.WithIDs(pc.CoinGeckoIDs))
	sq := stooq.New(httpClient, stooq.WithBaseURL(pc.StooqURL), stooq.WithSymbols(pc.StooqSymbols))

	opts := []marketdata.Option{
		marketdata.WithLogger(logger),
		marketdata.WithMetrics(m),
		marketdata.WithLookbackDays(pc.HistoryDays),
		marketdata.WithPolicy(marketdata.Policy{
			MaxAttempts: pc.Retry.MaxAttempts,
			BaseDelay:   pc.Retry.BaseDelay,
			Multiplier:  pc.Retry.Multiplier,
		}),
	}
	if pc.Breaker.Enabled {
		opts = append(opts, marketdata.WithBreakers(marketdata.NewBreakers(marketdata.BreakerConfig{
			ConsecutiveFailures: pc.Breaker.ConsecutiveFailures,
			OpenTimeout:         pc.Breaker.OpenTimeout,
		}, logger)))
	}
	if pc.RateLimit.Enabled {
		opts = append(opts, marketdata.WithLimiter(ratelimit.New(pc.RateLimit.RPS, pc.RateLimit.Burst)))
	}
	if cfg.Cache.FetchEnabled {
		var store cache.Service
		if rc != nil {
			store = cache.NewLayeredCache(rc, cfg.Cache.MemoryLimit, cfg.Cache.LatestTTL)
		} else {
			store = cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MemoryLimit))
		}
		opts = append(opts, marketdata.WithCache(store, cfg.Cache.LatestTTL, cfg.Cache.HistoryTTL))
	}

	return marketdata.New(pc.CryptoTickers,
		[]service.PriceProvider{yh, cg},
		[]service.PriceProvider{yh, sq},
		opts...,
	)
}

func ProvideMarketData(f *marketdata.Fetcher) service.MarketData { return f }

func ProvideClassifier(cfg *config.Config) service.RegimeClassifier {
	rc := cfg.Regime
	return regime.NewDetector(regime.WithConfig(regime.Config{
		VolWindow: rc.VolWindow,
		ZWindow:   rc.ZWindow,
		ReturnLag: rc.ReturnLag,
		MAWindow:  rc.MAWindow,
		VolatileZ: rc.VolatileZ,
		CrashZ:    rc.CrashZ,
		RiskyDrop: rc.RiskyDropThresh,
		SafeDrop:  rc.SafeDropThresh,
	}))
}

func ProvideEngine(cfg *config.Config) (*allocation.Engine, error) {
	ac := cfg.Allocation
	weights := make(map[models.Regime]allocation.Weights, len(ac.Weights))
	for name, w := range ac.Weights {
		weights[models.Regime(name)] = allocation.Weights{Risky: w.Risky, Safe: w.Safe, Cash: w.Cash}
	}
	return allocation.NewEngine(allocation.Config{
		RiskyTickers: ac.RiskyTickers,
		SafeTicker:   ac.SafeTicker,
		CashSymbol:   ac.CashSymbol,
		Weights:      weights,
	})
}

// ProvideClickHouseClient connects to ClickHouse and creates the decision
// tables when it is enabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase("default"),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.DecisionSchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

func ProvideDecisionStore(ch *pkgch.Client, cfg *config.Config, logger *applogger.Logger) *internalrepo.CHDecisionStore {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHDecisionStore(ch, cfg.ClickHouse.Database, logger)
}

// ProvideDecisionHistory is nil without ClickHouse; the history endpoints
// then answer 503.
func ProvideDecisionHistory(store *internalrepo.CHDecisionStore) repository.DecisionHistory {
	if store == nil {
		return nil
	}
	return store
}

func ProvideDecisionHub(logger *applogger.Logger) *api.DecisionHub {
	return api.NewDecisionHub(logger)
}

// ProvideDecisionSink fans decisions out to the configured backend and the
// websocket hub.
func ProvideDecisionSink(
	cfg *config.Config,
	logger *applogger.Logger,
	producer *pkgkafka.Producer,
	store *internalrepo.CHDecisionStore,
	hub *api.DecisionHub,
) repository.DecisionSink {
	var primary repository.DecisionSink
	switch {
	case cfg.Decisions.Backend == "kafka" && producer != nil:
		primary = internalrepo.NewKafkaDecisionSink(producer, cfg.Kafka.Topic)
	case cfg.Decisions.Backend == "clickhouse" && store != nil:
		primary = store
	default:
		primary = internalrepo.NewLogSink(logger)
	}
	if hub == nil {
		return primary
	}
	return internalrepo.MultiSink{primary, hub}
}

// ProvideKafkaConsumer creates the decision consumer when it is enabled.
func ProvideKafkaConsumer(cfg *config.Config, logger *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Decisions.ConsumerEnabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideDecisionEventsHandler persists consumed decisions into ClickHouse.
func ProvideDecisionEventsHandler(cfg *config.Config, store *internalrepo.CHDecisionStore, m repository.Metrics) *usecase.DecisionEventsHandler {
	if store == nil {
		return nil
	}
	return usecase.NewDecisionEventsHandler(cfg.Kafka.Topic, store, m)
}

func ProvidePriceUseCase(market service.MarketData, m repository.Metrics) *usecase.PriceUseCase {
	return usecase.NewPriceUseCase(market, m)
}

func ProvideRegimeUseCase(
	cfg *config.Config,
	market service.MarketData,
	classifier service.RegimeClassifier,
	sink repository.DecisionSink,
	history repository.DecisionHistory,
	m repository.Metrics,
	logger *applogger.Logger,
) *usecase.RegimeUseCase {
	return usecase.NewRegimeUseCase(market, classifier, sink, history, m, logger, cfg.Regime.RiskyTicker, cfg.Regime.SafeTicker)
}

func ProvideCoordinator(engine *allocation.Engine, market service.MarketData) *usecase.Coordinator {
	return usecase.NewCoordinator(engine, market)
}

// ProvidePortfolioStore keeps portfolios in Redis or in process memory.
func ProvidePortfolioStore(cfg *config.Config, rc *cache.RedisCache) repository.PortfolioStore {
	if cfg.Portfolio.Store == "redis" && rc != nil {
		return internalrepo.NewPortfolioStore(rc, cfg.Portfolio.LockTTL)
	}
	return internalrepo.NewMemoryPortfolioStore(cfg.Portfolio.LockTTL)
}

func ProvidePortfolioService(
	cfg *config.Config,
	store repository.PortfolioStore,
	coordinator *usecase.Coordinator,
	detector *usecase.RegimeUseCase,
	sink repository.DecisionSink,
	history repository.DecisionHistory,
	m repository.Metrics,
	logger *applogger.Logger,
) *usecase.PortfolioService {
	return usecase.NewPortfolioService(store, coordinator, detector, sink, history, m, logger, cfg.Portfolio.StartingBalance)
}

// ProvideJobQueue creates the evaluation queue when the scheduler is on.
func ProvideJobQueue(cfg *config.Config, rc *cache.RedisCache, logger *applogger.Logger) *queue.RedisQueue {
	if !cfg.Scheduler.Enabled || rc == nil {
		return nil
	}
	return queue.NewRedisQueue(logger, queue.Config{
		Workers:    cfg.Scheduler.Workers,
		RetryLimit: cfg.Scheduler.RetryLimit,
		RetryDelay: cfg.Scheduler.RetryDelay,
	}, rc.Client(), queue.WithKeyPrefix(cfg.Scheduler.KeyPrefix))
}

// ProvideEvaluationScheduler registers the evaluation job and returns the
// periodic producer for it.
func ProvideEvaluationScheduler(
	cfg *config.Config,
	jobs *queue.RedisQueue,
	portfolios *usecase.PortfolioService,
	m repository.Metrics,
	logger *applogger.Logger,
) *usecase.EvaluationScheduler {
	if jobs == nil {
		return nil
	}
	jobs.Register(usecase.NewEvaluatePortfolioJob(portfolios, m, logger))
	return usecase.NewEvaluationScheduler(jobs, cfg.Scheduler.Portfolios, cfg.Scheduler.Interval, logger)
}

func ProvideRiskHandler(
	cfg *config.Config,
	logger *applogger.Logger,
	prices *usecase.PriceUseCase,
	regimeUC *usecase.RegimeUseCase,
	portfolios *usecase.PortfolioService,
	hub *api.DecisionHub,
	jobs *queue.RedisQueue,
) *api.RiskHandler {
	opts := []api.HandlerOption{api.WithDecisionHub(hub)}
	if cfg.Server.RateLimitRPS > 0 {
		opts = append(opts, api.WithRequestLimiter(ratelimit.New(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)))
	}
	if jobs != nil {
		opts = append(opts, api.WithJobQueue(jobs))
	}
	return api.NewRiskHandler(logger, prices, regimeUC, portfolios, opts...)
}

func ProvideHTTPServer(cfg *config.Config, handler *api.RiskHandler, logger *applogger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(handler, logger,
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithMetricsPath(metricsPath),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	logger *applogger.Logger,
	httpServer *xhttp.Server,
	hub *api.DecisionHub,
	consumer *pkgkafka.Consumer,
	eventsHandler *usecase.DecisionEventsHandler,
	jobs *queue.RedisQueue,
	scheduler *usecase.EvaluationScheduler,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	rc *cache.RedisCache,
) *server.App {
	deps := server.Deps{
		Logger: logger,
		HTTP:   httpServer,
		Hub:    hub,
	}
	if consumer != nil && eventsHandler != nil {
		deps.Consumer = consumer
		deps.ConsumerHandler = eventsHandler
	}
	if jobs != nil {
		deps.Jobs = jobs
		deps.Scheduler = scheduler
	}
	if producer != nil {
		deps.Closers = append(deps.Closers, producer)
	}
	if ch != nil {
		deps.Closers = append(deps.Closers, ch)
	}
	if rc != nil {
		deps.Closers = append(deps.Closers, rc)
	}
	return server.New(deps)
}

func ProvideToolkit(logger *applogger.Logger, prices *usecase.PriceUseCase, regimeUC *usecase.RegimeUseCase) *Toolkit {
	return &Toolkit{Logger: logger, Prices: prices, Regime: regimeUC}
}

// ProvideToolkitRegimeUseCase detects without history and logs decisions
// instead of recording them.
func ProvideToolkitRegimeUseCase(
	cfg *config.Config,
	market service.MarketData,
	classifier service.RegimeClassifier,
	m repository.Metrics,
	logger *applogger.Logger,
) *usecase.RegimeUseCase {
	return usecase.NewRegimeUseCase(market, classifier, internalrepo.NewLogSink(logger), nil, m, logger,
		cfg.Regime.RiskyTicker, cfg.Regime.SafeTicker)
}

// ProvideToolkitLogger writes CLI logs to stderr so stdout stays JSON.
func ProvideToolkitLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{Level: cfg.Log.Level, Format: "console", Output: "stderr"})
}

// ProvideNoRedis keeps the CLI free of Redis.
func ProvideNoRedis() *cache.RedisCache { return nil }
