package di

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"

	domrepo "FinDS/internal/domain/repository"
	"FinDS/internal/handler/api"
	internalrepo "FinDS/internal/repository"
	"FinDS/internal/service/ratelimit"
	"FinDS/internal/services/alfred"
	"FinDS/internal/usecase"
	"FinDS/pkg/cache"
	pkgch "FinDS/pkg/clickhouse"
	"FinDS/pkg/config"
	xhttp "FinDS/pkg/http"
	"FinDS/pkg/http/middleware"
	pkgkafka "FinDS/pkg/kafka"
	applogger "FinDS/pkg/logger"
	"FinDS/pkg/metrics"
	"FinDS/pkg/queue"
	"FinDS/pkg/server"
)

// Caches separates the recipe and dataset cache, which keeps a memory layer
// in front of Redis, from the job store, which must always read Redis so
// every replica sees the same job state.
type Caches struct {
	Results cache.Service
	Jobs    cache.Service
	closers []func() error
}

// ProvideLogger creates the application logger from the logging section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	lgr, err := applogger.New(&applogger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return lgr, nil
}

// ProvideMetrics creates a Prometheus metrics recorder on the default registry.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New(nil)
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when the
// vintage store runs in memory.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
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
	return client, nil
}

// ProvideVintageStore returns the ClickHouse store with its schema applied,
// or the in-memory store when ClickHouse is disabled.
func ProvideVintageStore(cfg *config.Config, ch *pkgch.Client) (domrepo.VintageStore, error) {
	if ch == nil {
		return internalrepo.NewMemoryVintageStore(), nil
	}
	store := internalrepo.NewClickHouseVintageStore(ch.DB(), ch.Database()+".observations")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ch.InitSchema(ctx, store.Schema()); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideRedisCache connects to Redis, or returns nil when it is disabled.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideCaches layers process memory over Redis for results. Without Redis
// both caches live in memory.
func ProvideCaches(cfg *config.Config, rc *cache.RedisCache) *Caches {
	if rc == nil {
		results := cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Cache.MemorySize),
			cache.WithMemoryDefaultTTL(cfg.Cache.ResultTTL),
		)
		jobs := cache.NewMemoryCache(cache.WithMemoryDefaultTTL(cfg.Jobs.ResultTTL))
		return &Caches{Results: results, Jobs: jobs, closers: []func() error{results.Close, jobs.Close}}
	}
	results := cache.NewLayeredCache(rc,
		cache.WithLayeredMemorySize(cfg.Cache.MemorySize),
		cache.WithLayeredMemoryTTL(time.Minute),
	)
	return &Caches{Results: results, Jobs: rc, closers: []func() error{results.Close}}
}

// Close releases memory layers. The Redis connection is closed by the app.
func (c *Caches) Close() error {
	for _, fn := range c.closers {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

// ProvideQueue selects the job queue backend.
func ProvideQueue(cfg *config.Config, lgr *applogger.Logger, rc *cache.RedisCache) (queue.Queue, error) {
	qcfg := &queue.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		QueueSize:  cfg.Jobs.QueueSize,
		RetryLimit: cfg.Jobs.RetryLimit,
		RetryDelay: cfg.Jobs.RetryDelay,
	}
	switch cfg.Jobs.Backend {
	case "", "local":
		return queue.NewLocalQueue(lgr, qcfg), nil
	case "redis":
		if rc == nil {
			return nil, fmt.Errorf("jobs backend redis requires redis.enabled")
		}
		return queue.NewRedisQueue(lgr, qcfg, rc.Client(), queue.ModeProducerConsumer,
			queue.WithKeyPrefix(cfg.Redis.Prefix+":jobs")), nil
	default:
		return nil, fmt.Errorf("unknown jobs backend %q", cfg.Jobs.Backend)
	}
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is off.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
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

// ProvideEventPublisher publishes job events to Kafka when a producer exists
// and logs them otherwise. Error log aggregation shares the same producer.
func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer, lgr *applogger.Logger) domrepo.EventPublisher {
	if producer == nil {
		return internalrepo.NewLogPublisher(lgr)
	}
	if cfg.Logging.Collect {
		lgr.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Logging.Interval,
			CountThreshold: cfg.Logging.Threshold,
			Topic:          cfg.Logging.Topic,
			Publisher:      producer,
		})
	}
	return producer
}

// ProvideVintageService creates the vintage use case.
func ProvideVintageService(store domrepo.VintageStore, m *metrics.Recorder, lgr *applogger.Logger) *usecase.VintageService {
	return usecase.NewVintageService(store, m, lgr)
}

// ProvideKafkaConsumer creates a consumer for raw observation messages, or
// nil when consumption is disabled.
func ProvideKafkaConsumer(cfg *config.Config, lgr *applogger.Logger, vintage *usecase.VintageService) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(lgr,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.LoggingHook(lgr, time.Second))
	consumer.RegisterHandler(usecase.NewObservationsHandler(cfg.Kafka.Consumer.ObservationsTopic, vintage))
	return consumer, nil
}

// ProvideRecipeService creates the recipe use case over the result cache.
func ProvideRecipeService(cfg *config.Config, caches *Caches, m *metrics.Recorder, lgr *applogger.Logger) *usecase.RecipeService {
	return usecase.NewRecipeService(caches.Results, m, cfg.Cache.ResultTTL, lgr)
}

// ProvideDatasetService wires the FRED-MD loader and the page scraper.
func ProvideDatasetService(cfg *config.Config, caches *Caches, m *metrics.Recorder, lgr *applogger.Logger) *usecase.DatasetService {
	loader := alfred.NewLoader(cfg.FredMD.URL, xhttp.NewClient(
		xhttp.WithTimeout(cfg.FredMD.Timeout),
		xhttp.WithRetries(cfg.FredMD.Retries, time.Second),
	))

	var opts []alfred.ScraperOption
	if cfg.Shiller.MultplURL != "" {
		opts = append(opts, alfred.WithMultplURL(cfg.Shiller.MultplURL))
	}
	if cfg.Shiller.FREDURL != "" {
		opts = append(opts, alfred.WithFREDURL(cfg.Shiller.FREDURL))
	}
	scraper := alfred.NewScraper(cfg.Shiller.Timeout, opts...)

	return usecase.NewDatasetService(loader, scraper, caches.Results, cfg.Cache.DatasetTTL, m, lgr)
}

// ProvideHub relays job events over Redis pub/sub when Redis is configured,
// so progress sockets see jobs run by any replica.
func ProvideHub(cfg *config.Config, rc *cache.RedisCache, lgr *applogger.Logger) *usecase.Hub {
	if rc == nil {
		return usecase.NewHub()
	}
	relay := internalrepo.NewRedisEventRelay(rc.Client(), cfg.Redis.Prefix+":job-events")
	return usecase.NewRelayedHub(relay, lgr)
}

// ProvideJobService registers the background factor job on q.
func ProvideJobService(
	cfg *config.Config,
	q queue.Queue,
	caches *Caches,
	hub *usecase.Hub,
	datasets *usecase.DatasetService,
	events domrepo.EventPublisher,
	m *metrics.Recorder,
	lgr *applogger.Logger,
) *usecase.JobService {
	return usecase.NewJobService(q, caches.Jobs, hub, datasets, events, usecase.JobServiceConfig{
		EventsTopic: cfg.Kafka.EventsTopic,
		ResultTTL:   cfg.Jobs.ResultTTL,
	}, m, lgr)
}

// ProvideRouter groups every API handler and the readiness check.
func ProvideRouter(
	lgr *applogger.Logger,
	recipes *usecase.RecipeService,
	vintage *usecase.VintageService,
	datasets *usecase.DatasetService,
	jobs *usecase.JobService,
	store domrepo.VintageStore,
	rc *cache.RedisCache,
) *api.Router {
	checks := map[string]api.HealthChecker{"vintage_store": store}
	if rc != nil {
		client := rc.Client()
		checks["redis"] = api.HealthFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}
	return api.NewRouter(
		api.NewRecipesHandler(lgr, recipes),
		api.NewVintageHandler(lgr, vintage),
		api.NewDatasetsHandler(lgr, datasets),
		api.NewJobsHandler(lgr, jobs),
		api.NewReadyHandler(checks),
	)
}

// ProvideHTTPServer builds the Echo server with metrics and rate limiting.
func ProvideHTTPServer(cfg *config.Config, router *api.Router, m *metrics.Recorder, lgr *applogger.Logger) *xhttp.Server {
	mw := []echo.MiddlewareFunc{}
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
		mw = append(mw, middleware.Metrics(m))
	}
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.IdleTTL)
		mw = append(mw, middleware.RateLimit(limiter, "/healthz", "/readyz", metricsPath))
	}

	return xhttp.NewServer(router, lgr,
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowRequest(cfg.Server.SlowRequest),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithMiddleware(mw...),
	)
}

// ProvideApp assembles the application lifecycle.
func ProvideApp(
	lgr *applogger.Logger,
	srv *xhttp.Server,
	q queue.Queue,
	consumer *pkgkafka.Consumer,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	rc *cache.RedisCache,
	caches *Caches,
	hub *usecase.Hub,
) *server.App {
	opts := []server.Option{
		server.WithQueue(q),
		server.WithBackground("job events", hub.Run),
		server.WithCloser("caches", caches.Close),
	}
	if consumer != nil {
		opts = append(opts, server.WithConsumer(consumer))
	}
	if producer != nil {
		opts = append(opts, server.WithCloser("kafka producer", producer.Close))
	}
	if ch != nil {
		opts = append(opts, server.WithCloser("clickhouse", ch.Close))
	}
	if rc != nil {
		opts = append(opts, server.WithCloser("redis", rc.Close))
	}
	return server.New(lgr, srv, opts...)
}
