package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/catalog-indexer/internal/config"
	"github.com/utafrali/catalog-indexer/internal/domain"
	"github.com/utafrali/catalog-indexer/internal/engine"
	esengine "github.com/utafrali/catalog-indexer/internal/engine/elasticsearch"
	memengine "github.com/utafrali/catalog-indexer/internal/engine/memory"
	"github.com/utafrali/catalog-indexer/internal/event"
	handler "github.com/utafrali/catalog-indexer/internal/handler/http"
	"github.com/utafrali/catalog-indexer/internal/indexer"
	"github.com/utafrali/catalog-indexer/internal/job"
	"github.com/utafrali/catalog-indexer/internal/query"
	"github.com/utafrali/catalog-indexer/internal/repository"
	"github.com/utafrali/catalog-indexer/internal/repository/postgres"
	"github.com/utafrali/catalog-indexer/internal/scheduler"
	"github.com/utafrali/catalog-indexer/pkg/database"
	"github.com/utafrali/catalog-indexer/pkg/health"
	"github.com/utafrali/catalog-indexer/pkg/httpclient"
	pkgkafka "github.com/utafrali/catalog-indexer/pkg/kafka"
	"github.com/utafrali/catalog-indexer/pkg/middleware"
	"github.com/utafrali/catalog-indexer/pkg/tracing"
)

const serviceName = "catalog-indexer"

// infra holds the external resources the indexer runs on.
type infra struct {
	catalog  repository.CatalogRepository
	engine   engine.Engine
	queue    job.Queue
	dedup    pkgkafka.IdempotencyStore
	producer *pkgkafka.Producer
	dlq      *pkgkafka.DLQProducer
	pool     *pgxpool.Pool
	redis    *redis.Client
}

// App wires together all dependencies and runs the indexer.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	infra          infra
	orchestrator   *indexer.Orchestrator
	processor      *job.Processor
	debouncer      *event.CollectionDebouncer
	scheduler      *scheduler.Scheduler
	eventHandler   pkgkafka.Handler
	consumers      []*pkgkafka.Consumer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	var in infra
	cleanup := func() {
		if in.pool != nil {
			in.pool.Close()
		}
		if in.redis != nil {
			_ = in.redis.Close()
		}
		_ = tracerShutdown(context.Background())
	}

	// The catalog is read through a read-only pool.
	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: cfg.PostgresMaxConnLifetime(),
		MaxConnIdleTime: cfg.PostgresMaxConnIdleTime(),
		ReadOnly:        true,
	}
	in.pool, err = database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(in.pool, serviceName)
	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold(), logger)
	}
	in.catalog = postgres.NewCatalogRepository(in.pool)

	in.engine, err = newEngine(cfg, logger)
	if err != nil {
		cleanup()
		return nil, err
	}

	queueOpts := job.Options{
		MaxAttempts: cfg.JobMaxAttempts,
		Backoff:     cfg.JobBackoff,
		Retention:   cfg.JobRetention,
		Logger:      logger,
	}
	switch cfg.JobQueue {
	case "redis":
		redisCfg := database.DefaultRedisConfig()
		redisCfg.Addr = cfg.RedisAddr
		redisCfg.Password = cfg.RedisPassword
		redisCfg.DB = cfg.RedisDB
		in.redis, err = database.NewRedisClient(ctx, redisCfg, logger)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		database.RegisterRedisPoolMetrics(in.redis, serviceName)
		in.queue = job.NewRedisQueue(in.redis, cfg.JobQueuePrefix, queueOpts)
		in.dedup = pkgkafka.NewRedisIdempotencyStore(in.redis, "indexer:events", cfg.EventDedupTTL)
		logger.Info("redis job queue initialized", slog.String("addr", cfg.RedisAddr))
	default:
		in.queue = job.NewMemoryQueue(queueOpts)
		in.dedup = pkgkafka.NewMemoryIdempotencyStore(cfg.EventDedupTTL)
		logger.Info("in-memory job queue initialized")
	}

	if cfg.KafkaEnabled {
		in.producer = pkgkafka.NewProducer(cfg.KafkaBrokers, logger)
		in.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
	}

	a, err := assemble(cfg, logger, in)
	if err != nil {
		cleanup()
		return nil, err
	}
	a.tracerShutdown = tracerShutdown
	return a, nil
}

func newEngine(cfg *config.Config, logger *slog.Logger) (engine.Engine, error) {
	if cfg.SearchEngine == "memory" {
		logger.Info("in-memory search engine initialized")
		return memengine.New(), nil
	}

	breakerCfg := httpclient.DefaultCircuitBreakerConfig("elasticsearch")
	breakerCfg.Timeout = cfg.BreakerTimeout
	breakerCfg.MinRequests = cfg.BreakerMinRequests
	breakerCfg.MaxRequests = cfg.BreakerHalfOpenReqs

	eng, err := esengine.New(esengine.Config{
		Addresses: cfg.ElasticsearchURLs,
		Username:  cfg.ElasticsearchUsername,
		Password:  cfg.ElasticsearchPassword,
		Transport: httpclient.NewCircuitBreakerTransport(http.DefaultTransport, breakerCfg, logger),
		Refresh:   cfg.ElasticsearchRefresh,
	}, query.NewTranslator(), logger)
	if err != nil {
		return nil, fmt.Errorf("init elasticsearch engine: %w", err)
	}
	logger.Info("elasticsearch search engine initialized",
		slog.Any("urls", cfg.ElasticsearchURLs),
		slog.String("alias", cfg.IndexAlias),
	)
	return eng, nil
}

// assemble builds the indexing pipeline on top of in.
func assemble(cfg *config.Config, logger *slog.Logger, in infra) (*App, error) {
	defaults := domain.RequestContext{ChannelID: cfg.DefaultChannelID, LanguageCode: cfg.DefaultLanguage}

	synchronizer := indexer.NewSynchronizer(in.catalog, in.engine, cfg.IndexAlias, logger,
		indexer.WithConcurrency(cfg.SyncConcurrency),
	)
	orchestrator := indexer.NewOrchestrator(in.engine, in.catalog, synchronizer, logger)

	var reindexer job.Reindexer = orchestrator
	if in.producer != nil {
		reindexer = event.NewAnnouncingReindexer(orchestrator, in.producer, cfg.IndexAlias, logger)
	}
	processor := job.NewProcessor(synchronizer, reindexer, logger)

	debouncer := event.NewCollectionDebouncer(in.queue, cfg.CollectionDebounce, logger)
	eventConsumer := event.NewConsumer(in.queue, in.catalog, debouncer, defaults, logger)

	handle := pkgkafka.IdempotentHandler(in.dedup, eventConsumer.Handle, logger)

	var consumers []*pkgkafka.Consumer
	if cfg.KafkaEnabled {
		for _, topic := range event.Topics() {
			c := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
				Brokers:      cfg.KafkaBrokers,
				GroupID:      cfg.KafkaGroupID,
				Topic:        topic,
				MinBytes:     1,
				MaxBytes:     10e6,
				RetryBackoff: cfg.KafkaRetryBackoff,
			}, handle, logger)
			if in.dlq != nil {
				c = c.WithDLQ(in.dlq)
			}
			consumers = append(consumers, c)
		}
		logger.Info("kafka consumers initialized",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.Int("topic_count", len(consumers)),
		)
	}

	var sched *scheduler.Scheduler
	if cfg.ReindexEnabled() {
		var err error
		sched, err = scheduler.New(in.queue, cfg.ReindexSchedule, defaults, logger)
		if err != nil {
			return nil, fmt.Errorf("init scheduler: %w", err)
		}
	}

	healthHandler := health.NewHandler(health.WithTimeout(cfg.HealthCheckTimeout))
	healthHandler.RegisterCritical("search_engine", in.engine.Ping)
	if in.pool != nil {
		healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
			return in.pool.Ping(ctx)
		})
	}
	if in.redis != nil {
		healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
			return in.redis.Ping(ctx).Err()
		})
	}
	if cfg.KafkaEnabled {
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
		})
	}

	router := handler.NewRouter(in.queue, in.engine, handler.Options{
		Alias: cfg.IndexAlias,
		Admin: middleware.AdminAuthConfig{
			Token:     cfg.AdminToken,
			JWTSecret: cfg.AdminJWTSecret,
			JWTIssuer: cfg.AdminJWTIssuer,
		},
		WriteRPS:    cfg.AdminWriteRPS,
		WriteBurst:  cfg.AdminWriteBurst,
		Defaults:    defaults,
		ServiceName: serviceName,
	}, healthHandler, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		infra:          in,
		orchestrator:   orchestrator,
		processor:      processor,
		debouncer:      debouncer,
		scheduler:      sched,
		eventHandler:   handle,
		consumers:      consumers,
		httpServer:     httpServer,
		tracerShutdown: func(context.Context) error { return nil },
	}, nil
}

// Handler returns the HTTP handler of the admin API.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run makes sure the index alias exists, then starts the HTTP server, the job
// worker, the Kafka consumers and the reindex schedule. It blocks until the
// context is canceled or a component fails.
func (a *App) Run(ctx context.Context) error {
	if err := a.orchestrator.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}

	errCh := make(chan error, 2+len(a.consumers))

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		if err := a.infra.queue.Start(ctx, a.processor.Process); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("job worker: %w", err)
		}
	}()

	for _, c := range a.consumers {
		go func() {
			if err := c.Start(ctx); err != nil {
				errCh <- fmt.Errorf("kafka consumer %s: %w", c.Topic(), err)
			}
		}()
	}

	if a.scheduler != nil {
		a.scheduler.Start()
		a.logger.Info("reindex schedule started",
			slog.String("schedule", a.cfg.ReindexSchedule),
			slog.Time("next", a.scheduler.Next()),
		)
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	return errors.Join(runErr, a.Shutdown())
}

// Shutdown gracefully stops all components. Pending collection batches are
// flushed into the queue before it closes.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.scheduler != nil {
		select {
		case <-a.scheduler.Stop().Done():
		case <-shutdownCtx.Done():
		}
	}

	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.debouncer.Flush(shutdownCtx)

	if err := a.infra.queue.Close(); err != nil {
		a.logger.Error("job queue close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.infra.producer != nil {
		if err := a.infra.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close producer: %w", err))
		}
	}
	if a.infra.dlq != nil {
		if err := a.infra.dlq.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dlq producer: %w", err))
		}
	}
	if a.infra.redis != nil {
		if err := a.infra.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.infra.pool != nil {
		a.infra.pool.Close()
	}

	if err := a.tracerShutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
