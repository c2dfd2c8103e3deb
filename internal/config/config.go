package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/robfig/cron/v3"

	pkgconfig "github.com/utafrali/catalog-indexer/pkg/config"
)

// Config holds all configuration for the catalog indexer.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`

	// HTTP server
	HTTPPort           int           `env:"INDEXER_HTTP_PORT" envDefault:"8012"`
	AdminToken         string        `env:"INDEXER_ADMIN_TOKEN"`
	AdminJWTSecret     string        `env:"INDEXER_ADMIN_JWT_SECRET"`
	AdminJWTIssuer     string        `env:"INDEXER_ADMIN_JWT_ISSUER"`
	AdminWriteRPS      float64       `env:"ADMIN_WRITE_RPS" envDefault:"5"`
	AdminWriteBurst    int           `env:"ADMIN_WRITE_BURST" envDefault:"20"`
	HealthCheckTimeout time.Duration `env:"HEALTH_CHECK_TIMEOUT" envDefault:"3s"`

	// Search engine selection (elasticsearch or memory)
	SearchEngine string `env:"SEARCH_ENGINE" envDefault:"elasticsearch"`

	// Elasticsearch
	ElasticsearchURLs     []string `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200" envSeparator:","`
	ElasticsearchUsername string   `env:"ELASTICSEARCH_USERNAME"`
	ElasticsearchPassword string   `env:"ELASTICSEARCH_PASSWORD"`
	ElasticsearchRefresh  string   `env:"ELASTICSEARCH_REFRESH" envDefault:"false"`
	IndexAlias            string   `env:"INDEX_ALIAS" envDefault:"catalog_search"`

	// Circuit breaker around the Elasticsearch transport
	BreakerTimeout      time.Duration `env:"ES_BREAKER_TIMEOUT" envDefault:"30s"`
	BreakerMinRequests  uint32        `env:"ES_BREAKER_MIN_REQUESTS" envDefault:"5"`
	BreakerHalfOpenReqs uint32        `env:"ES_BREAKER_HALF_OPEN_REQUESTS" envDefault:"1"`

	// PostgreSQL (catalog, read-only)
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"ecommerce"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"ecommerce_secret"`
	PostgresDB   string `env:"CATALOG_DB_NAME" envDefault:"catalog_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`

	// Kafka
	KafkaEnabled      bool          `env:"KAFKA_ENABLED" envDefault:"true"`
	KafkaBrokers      []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID      string        `env:"KAFKA_GROUP_ID" envDefault:"catalog-indexer"`
	KafkaRetryBackoff time.Duration `env:"KAFKA_RETRY_BACKOFF" envDefault:"100ms"`
	EventDedupTTL     time.Duration `env:"EVENT_DEDUP_TTL" envDefault:"24h"`

	// Redis
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Job queue selection (redis or memory)
	JobQueue       string        `env:"JOB_QUEUE" envDefault:"redis"`
	JobQueuePrefix string        `env:"JOB_QUEUE_PREFIX" envDefault:"indexer:jobs"`
	JobMaxAttempts int           `env:"JOB_MAX_ATTEMPTS" envDefault:"3"`
	JobBackoff     time.Duration `env:"JOB_BACKOFF" envDefault:"1s"`
	JobRetention   time.Duration `env:"JOB_RETENTION" envDefault:"24h"`

	// Synchronization
	SyncConcurrency    int           `env:"SYNC_CONCURRENCY" envDefault:"5"`
	CollectionDebounce time.Duration `env:"COLLECTION_DEBOUNCE" envDefault:"50ms"`
	DefaultChannelID   string        `env:"DEFAULT_CHANNEL_ID" envDefault:"1"`
	DefaultLanguage    string        `env:"DEFAULT_LANGUAGE_CODE" envDefault:"en"`

	// Scheduled full reindex; "off" disables it.
	ReindexSchedule string `env:"REINDEX_SCHEDULE" envDefault:"0 3 * * *"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load indexer config: %w", err)
	}
	return cfg, nil
}

// Validate rejects settings the indexer cannot start with.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if !slices.Contains([]string{"elasticsearch", "memory"}, c.SearchEngine) {
		return fmt.Errorf("SEARCH_ENGINE must be elasticsearch or memory, got %q", c.SearchEngine)
	}
	if c.SearchEngine == "elasticsearch" && len(c.ElasticsearchURLs) == 0 {
		return fmt.Errorf("ELASTICSEARCH_URL is required")
	}
	if !slices.Contains([]string{"", "true", "false", "wait_for"}, c.ElasticsearchRefresh) {
		return fmt.Errorf("ELASTICSEARCH_REFRESH must be true, false or wait_for, got %q", c.ElasticsearchRefresh)
	}
	if c.AdminWriteRPS > 0 && c.AdminWriteBurst < 1 {
		return fmt.Errorf("ADMIN_WRITE_BURST must be >= 1 when ADMIN_WRITE_RPS is set, got %d", c.AdminWriteBurst)
	}
	if !slices.Contains([]string{"json", "text"}, c.LogFormat) {
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	if c.IndexAlias == "" {
		return fmt.Errorf("INDEX_ALIAS is required")
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.PostgresUser == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if !slices.Contains([]string{"redis", "memory"}, c.JobQueue) {
		return fmt.Errorf("JOB_QUEUE must be redis or memory, got %q", c.JobQueue)
	}
	if c.JobQueue == "redis" && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}
	if c.JobMaxAttempts < 1 {
		return fmt.Errorf("JOB_MAX_ATTEMPTS must be >= 1, got %d", c.JobMaxAttempts)
	}
	if c.SyncConcurrency < 1 {
		return fmt.Errorf("SYNC_CONCURRENCY must be >= 1, got %d", c.SyncConcurrency)
	}
	if c.CollectionDebounce <= 0 {
		return fmt.Errorf("COLLECTION_DEBOUNCE must be > 0, got %s", c.CollectionDebounce)
	}
	if c.DefaultChannelID == "" || c.DefaultLanguage == "" {
		return fmt.Errorf("DEFAULT_CHANNEL_ID and DEFAULT_LANGUAGE_CODE are required")
	}
	if c.ReindexEnabled() {
		if _, err := cron.ParseStandard(c.ReindexSchedule); err != nil {
			return fmt.Errorf("invalid REINDEX_SCHEDULE %q: %w", c.ReindexSchedule, err)
		}
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// PostgresMaxConnLifetime returns the pool connection lifetime.
func (c *Config) PostgresMaxConnLifetime() time.Duration {
	return time.Duration(c.DBMaxConnLifetimeMins) * time.Minute
}

// PostgresMaxConnIdleTime returns the pool idle timeout.
func (c *Config) PostgresMaxConnIdleTime() time.Duration {
	return time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute
}

// SlowQueryThreshold returns the slow query logging threshold.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryThresholdMs) * time.Millisecond
}

// ReindexEnabled reports whether a scheduled reindex is configured.
func (c *Config) ReindexEnabled() bool {
	return c.ReindexSchedule != "" && c.ReindexSchedule != "off"
}
