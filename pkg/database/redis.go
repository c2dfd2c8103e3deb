package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// RedisConfig describes the Redis instance backing the job queue and the
// event deduplication store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int

	// ReadTimeout must exceed the blocking timeout used by queue consumers.
	ReadTimeout time.Duration
}

// DefaultRedisConfig returns the settings used when only an address is known.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:        "localhost:6379",
		PoolSize:    10,
		ReadTimeout: 10 * time.Second,
	}
}

func (c RedisConfig) options() *redis.Options {
	return &redis.Options{
		Addr:        c.Addr,
		Password:    c.Password,
		DB:          c.DB,
		PoolSize:    c.PoolSize,
		ReadTimeout: c.ReadTimeout,
	}
}

// NewRedisClient opens a client and pings it, retrying connection failures
// like NewPostgresPool.
func NewRedisClient(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(cfg.options())
	err := withRetry(ctx, logger, "redis "+cfg.Addr, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// RedisStatter is implemented by *redis.Client.
type RedisStatter interface {
	PoolStats() *redis.PoolStats
}

// RedisPoolCollector exports go-redis connection pool statistics.
type RedisPoolCollector struct {
	client  RedisStatter
	service string

	totalConns *prometheus.Desc
	idleConns  *prometheus.Desc
	hits       *prometheus.Desc
	misses     *prometheus.Desc
	timeouts   *prometheus.Desc
}

func NewRedisPoolCollector(client RedisStatter, service string) *RedisPoolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("redis_pool_"+name, help, []string{"service"}, nil)
	}
	return &RedisPoolCollector{
		client:     client,
		service:    service,
		totalConns: desc("total_connections", "Connections currently held by the pool"),
		idleConns:  desc("idle_connections", "Idle connections in the pool"),
		hits:       desc("hits_total", "Times a free connection was found in the pool"),
		misses:     desc("misses_total", "Times a new connection had to be dialed"),
		timeouts:   desc("timeouts_total", "Times waiting for a connection timed out"),
	}
}

func (c *RedisPoolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.totalConns, c.idleConns, c.hits, c.misses, c.timeouts} {
		ch <- d
	}
}

func (c *RedisPoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.client.PoolStats()
	emit := func(d *prometheus.Desc, t prometheus.ValueType, v uint32) {
		ch <- prometheus.MustNewConstMetric(d, t, float64(v), c.service)
	}
	emit(c.totalConns, prometheus.GaugeValue, s.TotalConns)
	emit(c.idleConns, prometheus.GaugeValue, s.IdleConns)
	emit(c.hits, prometheus.CounterValue, s.Hits)
	emit(c.misses, prometheus.CounterValue, s.Misses)
	emit(c.timeouts, prometheus.CounterValue, s.Timeouts)
}

// RegisterRedisPoolMetrics registers a RedisPoolCollector with the default registry.
func RegisterRedisPoolMetrics(client RedisStatter, service string) {
	prometheus.MustRegister(NewRedisPoolCollector(client, service))
}
