package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8012, cfg.HTTPPort)
	assert.Equal(t, "elasticsearch", cfg.SearchEngine)
	assert.Equal(t, []string{"http://localhost:9200"}, cfg.ElasticsearchURLs)
	assert.Equal(t, "catalog_search", cfg.IndexAlias)
	assert.Equal(t, "redis", cfg.JobQueue)
	assert.Equal(t, 3, cfg.JobMaxAttempts)
	assert.Equal(t, 5, cfg.SyncConcurrency)
	assert.Equal(t, 50*time.Millisecond, cfg.CollectionDebounce)
	assert.Equal(t, 30*time.Second, cfg.BreakerTimeout)
	assert.True(t, cfg.KafkaEnabled)
	assert.True(t, cfg.ReindexEnabled())
	assert.Empty(t, cfg.AdminToken)
	assert.Equal(t, 3*time.Second, cfg.HealthCheckTimeout)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 5.0, cfg.AdminWriteRPS)
	assert.Equal(t, 20, cfg.AdminWriteBurst)
	assert.Empty(t, cfg.AdminJWTSecret)
}

func TestLoad_FromEnvVars(t *testing.T) {
	setEnvs(t, map[string]string{
		"INDEXER_HTTP_PORT":            "9100",
		"SEARCH_ENGINE":                "memory",
		"ELASTICSEARCH_URL":            "http://es1:9200,http://es2:9200",
		"JOB_QUEUE":                    "memory",
		"SYNC_CONCURRENCY":             "12",
		"COLLECTION_DEBOUNCE":          "200ms",
		"REINDEX_SCHEDULE":             "off",
		"LOG_SLOW_QUERY_MS":            "250",
		"DB_MAX_CONN_LIFETIME_MINUTES": "15",
	})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.HTTPPort)
	assert.Equal(t, "memory", cfg.SearchEngine)
	assert.Equal(t, []string{"http://es1:9200", "http://es2:9200"}, cfg.ElasticsearchURLs)
	assert.Equal(t, "memory", cfg.JobQueue)
	assert.Equal(t, 12, cfg.SyncConcurrency)
	assert.Equal(t, 200*time.Millisecond, cfg.CollectionDebounce)
	assert.False(t, cfg.ReindexEnabled())
	assert.Equal(t, 250*time.Millisecond, cfg.SlowQueryThreshold())
	assert.Equal(t, 15*time.Minute, cfg.PostgresMaxConnLifetime())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		envs map[string]string
		want string
	}{
		{name: "port zero", envs: map[string]string{"INDEXER_HTTP_PORT": "0"}, want: "invalid HTTP port"},
		{name: "port too large", envs: map[string]string{"INDEXER_HTTP_PORT": "70000"}, want: "invalid HTTP port"},
		{name: "unknown engine", envs: map[string]string{"SEARCH_ENGINE": "solr"}, want: "SEARCH_ENGINE"},
		{name: "unknown queue", envs: map[string]string{"JOB_QUEUE": "sqs"}, want: "JOB_QUEUE"},
		{name: "bad refresh", envs: map[string]string{"ELASTICSEARCH_REFRESH": "sometimes"}, want: "ELASTICSEARCH_REFRESH"},
		{name: "zero attempts", envs: map[string]string{"JOB_MAX_ATTEMPTS": "0"}, want: "JOB_MAX_ATTEMPTS"},
		{name: "zero concurrency", envs: map[string]string{"SYNC_CONCURRENCY": "0"}, want: "SYNC_CONCURRENCY"},
		{name: "negative debounce", envs: map[string]string{"COLLECTION_DEBOUNCE": "-1s"}, want: "COLLECTION_DEBOUNCE"},
		{name: "pool inverted", envs: map[string]string{"DB_MIN_CONNS": "20", "DB_MAX_CONNS": "5"}, want: "DB_MIN_CONNS"},
		{name: "bad schedule", envs: map[string]string{"REINDEX_SCHEDULE": "every tuesday"}, want: "REINDEX_SCHEDULE"},
		{name: "zero burst", envs: map[string]string{"ADMIN_WRITE_BURST": "0"}, want: "ADMIN_WRITE_BURST"},
		{name: "log format", envs: map[string]string{"LOG_FORMAT": "logfmt"}, want: "LOG_FORMAT"},
		{name: "sample rate", envs: map[string]string{"OTEL_SAMPLE_RATE": "1.5"}, want: "OTEL_SAMPLE_RATE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnvs(t, tt.envs)

			cfg, err := Load()

			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_ParseError(t *testing.T) {
	t.Setenv("SYNC_CONCURRENCY", "lots")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load indexer config")
}
