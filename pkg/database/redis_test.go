package database

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := DefaultRedisConfig()
	cfg.Addr = mr.Addr()
	client, err := NewRedisClient(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(context.Background(), "indexer:probe", "1", 0).Err())
	assert.True(t, mr.Exists("indexer:probe"))
}

func TestNewRedisClient_AuthFailureIsNotRetried(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("s3cret")

	cfg := DefaultRedisConfig()
	cfg.Addr = mr.Addr()
	cfg.Password = "wrong"
	_, err := NewRedisClient(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping redis at "+mr.Addr())
}

func TestNewRedisClient_CanceledDuringRetry(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := DefaultRedisConfig()
	cfg.Addr = addr
	_, err := NewRedisClient(ctx, cfg, nil)
	require.Error(t, err)
}

type fakeRedisStats struct{ stats redis.PoolStats }

func (f fakeRedisStats) PoolStats() *redis.PoolStats { return &f.stats }

func TestRedisPoolCollector(t *testing.T) {
	c := NewRedisPoolCollector(fakeRedisStats{stats: redis.PoolStats{Hits: 7, Misses: 2, TotalConns: 3, IdleConns: 1}}, "catalog-indexer")

	expected := `
# HELP redis_pool_hits_total Times a free connection was found in the pool
# TYPE redis_pool_hits_total counter
redis_pool_hits_total{service="catalog-indexer"} 7
# HELP redis_pool_total_connections Connections currently held by the pool
# TYPE redis_pool_total_connections gauge
redis_pool_total_connections{service="catalog-indexer"} 3
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"redis_pool_hits_total", "redis_pool_total_connections"))
	assert.Equal(t, 5, testutil.CollectAndCount(c))
}
