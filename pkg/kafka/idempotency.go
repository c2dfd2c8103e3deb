package kafka

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore remembers which event ids were handled successfully, so
// redelivered catalog events do not enqueue the same sync twice.
type IdempotencyStore interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
}

// MemoryIdempotencyStore is a per-process IdempotencyStore. Expired ids are
// swept whenever a new id is marked.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	expires map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		expires: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryIdempotencyStore) Seen(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.expires[eventID]
	return ok && s.now().Before(exp), nil
}

func (s *MemoryIdempotencyStore) MarkProcessed(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, exp := range s.expires {
		if !now.Before(exp) {
			delete(s.expires, id)
		}
	}
	s.expires[eventID] = now.Add(s.ttl)
	return nil
}

// Len returns the number of remembered ids, expired or not.
func (s *MemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expires)
}

// RedisIdempotencyStore shares handled ids between indexer replicas. Keys are
// "<namespace>:<event id>" and expire after the store TTL.
type RedisIdempotencyStore struct {
	client    redis.Cmdable
	namespace string
	ttl       time.Duration
}

func NewRedisIdempotencyStore(client redis.Cmdable, namespace string, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, namespace: strings.TrimSuffix(namespace, ":"), ttl: ttl}
}

func (s *RedisIdempotencyStore) key(eventID string) string {
	return s.namespace + ":" + eventID
}

func (s *RedisIdempotencyStore) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(eventID)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisIdempotencyStore) MarkProcessed(ctx context.Context, eventID string) error {
	return s.client.Set(ctx, s.key(eventID), time.Now().UTC().Format(time.RFC3339), s.ttl).Err()
}

// IdempotentHandler skips events whose id the store has already seen. An
// unavailable store never blocks indexing: the event is handled and may be
// handled twice, which the sync jobs tolerate. Events without an id are
// always handled.
func IdempotentHandler(store IdempotencyStore, next Handler, logger *slog.Logger) Handler {
	return func(ctx context.Context, event *Event) error {
		if event.EventID == "" {
			return next(ctx, event)
		}
		log := logger.With(
			slog.String("event_id", event.EventID),
			slog.String("event_type", event.EventType),
		)

		seen, err := store.Seen(ctx, event.EventID)
		switch {
		case err != nil:
			log.WarnContext(ctx, "dedup lookup failed, handling event anyway", slog.String("error", err.Error()))
		case seen:
			duplicatesTotal.WithLabelValues(event.EventType).Inc()
			log.DebugContext(ctx, "duplicate event skipped")
			return nil
		}

		if err := next(ctx, event); err != nil {
			return err
		}
		if err := store.MarkProcessed(ctx, event.EventID); err != nil {
			log.WarnContext(ctx, "could not record handled event", slog.String("error", err.Error()))
		}
		return nil
	}
}
