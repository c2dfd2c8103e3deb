package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/utafrali/catalog-indexer/pkg/errors"
	"github.com/utafrali/catalog-indexer/pkg/logger"
)

// RedisQueue stores jobs in Redis. Waiting ids live in a pending list, the
// running id in an active list, retries in a sorted set scored by due time,
// and each job's state in its own hash.
type RedisQueue struct {
	client *redis.Client
	prefix string
	opts   Options

	done      chan struct{}
	closeOnce sync.Once
}

var _ Queue = (*RedisQueue)(nil)

// NewRedisQueue creates a queue whose keys start with prefix.
func NewRedisQueue(client *redis.Client, prefix string, opts Options) *RedisQueue {
	return &RedisQueue{
		client: client,
		prefix: prefix,
		opts:   opts.withDefaults(),
		done:   make(chan struct{}),
	}
}

func (q *RedisQueue) pendingKey() string      { return q.prefix + ":pending" }
func (q *RedisQueue) activeKey() string       { return q.prefix + ":active" }
func (q *RedisQueue) delayedKey() string      { return q.prefix + ":delayed" }
func (q *RedisQueue) jobKey(id string) string { return q.prefix + ":job:" + id }

func (q *RedisQueue) Add(ctx context.Context, j Job) (*Record, error) {
	select {
	case <-q.done:
		return nil, ErrClosed
	default:
	}

	payload, err := Encode(j)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	rec := &Record{
		ID:        uuid.NewString(),
		Type:      j.Type(),
		Job:       j,
		State:     StateWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.jobKey(rec.ID), map[string]any{
			"type":       string(rec.Type),
			"payload":    string(payload),
			"state":      string(rec.State),
			"progress":   0,
			"attempts":   0,
			"error":      "",
			"created_at": now.Format(time.RFC3339Nano),
			"updated_at": now.Format(time.RFC3339Nano),
		})
		pipe.LPush(ctx, q.pendingKey(), rec.ID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis enqueue %s job: %w", rec.Type, err)
	}
	return rec, nil
}

func (q *RedisQueue) Get(ctx context.Context, id string) (*Record, error) {
	fields, err := q.client.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get job %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, apperrors.NotFound("job", id)
	}
	return recordFromHash(id, fields)
}

func recordFromHash(id string, fields map[string]string) (*Record, error) {
	rec := &Record{
		ID:    id,
		Type:  Type(fields["type"]),
		State: State(fields["state"]),
		Error: fields["error"],
	}
	rec.Progress, _ = strconv.Atoi(fields["progress"])
	rec.Attempts, _ = strconv.Atoi(fields["attempts"])
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, fields["created_at"])
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields["updated_at"])

	j, err := Decode([]byte(fields["payload"]))
	if err != nil {
		return rec, fmt.Errorf("job %s: %w", id, err)
	}
	rec.Job = j
	return rec, nil
}

// Start first returns jobs left active by a crashed worker to the front of
// the pending list, then processes jobs until ctx is cancelled or Close is
// called. Either of those ends Start with a nil error, also mid-recovery.
func (q *RedisQueue) Start(ctx context.Context, fn ProcessFunc) error {
	select {
	case <-q.done:
		return nil
	default:
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-q.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := q.recoverStale(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	for ctx.Err() == nil {
		if err := q.promoteDue(ctx); err != nil && ctx.Err() == nil {
			q.opts.Logger.WarnContext(ctx, "could not promote delayed jobs", slog.String("error", err.Error()))
		}

		id, err := q.claim(ctx)
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			q.opts.Logger.WarnContext(ctx, "could not claim job", slog.String("error", err.Error()))
			sleep(ctx, q.opts.Backoff)
			continue
		}
		q.process(ctx, id, fn)
	}
	return nil
}

func (q *RedisQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}

func (q *RedisQueue) recoverStale(ctx context.Context) error {
	recovered := 0
	for {
		id, err := q.client.LMove(ctx, q.activeKey(), q.pendingKey(), "RIGHT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return fmt.Errorf("redis recover active jobs: %w", err)
		}
		if err := q.client.HSet(ctx, q.jobKey(id), "state", string(StateWaiting)).Err(); err != nil {
			return fmt.Errorf("redis reset job %s: %w", id, err)
		}
		recovered++
	}
	if recovered > 0 {
		q.opts.Logger.WarnContext(ctx, "recovered jobs left active by a previous worker", slog.Int("jobs", recovered))
	}
	return nil
}

// promoteDue moves retries whose backoff has elapsed to the back of the
// pending list.
func (q *RedisQueue) promoteDue(ctx context.Context) error {
	due, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(time.Now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return fmt.Errorf("redis list due jobs: %w", err)
	}
	for _, id := range due {
		_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRem(ctx, q.delayedKey(), id)
			pipe.LPush(ctx, q.pendingKey(), id)
			return nil
		})
		if err != nil {
			return fmt.Errorf("redis promote job %s: %w", id, err)
		}
	}
	return nil
}

// claim moves the oldest pending id onto the active list. While retries are
// scheduled it polls so they are promoted on time; otherwise it blocks.
func (q *RedisQueue) claim(ctx context.Context) (string, error) {
	next, err := q.client.ZRangeWithScores(ctx, q.delayedKey(), 0, 0).Result()
	if err != nil {
		return "", fmt.Errorf("redis peek delayed jobs: %w", err)
	}
	if len(next) == 0 {
		return q.client.BLMove(ctx, q.pendingKey(), q.activeKey(), "RIGHT", "LEFT", q.opts.PollTimeout).Result()
	}

	id, err := q.client.LMove(ctx, q.pendingKey(), q.activeKey(), "RIGHT", "LEFT").Result()
	if errors.Is(err, redis.Nil) {
		wait := time.Until(time.UnixMilli(int64(next[0].Score)))
		sleep(ctx, min(max(wait, time.Millisecond), q.opts.PollTimeout))
	}
	return id, err
}

func (q *RedisQueue) process(ctx context.Context, id string, fn ProcessFunc) {
	bg := context.WithoutCancel(ctx)
	key := q.jobKey(id)

	rec, err := q.Get(bg, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			q.client.LRem(bg, q.activeKey(), 1, id)
			return
		}
		if rec == nil {
			q.opts.Logger.ErrorContext(ctx, "could not load job", slog.String("job_id", id), slog.String("error", err.Error()))
			return
		}
		q.finish(bg, rec, apperrors.Permanent(err))
		return
	}

	attempts, err := q.client.HIncrBy(bg, key, "attempts", 1).Result()
	if err != nil {
		q.opts.Logger.ErrorContext(ctx, "could not start job", slog.String("job_id", id), slog.String("error", err.Error()))
		return
	}
	rec.Attempts = int(attempts)
	rec.State = StateActive
	q.client.HSet(bg, key, "state", string(StateActive), "updated_at", time.Now().UTC().Format(time.RFC3339Nano))

	jobCtx := logger.WithJob(ctx, id, string(rec.Type))
	err = fn(jobCtx, rec, progressFunc(func(p int) {
		q.client.HSet(bg, key, "progress", p, "updated_at", time.Now().UTC().Format(time.RFC3339Nano))
	}))
	q.finish(logger.WithJob(bg, id, string(rec.Type)), rec, err)
}

// finish records the outcome of an attempt. Permanent errors are not retried.
func (q *RedisQueue) finish(ctx context.Context, rec *Record, err error) {
	key := q.jobKey(rec.ID)
	now := time.Now().UTC()
	log := logger.WithContext(ctx, q.opts.Logger)

	_, pipeErr := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.activeKey(), 1, rec.ID)
		switch {
		case err == nil:
			pipe.HSet(ctx, key, "state", string(StateCompleted), "progress", 100, "error", "", "updated_at", now.Format(time.RFC3339Nano))
			pipe.Expire(ctx, key, q.opts.Retention)
		case !apperrors.IsPermanent(err) && rec.Attempts < q.opts.MaxAttempts:
			delay := q.opts.backoff(rec.Attempts)
			pipe.HSet(ctx, key, "state", string(StateWaiting), "error", err.Error(), "updated_at", now.Format(time.RFC3339Nano))
			pipe.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(now.Add(delay).UnixMilli()), Member: rec.ID})
			jobRetries.WithLabelValues(string(rec.Type)).Inc()
			log.WarnContext(ctx, "job failed, retrying",
				slog.Int("attempt", rec.Attempts),
				slog.Duration("backoff", delay),
				slog.String("error", err.Error()),
			)
		default:
			pipe.HSet(ctx, key, "state", string(StateFailed), "error", err.Error(), "updated_at", now.Format(time.RFC3339Nano))
			pipe.Expire(ctx, key, q.opts.Retention)
			log.ErrorContext(ctx, "job failed",
				slog.Int("attempts", rec.Attempts),
				slog.String("error", err.Error()),
			)
		}
		return nil
	})
	if pipeErr != nil {
		log.ErrorContext(ctx, "could not record job outcome", slog.String("error", pipeErr.Error()))
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
