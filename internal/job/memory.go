package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/utafrali/catalog-indexer/pkg/errors"
	"github.com/utafrali/catalog-indexer/pkg/logger"
)

// MemoryQueue keeps jobs in process. It has the retry and state semantics of
// RedisQueue without durability, for development and tests.
type MemoryQueue struct {
	opts Options

	mu      sync.Mutex
	records map[string]*Record
	pending []string
	timers  map[*time.Timer]struct{}
	closed  bool

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var _ Queue = (*MemoryQueue)(nil)

// NewMemoryQueue creates an empty in-process queue.
func NewMemoryQueue(opts Options) *MemoryQueue {
	return &MemoryQueue{
		opts:    opts.withDefaults(),
		records: make(map[string]*Record),
		timers:  make(map[*time.Timer]struct{}),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (q *MemoryQueue) Add(_ context.Context, j Job) (*Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrClosed
	}
	q.prune()

	now := time.Now().UTC()
	rec := &Record{
		ID:        uuid.NewString(),
		Type:      j.Type(),
		Job:       j,
		State:     StateWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	q.records[rec.ID] = rec
	q.pending = append(q.pending, rec.ID)
	q.signal()

	out := *rec
	return &out, nil
}

func (q *MemoryQueue) Get(_ context.Context, id string) (*Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec, ok := q.records[id]
	if !ok {
		return nil, apperrors.NotFound("job", id)
	}
	out := *rec
	return &out, nil
}

func (q *MemoryQueue) Start(ctx context.Context, fn ProcessFunc) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-q.done:
			return nil
		default:
		}

		rec, ok := q.next()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-q.done:
				return nil
			case <-q.wake:
			}
			continue
		}
		q.process(ctx, rec, fn)
	}
}

func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		for t := range q.timers {
			t.Stop()
		}
		q.mu.Unlock()
		close(q.done)
	})
	return nil
}

// Pending returns the number of jobs waiting to run.
func (q *MemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// next pops the oldest waiting job and marks it active.
func (q *MemoryQueue) next() (Record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.pending) > 0 {
		id := q.pending[0]
		q.pending = q.pending[1:]
		rec, ok := q.records[id]
		if !ok {
			continue
		}
		rec.State = StateActive
		rec.Attempts++
		rec.UpdatedAt = time.Now().UTC()
		return *rec, true
	}
	return Record{}, false
}

func (q *MemoryQueue) process(ctx context.Context, rec Record, fn ProcessFunc) {
	ctx = logger.WithJob(ctx, rec.ID, string(rec.Type))
	err := fn(ctx, &rec, progressFunc(func(p int) {
		q.update(rec.ID, func(r *Record) { r.Progress = p })
	}))

	q.mu.Lock()
	defer q.mu.Unlock()

	stored, ok := q.records[rec.ID]
	if !ok {
		return
	}
	stored.UpdatedAt = time.Now().UTC()
	log := logger.WithContext(ctx, q.opts.Logger)
	switch {
	case err == nil:
		stored.State, stored.Progress, stored.Error = StateCompleted, 100, ""
	case stored.Attempts < q.opts.MaxAttempts && !q.closed && !apperrors.IsPermanent(err):
		stored.State, stored.Error = StateWaiting, err.Error()
		delay := q.opts.backoff(stored.Attempts)
		jobRetries.WithLabelValues(string(stored.Type)).Inc()
		log.WarnContext(ctx, "job failed, retrying",
			slog.Int("attempt", stored.Attempts),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)
		q.retryAfter(rec.ID, delay)
	default:
		stored.State, stored.Error = StateFailed, err.Error()
		log.ErrorContext(ctx, "job failed",
			slog.Int("attempts", stored.Attempts),
			slog.String("error", err.Error()),
		)
	}
}

func (q *MemoryQueue) retryAfter(id string, delay time.Duration) {
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.timers, t)
		if q.closed {
			return
		}
		q.pending = append(q.pending, id)
		q.signal()
	})
	q.timers[t] = struct{}{}
}

func (q *MemoryQueue) update(id string, fn func(*Record)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if rec, ok := q.records[id]; ok {
		fn(rec)
		rec.UpdatedAt = time.Now().UTC()
	}
}

// prune forgets finished records older than the retention window.
func (q *MemoryQueue) prune() {
	cutoff := time.Now().Add(-q.opts.Retention)
	for id, rec := range q.records {
		if (rec.State == StateCompleted || rec.State == StateFailed) && rec.UpdatedAt.Before(cutoff) {
			delete(q.records, id)
		}
	}
}

func (q *MemoryQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
