package event

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/utafrali/catalog-indexer/internal/domain"
	"github.com/utafrali/catalog-indexer/internal/job"
)

// DefaultDebounceWindow is the quiet period after which collection changes
// are flushed.
const DefaultDebounceWindow = 50 * time.Millisecond

// CollectionDebouncer coalesces bursts of collection changes into one
// UpdateVariantsByIDJob per request context carrying the union of variant
// ids. Each change restarts the window; a burst is flushed no later than
// maxDelay after its first change.
type CollectionDebouncer struct {
	queue    job.Queue
	window   time.Duration
	maxDelay time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	batches map[domain.RequestContext]*batch
	wg      sync.WaitGroup
}

// batch is submitted exactly once, by whichever of fire or Flush claims it.
type batch struct {
	ids     []string
	seen    map[string]struct{}
	first   time.Time
	timer   *time.Timer
	claimed bool
}

// NewCollectionDebouncer creates a debouncer submitting to queue.
func NewCollectionDebouncer(queue job.Queue, window time.Duration, logger *slog.Logger) *CollectionDebouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &CollectionDebouncer{
		queue:    queue,
		window:   window,
		maxDelay: 20 * window,
		logger:   logger,
		batches:  make(map[domain.RequestContext]*batch),
	}
}

// Add records variant ids changed under rc.
func (d *CollectionDebouncer) Add(rc domain.RequestContext, variantIDs []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.batches[rc]
	if !ok {
		b = &batch{seen: make(map[string]struct{}), first: time.Now()}
		d.batches[rc] = b
		d.wg.Add(1)
		b.timer = time.AfterFunc(d.window, func() { d.fire(rc, b) })
	} else if time.Since(b.first) < d.maxDelay {
		b.timer.Reset(d.window)
	}

	for _, id := range variantIDs {
		if _, dup := b.seen[id]; dup {
			continue
		}
		b.seen[id] = struct{}{}
		b.ids = append(b.ids, id)
	}
}

func (d *CollectionDebouncer) fire(rc domain.RequestContext, b *batch) {
	d.mu.Lock()
	if b.claimed {
		d.mu.Unlock()
		return
	}
	b.claimed = true
	if d.batches[rc] == b {
		delete(d.batches, rc)
	}
	d.mu.Unlock()

	defer d.wg.Done()
	d.submit(context.Background(), rc, b.ids)
}

// Flush submits every pending batch immediately and waits for in-flight
// submissions.
func (d *CollectionDebouncer) Flush(ctx context.Context) {
	d.mu.Lock()
	pending := make(map[domain.RequestContext]*batch, len(d.batches))
	for rc, b := range d.batches {
		if !b.claimed {
			b.claimed = true
			b.timer.Stop()
			pending[rc] = b
		}
	}
	d.batches = make(map[domain.RequestContext]*batch)
	d.mu.Unlock()

	for rc, b := range pending {
		d.submit(ctx, rc, b.ids)
		d.wg.Done()
	}
	d.wg.Wait()
}

func (d *CollectionDebouncer) submit(ctx context.Context, rc domain.RequestContext, ids []string) {
	j := job.UpdateVariantsByIDJob{Ctx: rc, IDs: ids}
	rec, err := d.queue.Add(ctx, j)
	if err != nil {
		d.logger.ErrorContext(ctx, "could not submit coalesced collection update",
			slog.Int("variants", len(ids)),
			slog.String("error", err.Error()),
		)
		return
	}
	jobsSubmitted.WithLabelValues(TopicCollectionModified, string(j.Type())).Inc()
	d.logger.InfoContext(ctx, "collection changes coalesced",
		slog.String("job_id", rec.ID),
		slog.Int("variants", len(ids)),
	)
}
