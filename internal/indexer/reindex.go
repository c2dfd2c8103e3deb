package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/catalog-indexer/internal/domain"
	"github.com/utafrali/catalog-indexer/internal/engine"
	"github.com/utafrali/catalog-indexer/internal/repository"
	"github.com/utafrali/catalog-indexer/pkg/tracing"
)

// ErrReindexInProgress is returned when a reindex is requested while one is running.
var ErrReindexInProgress = errors.New("reindex already in progress")

// Progress reports how far a reindex has come.
type Progress struct {
	Total      int   `json:"total"`
	Completed  int   `json:"completed"`
	DurationMs int64 `json:"duration_ms"`
}

// Percent returns completion as a percentage. An empty catalog is complete.
func (p Progress) Percent() int {
	if p.Total == 0 {
		return 100
	}
	return p.Completed * 100 / p.Total
}

// ProgressFunc observes reindex progress. Calls are never concurrent.
type ProgressFunc func(Progress)

// Orchestrator rebuilds the index behind an alias without read downtime:
// copy the live contents into a fresh physical index, swap the alias in one
// atomic call, then resync every product against the alias.
type Orchestrator struct {
	admin   engine.IndexAdmin
	catalog repository.CatalogRepository
	sync    *Synchronizer
	alias   string
	logger  *slog.Logger
	now     func() time.Time
	running atomic.Bool
}

// NewOrchestrator creates an orchestrator for the synchronizer's alias.
func NewOrchestrator(admin engine.IndexAdmin, catalog repository.CatalogRepository, s *Synchronizer, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		admin:   admin,
		catalog: catalog,
		sync:    s,
		alias:   s.Index(),
		logger:  logger,
		now:     time.Now,
	}
}

func (o *Orchestrator) physicalName() string {
	return fmt.Sprintf("%s_%d", o.alias, o.now().UnixMilli())
}

// EnsureIndex creates the first physical index and points the alias at it
// when neither the alias nor a legacy index of that name exists.
func (o *Orchestrator) EnsureIndex(ctx context.Context) error {
	current, err := o.admin.ResolveAlias(ctx, o.alias)
	if err != nil {
		return fmt.Errorf("resolve alias %s: %w", o.alias, err)
	}
	if len(current) > 0 {
		return nil
	}
	exists, err := o.admin.IndexExists(ctx, o.alias)
	if err != nil {
		return fmt.Errorf("check index %s: %w", o.alias, err)
	}
	if exists {
		o.logger.WarnContext(ctx, "serving from legacy index without alias, next reindex will migrate it",
			slog.String("index", o.alias))
		return nil
	}

	name := o.physicalName()
	if err := o.admin.CreateIndex(ctx, name); err != nil {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	if err := o.admin.UpdateAliases(ctx, []engine.AliasAction{engine.AddAlias(name, o.alias)}); err != nil {
		_ = o.admin.DeleteIndex(context.WithoutCancel(ctx), name)
		return fmt.Errorf("attach alias %s: %w", o.alias, err)
	}
	o.logger.InfoContext(ctx, "search index created", slog.String("index", name), slog.String("alias", o.alias))
	return nil
}

// Reindex rebuilds the whole index and returns the final progress. progress
// may be nil. Administrative failures are logged and the rebuild continues
// against whatever index currently serves the alias.
func (o *Orchestrator) Reindex(ctx context.Context, rc domain.RequestContext, progress ProgressFunc) (_ Progress, err error) {
	if !o.running.CompareAndSwap(false, true) {
		return Progress{}, ErrReindexInProgress
	}
	defer o.running.Store(false)

	ctx, span := tracer.Start(ctx, "indexer.Reindex")
	span.SetAttributes(attribute.String("alias", o.alias))
	defer span.End()

	start := time.Now()
	defer func() {
		reindexRuns.WithLabelValues(outcome(err)).Inc()
		reindexDuration.Observe(time.Since(start).Seconds())
		tracing.RecordError(span, err)
	}()

	o.swap(ctx)

	deleted, err := o.catalog.ListProductIDs(ctx, true)
	if err != nil {
		return Progress{}, fmt.Errorf("list deleted products: %w", err)
	}
	var errs []error
	if err := o.sync.DeleteProduct(ctx, rc, deleted); err != nil {
		errs = append(errs, err)
	}

	live, err := o.catalog.ListProductIDs(ctx, false)
	if err != nil {
		return Progress{}, fmt.Errorf("list products: %w", err)
	}

	var (
		mu      sync.Mutex
		current = Progress{Total: len(live)}
	)
	reindexProgress.Set(0)
	err = o.sync.syncAll(ctx, rc, live, nil, func(string, error) {
		mu.Lock()
		defer mu.Unlock()
		current.Completed++
		current.DurationMs = time.Since(start).Milliseconds()
		reindexProgress.Set(float64(current.Completed) / float64(current.Total))
		if progress != nil {
			progress(current)
		}
	})
	if err != nil {
		errs = append(errs, err)
	}

	mu.Lock()
	final := current
	mu.Unlock()
	final.DurationMs = time.Since(start).Milliseconds()
	if final.Total == 0 {
		reindexProgress.Set(1)
	}

	o.logger.InfoContext(ctx, "reindex completed",
		slog.String("alias", o.alias),
		slog.Int("products", final.Total),
		slog.Int("deleted", len(deleted)),
		slog.Int64("duration_ms", final.DurationMs),
	)
	return final, errors.Join(errs...)
}

// swap moves the alias onto a freshly populated physical index. It never
// fails: on any error the alias stays where it was and the new index is
// dropped.
func (o *Orchestrator) swap(ctx context.Context) {
	name := o.physicalName()
	if err := o.admin.CreateIndex(ctx, name); err != nil {
		o.logger.WarnContext(ctx, "could not create new index, reindexing in place",
			slog.String("index", name), slog.String("error", err.Error()))
		return
	}

	swapped := false
	defer func() {
		if swapped {
			return
		}
		if err := o.admin.DeleteIndex(context.WithoutCancel(ctx), name); err != nil {
			o.logger.WarnContext(ctx, "could not drop abandoned index",
				slog.String("index", name), slog.String("error", err.Error()))
		}
	}()

	previous, err := o.admin.ResolveAlias(ctx, o.alias)
	if err != nil {
		o.logger.WarnContext(ctx, "could not resolve alias, reindexing in place",
			slog.String("alias", o.alias), slog.String("error", err.Error()))
		return
	}
	legacy := false
	if len(previous) == 0 {
		legacy, err = o.admin.IndexExists(ctx, o.alias)
		if err != nil {
			o.logger.WarnContext(ctx, "could not check for legacy index, reindexing in place",
				slog.String("index", o.alias), slog.String("error", err.Error()))
			return
		}
	}

	if len(previous) > 0 || legacy {
		n, err := o.admin.CopyDocuments(ctx, o.alias, name)
		if err != nil {
			o.logger.WarnContext(ctx, "could not copy live documents, reindexing in place",
				slog.String("from", o.alias), slog.String("to", name), slog.String("error", err.Error()))
			return
		}
		o.logger.InfoContext(ctx, "live documents copied", slog.String("to", name), slog.Int("documents", n))
	}

	actions := make([]engine.AliasAction, 0, len(previous)+2)
	for _, idx := range previous {
		actions = append(actions, engine.RemoveAlias(idx, o.alias))
	}
	if legacy {
		actions = append(actions, engine.RemoveIndex(o.alias))
	}
	actions = append(actions, engine.AddAlias(name, o.alias))
	if err := o.admin.UpdateAliases(ctx, actions); err != nil {
		o.logger.WarnContext(ctx, "could not swap alias, reindexing in place",
			slog.String("alias", o.alias), slog.String("error", err.Error()))
		return
	}
	swapped = true
	o.logger.InfoContext(ctx, "alias swapped", slog.String("alias", o.alias), slog.String("index", name),
		slog.Any("previous", previous), slog.Bool("legacy", legacy))

	for _, idx := range previous {
		if err := o.admin.DeleteIndex(ctx, idx); err != nil {
			o.logger.WarnContext(ctx, "could not delete previous index",
				slog.String("index", idx), slog.String("error", err.Error()))
		}
	}
}
