// Package scheduler submits periodic full reindex jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/utafrali/catalog-indexer/internal/domain"
	"github.com/utafrali/catalog-indexer/internal/job"
)

// Scheduler enqueues a ReindexJob on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	queue  job.Queue
	rc     domain.RequestContext
	logger *slog.Logger
	entry  cron.EntryID
}

// New parses spec, a standard five-field cron expression or a descriptor
// such as "@daily", in UTC.
func New(queue job.Queue, spec string, rc domain.RequestContext, logger *slog.Logger) (*Scheduler, error) {
	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		queue:  queue,
		rc:     rc,
		logger: logger,
	}

	id, err := s.cron.AddFunc(spec, func() {
		if _, err := s.Trigger(context.Background()); err != nil {
			s.logger.Error("scheduled reindex not submitted", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid reindex schedule %q: %w", spec, err)
	}
	s.entry = id
	return s, nil
}

// Trigger submits a reindex job now.
func (s *Scheduler) Trigger(ctx context.Context) (*job.Record, error) {
	rec, err := s.queue.Add(ctx, job.ReindexJob{Ctx: s.rc})
	if err != nil {
		return nil, fmt.Errorf("submit scheduled reindex: %w", err)
	}
	s.logger.InfoContext(ctx, "scheduled reindex submitted", slog.String("job_id", rec.ID))
	return rec, nil
}

// Start runs the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("reindex scheduler started", slog.Time("next_run", s.Next()))
}

// Stop halts the schedule. The returned context is done once a running
// submission finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Next returns the next activation time, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, slog.String("error", err.Error()))...)
}
