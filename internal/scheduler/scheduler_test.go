package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalog-indexer/internal/domain"
	"github.com/utafrali/catalog-indexer/internal/job"
)

var rc = domain.RequestContext{ChannelID: "C1", LanguageCode: "en"}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_RejectsInvalidSpec(t *testing.T) {
	_, err := New(job.NewMemoryQueue(job.Options{}), "every tuesday", rc, discardLogger())
	assert.ErrorContains(t, err, "invalid reindex schedule")
}

func TestTrigger_SubmitsReindexJob(t *testing.T) {
	q := job.NewMemoryQueue(job.Options{})
	s, err := New(q, "@daily", rc, discardLogger())
	require.NoError(t, err)

	rec, err := s.Trigger(context.Background())
	require.NoError(t, err)

	stored, err := q.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ReindexJob{Ctx: rc}, stored.Job)
	assert.Equal(t, job.StateWaiting, stored.State)
}

func TestTrigger_QueueClosed(t *testing.T) {
	q := job.NewMemoryQueue(job.Options{})
	require.NoError(t, q.Close())
	s, err := New(q, "@daily", rc, discardLogger())
	require.NoError(t, err)

	_, err = s.Trigger(context.Background())
	assert.True(t, errors.Is(err, job.ErrClosed))
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	q := job.NewMemoryQueue(job.Options{})
	s, err := New(q, "@every 1s", rc, discardLogger())
	require.NoError(t, err)
	assert.True(t, s.Next().IsZero())

	s.Start()
	defer s.Stop()
	assert.False(t, s.Next().IsZero())

	require.Eventually(t, func() bool { return q.Pending() >= 1 }, 3*time.Second, 50*time.Millisecond)
}
