package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalog-indexer/internal/domain"
	"github.com/utafrali/catalog-indexer/internal/indexer"
	pkgkafka "github.com/utafrali/catalog-indexer/pkg/kafka"
)

type stubReindexer struct {
	progress indexer.Progress
	err      error
}

func (s stubReindexer) Reindex(_ context.Context, _ domain.RequestContext, progress indexer.ProgressFunc) (indexer.Progress, error) {
	if progress != nil {
		progress(s.progress)
	}
	return s.progress, s.err
}

type recordingPublisher struct {
	topics []string
	events []*pkgkafka.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, e *pkgkafka.Event) error {
	p.topics = append(p.topics, topic)
	p.events = append(p.events, e)
	return p.err
}

func TestAnnouncingReindexer_PublishesOnSuccess(t *testing.T) {
	pub := &recordingPublisher{}
	want := indexer.Progress{Total: 4, Completed: 4, DurationMs: 120}
	r := NewAnnouncingReindexer(stubReindexer{progress: want}, pub, "catalog", discardLogger())

	var reported []indexer.Progress
	got, err := r.Reindex(context.Background(), defaults, func(p indexer.Progress) { reported = append(reported, p) })

	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, []indexer.Progress{want}, reported)
	require.Equal(t, []string{TopicIndexRebuilt}, pub.topics)

	evt := pub.events[0]
	assert.Equal(t, TopicIndexRebuilt, evt.EventType)
	assert.Equal(t, "catalog", evt.AggregateID)
	assert.Equal(t, "default", evt.Meta(MetadataChannelID))
	assert.Equal(t, "en", evt.Meta(MetadataLanguageCode))

	var data IndexRebuiltData
	require.NoError(t, json.Unmarshal(evt.Data, &data))
	assert.Equal(t, IndexRebuiltData{Alias: "catalog", ChannelID: "default", Total: 4, Completed: 4, DurationMs: 120}, data)
}

func TestAnnouncingReindexer_FailedReindexIsNotAnnounced(t *testing.T) {
	pub := &recordingPublisher{}
	r := NewAnnouncingReindexer(stubReindexer{err: indexer.ErrReindexInProgress}, pub, "catalog", discardLogger())

	_, err := r.Reindex(context.Background(), defaults, nil)

	assert.ErrorIs(t, err, indexer.ErrReindexInProgress)
	assert.Empty(t, pub.topics)
}

func TestAnnouncingReindexer_PublishFailureIsIgnored(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	r := NewAnnouncingReindexer(stubReindexer{progress: indexer.Progress{Total: 1, Completed: 1}}, pub, "catalog", discardLogger())

	got, err := r.Reindex(context.Background(), defaults, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, got.Completed)
	assert.Len(t, pub.topics, 1)
}
