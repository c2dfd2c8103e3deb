package event

import (
	"context"
	"log/slog"

	"github.com/utafrali/catalog-indexer/internal/domain"
	"github.com/utafrali/catalog-indexer/internal/indexer"
	"github.com/utafrali/catalog-indexer/internal/job"
	pkgkafka "github.com/utafrali/catalog-indexer/pkg/kafka"
	"github.com/utafrali/catalog-indexer/pkg/logger"
)

// TopicIndexRebuilt carries a notification after every completed reindex.
const TopicIndexRebuilt = "ecommerce.search_index.rebuilt"

const eventSource = "catalog-indexer"

// Publisher sends an event to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// IndexRebuiltData is the payload of a rebuilt notification.
type IndexRebuiltData struct {
	Alias      string `json:"alias"`
	ChannelID  string `json:"channel_id"`
	Total      int    `json:"total"`
	Completed  int    `json:"completed"`
	DurationMs int64  `json:"duration_ms"`
}

// AnnouncingReindexer publishes TopicIndexRebuilt after each successful
// reindex of the wrapped reindexer. Publish failures are logged and do not
// fail the reindex.
type AnnouncingReindexer struct {
	inner  job.Reindexer
	pub    Publisher
	alias  string
	logger *slog.Logger
}

var _ job.Reindexer = (*AnnouncingReindexer)(nil)

// NewAnnouncingReindexer wraps inner.
func NewAnnouncingReindexer(inner job.Reindexer, pub Publisher, alias string, logger *slog.Logger) *AnnouncingReindexer {
	return &AnnouncingReindexer{inner: inner, pub: pub, alias: alias, logger: logger}
}

// Reindex runs the wrapped reindex and announces its outcome.
func (r *AnnouncingReindexer) Reindex(ctx context.Context, rc domain.RequestContext, progress indexer.ProgressFunc) (indexer.Progress, error) {
	p, err := r.inner.Reindex(ctx, rc, progress)
	if err != nil {
		return p, err
	}

	data := IndexRebuiltData{
		Alias:      r.alias,
		ChannelID:  rc.ChannelID,
		Total:      p.Total,
		Completed:  p.Completed,
		DurationMs: p.DurationMs,
	}
	evt, err := pkgkafka.NewEvent(TopicIndexRebuilt, r.alias, "search_index", eventSource, data,
		pkgkafka.WithCorrelationID(logger.CorrelationIDFromContext(ctx)),
		pkgkafka.WithMetadata(MetadataChannelID, rc.ChannelID),
		pkgkafka.WithMetadata(MetadataLanguageCode, rc.LanguageCode),
	)
	if err == nil {
		err = r.pub.Publish(ctx, TopicIndexRebuilt, evt)
	}
	if err != nil {
		r.logger.WarnContext(ctx, "failed to announce rebuilt index",
			slog.String("alias", r.alias),
			slog.String("error", err.Error()),
		)
	}
	return p, nil
}
