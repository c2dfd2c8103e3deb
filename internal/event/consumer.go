// Package event turns catalog domain events from Kafka into indexing jobs.
package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/catalog-indexer/internal/domain"
	"github.com/utafrali/catalog-indexer/internal/job"
	pkgkafka "github.com/utafrali/catalog-indexer/pkg/kafka"
)

// Kafka topics consumed by the indexer. Event types equal their topic names.
const (
	TopicProductCreated         = "ecommerce.product.created"
	TopicProductUpdated         = "ecommerce.product.updated"
	TopicProductDeleted         = "ecommerce.product.deleted"
	TopicVariantCreated         = "ecommerce.variant.created"
	TopicVariantUpdated         = "ecommerce.variant.updated"
	TopicVariantDeleted         = "ecommerce.variant.deleted"
	TopicAssetUpdated           = "ecommerce.asset.updated"
	TopicAssetDeleted           = "ecommerce.asset.deleted"
	TopicProductChannelAssigned = "ecommerce.product.channel_assigned"
	TopicProductChannelRemoved  = "ecommerce.product.channel_removed"
	TopicVariantChannelAssigned = "ecommerce.variant.channel_assigned"
	TopicVariantChannelRemoved  = "ecommerce.variant.channel_removed"
	TopicCollectionModified     = "ecommerce.collection.modified"
	TopicTaxRateModified        = "ecommerce.tax_rate.modified"
)

// Topics lists every topic the consumer handles.
func Topics() []string {
	return []string{
		TopicProductCreated, TopicProductUpdated, TopicProductDeleted,
		TopicVariantCreated, TopicVariantUpdated, TopicVariantDeleted,
		TopicAssetUpdated, TopicAssetDeleted,
		TopicProductChannelAssigned, TopicProductChannelRemoved,
		TopicVariantChannelAssigned, TopicVariantChannelRemoved,
		TopicCollectionModified, TopicTaxRateModified,
	}
}

// Metadata keys carrying the request context of the originating change.
const (
	MetadataChannelID    = "channel_id"
	MetadataLanguageCode = "language_code"
)

var jobsSubmitted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "indexer_event_jobs_submitted_total",
		Help: "Total number of jobs submitted from domain events, by event and job type.",
	},
	[]string{"event_type", "job_type"},
)

// ProductEventData is the payload of product created/updated/deleted events.
type ProductEventData struct {
	ID string `json:"id"`
}

// VariantEventData is the payload of variant created/updated/deleted events.
type VariantEventData struct {
	ProductID  string   `json:"product_id"`
	VariantIDs []string `json:"variant_ids"`
}

// AssetEventData is the payload of asset updated/deleted events.
type AssetEventData struct {
	ID         string             `json:"id"`
	Preview    string             `json:"preview"`
	FocalPoint *domain.FocalPoint `json:"focal_point,omitempty"`
}

// ChannelAssignmentData is the payload of channel assignment events. ID is a
// product or variant id depending on the topic.
type ChannelAssignmentData struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

// CollectionModifiedData lists the variants whose collection membership changed.
type CollectionModifiedData struct {
	CollectionID string   `json:"collection_id"`
	VariantIDs   []string `json:"product_variant_ids"`
}

// TaxRateModifiedData is the payload of tax rate events.
type TaxRateModifiedData struct {
	ID     string `json:"id"`
	ZoneID string `json:"zone_id"`
}

// ChannelLookup finds channels that price in a tax zone by default.
type ChannelLookup interface {
	ChannelsByDefaultTaxZone(ctx context.Context, zoneID string) ([]domain.Channel, error)
}

// Consumer translates each event into exactly one job submission.
type Consumer struct {
	queue     job.Queue
	channels  ChannelLookup
	debouncer *CollectionDebouncer
	defaults  domain.RequestContext
	logger    *slog.Logger
}

// NewConsumer creates a consumer. defaults fills the request context of events
// that carry none.
func NewConsumer(queue job.Queue, channels ChannelLookup, debouncer *CollectionDebouncer, defaults domain.RequestContext, logger *slog.Logger) *Consumer {
	return &Consumer{
		queue:     queue,
		channels:  channels,
		debouncer: debouncer,
		defaults:  defaults,
		logger:    logger,
	}
}

// Handle processes a Kafka event based on its type.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	rc := c.requestContext(event)

	switch event.EventType {
	case TopicProductCreated, TopicProductUpdated:
		var data ProductEventData
		if err := event.Decode(&data); err != nil {
			return err
		}
		return c.submit(ctx, event, job.UpdateProductJob{Ctx: rc, ProductID: data.ID})
	case TopicProductDeleted:
		var data ProductEventData
		if err := event.Decode(&data); err != nil {
			return err
		}
		return c.submit(ctx, event, job.DeleteProductJob{Ctx: rc, ProductID: data.ID})
	case TopicVariantCreated, TopicVariantUpdated:
		var data VariantEventData
		if err := event.Decode(&data); err != nil {
			return err
		}
		return c.submit(ctx, event, job.UpdateVariantsJob{Ctx: rc, VariantIDs: data.VariantIDs})
	case TopicVariantDeleted:
		var data VariantEventData
		if err := event.Decode(&data); err != nil {
			return err
		}
		return c.submit(ctx, event, job.DeleteVariantJob{Ctx: rc, VariantIDs: data.VariantIDs})
	case TopicAssetUpdated:
		var data AssetEventData
		if err := event.Decode(&data); err != nil {
			return err
		}
		asset := domain.Asset{ID: data.ID, Preview: data.Preview, FocalPoint: data.FocalPoint}
		return c.submit(ctx, event, job.UpdateAssetJob{Ctx: rc, Asset: asset})
	case TopicAssetDeleted:
		var data AssetEventData
		if err := event.Decode(&data); err != nil {
			return err
		}
		return c.submit(ctx, event, job.DeleteAssetJob{Ctx: rc, AssetID: data.ID})
	case TopicProductChannelAssigned, TopicProductChannelRemoved,
		TopicVariantChannelAssigned, TopicVariantChannelRemoved:
		return c.handleChannelAssignment(ctx, event, rc)
	case TopicCollectionModified:
		var data CollectionModifiedData
		if err := event.Decode(&data); err != nil {
			return err
		}
		if len(data.VariantIDs) > 0 {
			c.debouncer.Add(rc, data.VariantIDs)
		}
		return nil
	case TopicTaxRateModified:
		return c.handleTaxRateModified(ctx, event, rc)
	default:
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

func (c *Consumer) handleChannelAssignment(ctx context.Context, event *pkgkafka.Event, rc domain.RequestContext) error {
	var data ChannelAssignmentData
	if err := event.Decode(&data); err != nil {
		return err
	}

	var j job.Job
	switch event.EventType {
	case TopicProductChannelAssigned:
		j = job.AssignProductToChannelJob{Ctx: rc, ProductID: data.ID, ChannelID: data.ChannelID}
	case TopicProductChannelRemoved:
		j = job.RemoveProductFromChannelJob{Ctx: rc, ProductID: data.ID, ChannelID: data.ChannelID}
	case TopicVariantChannelAssigned:
		j = job.AssignVariantToChannelJob{Ctx: rc, ProductVariantID: data.ID, ChannelID: data.ChannelID}
	default:
		j = job.RemoveVariantFromChannelJob{Ctx: rc, ProductVariantID: data.ID, ChannelID: data.ChannelID}
	}
	return c.submit(ctx, event, j)
}

// handleTaxRateModified reindexes only when the rate's zone is some
// channel's default tax zone, since only those prices are indexed.
func (c *Consumer) handleTaxRateModified(ctx context.Context, event *pkgkafka.Event, rc domain.RequestContext) error {
	var data TaxRateModifiedData
	if err := event.Decode(&data); err != nil {
		return err
	}

	channels, err := c.channels.ChannelsByDefaultTaxZone(ctx, data.ZoneID)
	if err != nil {
		return fmt.Errorf("find channels for tax zone %s: %w", data.ZoneID, err)
	}
	if len(channels) == 0 {
		c.logger.DebugContext(ctx, "tax rate change outside any default tax zone ignored",
			slog.String("tax_rate_id", data.ID),
			slog.String("zone_id", data.ZoneID),
		)
		return nil
	}
	return c.submit(ctx, event, job.ReindexJob{Ctx: rc})
}

func (c *Consumer) submit(ctx context.Context, event *pkgkafka.Event, j job.Job) error {
	rec, err := c.queue.Add(ctx, j)
	if err != nil {
		return fmt.Errorf("submit %s job for %s: %w", j.Type(), event.EventType, err)
	}
	jobsSubmitted.WithLabelValues(event.EventType, string(j.Type())).Inc()
	c.logger.InfoContext(ctx, "job submitted from event",
		slog.String("event_type", event.EventType),
		slog.String("event_id", event.EventID),
		slog.String("job_id", rec.ID),
		slog.String("job_type", string(j.Type())),
	)
	return nil
}

func (c *Consumer) requestContext(event *pkgkafka.Event) domain.RequestContext {
	rc := c.defaults
	if v := event.Meta(MetadataChannelID); v != "" {
		rc.ChannelID = v
	}
	if v := event.Meta(MetadataLanguageCode); v != "" {
		rc.LanguageCode = v
	}
	return rc
}
