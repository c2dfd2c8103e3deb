package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/catalog-indexer/internal/domain"
	"github.com/utafrali/catalog-indexer/internal/indexer"
	apperrors "github.com/utafrali/catalog-indexer/pkg/errors"
	"github.com/utafrali/catalog-indexer/pkg/logger"
)

// Synchronizer is the incremental indexing surface the processor drives.
type Synchronizer interface {
	SyncProducts(ctx context.Context, rc domain.RequestContext, productIDs []string) error
	SyncVariants(ctx context.Context, rc domain.RequestContext, variantIDs []string) error
	DeleteProduct(ctx context.Context, rc domain.RequestContext, productIDs []string) error
	DeleteVariants(ctx context.Context, rc domain.RequestContext, variantIDs []string) error
	UpdateAsset(ctx context.Context, asset domain.Asset) error
	DeleteAsset(ctx context.Context, assetID string) error
	AssignProductToChannel(ctx context.Context, rc domain.RequestContext, productID, channelID string) error
	RemoveProductFromChannel(ctx context.Context, rc domain.RequestContext, productID, channelID string) error
	AssignVariantToChannel(ctx context.Context, rc domain.RequestContext, variantID, channelID string) error
	RemoveVariantFromChannel(ctx context.Context, rc domain.RequestContext, variantID, channelID string) error
}

// Reindexer rebuilds the whole index.
type Reindexer interface {
	Reindex(ctx context.Context, rc domain.RequestContext, progress indexer.ProgressFunc) (indexer.Progress, error)
}

// Processor executes jobs against the synchronizer and orchestrator.
type Processor struct {
	sync      Synchronizer
	reindexer Reindexer
	logger    *slog.Logger
}

var _ Handler = (*Processor)(nil)

// NewProcessor creates a processor.
func NewProcessor(s Synchronizer, r Reindexer, logger *slog.Logger) *Processor {
	return &Processor{sync: s, reindexer: r, logger: logger}
}

// Process is the ProcessFunc handed to a Queue.
func (p *Processor) Process(ctx context.Context, rec *Record, progress Progress) error {
	if rec.Job == nil {
		return apperrors.Permanent(fmt.Errorf("job %s has no payload", rec.ID))
	}

	start := time.Now()
	err := rec.Job.Accept(ctx, p, progress)

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	jobsProcessed.WithLabelValues(string(rec.Type), outcome).Inc()
	jobDuration.WithLabelValues(string(rec.Type)).Observe(time.Since(start).Seconds())

	if err == nil {
		logger.WithContext(ctx, p.logger).InfoContext(ctx, "job processed",
			slog.Int("attempt", rec.Attempts),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	}
	return err
}

func (p *Processor) Reindex(ctx context.Context, j ReindexJob, progress Progress) error {
	var report indexer.ProgressFunc
	if progress != nil {
		report = func(pr indexer.Progress) { progress.SetProgress(pr.Percent()) }
	}
	final, err := p.reindexer.Reindex(ctx, j.Ctx, report)
	if errors.Is(err, indexer.ErrReindexInProgress) {
		logger.WithContext(ctx, p.logger).InfoContext(ctx, "reindex already running, skipping")
		return nil
	}
	if progress != nil {
		progress.SetProgress(final.Percent())
	}
	return err
}

func (p *Processor) UpdateProduct(ctx context.Context, j UpdateProductJob) error {
	return p.sync.SyncProducts(ctx, j.Ctx, []string{j.ProductID})
}

func (p *Processor) UpdateVariants(ctx context.Context, j UpdateVariantsJob) error {
	return p.sync.SyncVariants(ctx, j.Ctx, j.VariantIDs)
}

func (p *Processor) DeleteProduct(ctx context.Context, j DeleteProductJob) error {
	return p.sync.DeleteProduct(ctx, j.Ctx, []string{j.ProductID})
}

func (p *Processor) DeleteVariant(ctx context.Context, j DeleteVariantJob) error {
	return p.sync.DeleteVariants(ctx, j.Ctx, j.VariantIDs)
}

func (p *Processor) UpdateVariantsByID(ctx context.Context, j UpdateVariantsByIDJob) error {
	return p.sync.SyncVariants(ctx, j.Ctx, j.IDs)
}

func (p *Processor) UpdateAsset(ctx context.Context, j UpdateAssetJob) error {
	return p.sync.UpdateAsset(ctx, j.Asset)
}

func (p *Processor) DeleteAsset(ctx context.Context, j DeleteAssetJob) error {
	return p.sync.DeleteAsset(ctx, j.AssetID)
}

func (p *Processor) AssignProductToChannel(ctx context.Context, j AssignProductToChannelJob) error {
	return p.sync.AssignProductToChannel(ctx, j.Ctx, j.ProductID, j.ChannelID)
}

func (p *Processor) RemoveProductFromChannel(ctx context.Context, j RemoveProductFromChannelJob) error {
	return p.sync.RemoveProductFromChannel(ctx, j.Ctx, j.ProductID, j.ChannelID)
}

func (p *Processor) AssignVariantToChannel(ctx context.Context, j AssignVariantToChannelJob) error {
	return p.sync.AssignVariantToChannel(ctx, j.Ctx, j.ProductVariantID, j.ChannelID)
}

func (p *Processor) RemoveVariantFromChannel(ctx context.Context, j RemoveVariantFromChannelJob) error {
	return p.sync.RemoveVariantFromChannel(ctx, j.Ctx, j.ProductVariantID, j.ChannelID)
}
