// Package job defines the indexing jobs, their wire envelope, and the queues
// that run them one at a time.
package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/utafrali/catalog-indexer/internal/domain"
)

// Type discriminates job payloads on the wire.
type Type string

const (
	TypeReindex                  Type = "reindex"
	TypeUpdateProduct            Type = "update-product"
	TypeUpdateVariants           Type = "update-variants"
	TypeDeleteProduct            Type = "delete-product"
	TypeDeleteVariant            Type = "delete-variant"
	TypeUpdateVariantsByID       Type = "update-variants-by-id"
	TypeUpdateAsset              Type = "update-asset"
	TypeDeleteAsset              Type = "delete-asset"
	TypeAssignProductToChannel   Type = "assign-product-to-channel"
	TypeRemoveProductFromChannel Type = "remove-product-from-channel"
	TypeAssignVariantToChannel   Type = "assign-variant-to-channel"
	TypeRemoveVariantFromChannel Type = "remove-variant-from-channel"
)

// Job is one unit of indexing work. The set of implementations is closed;
// Accept dispatches to the matching Handler method.
type Job interface {
	Type() Type
	Context() domain.RequestContext
	Accept(ctx context.Context, h Handler, progress Progress) error
	isJob()
}

// Handler has one method per job kind.
type Handler interface {
	Reindex(ctx context.Context, j ReindexJob, progress Progress) error
	UpdateProduct(ctx context.Context, j UpdateProductJob) error
	UpdateVariants(ctx context.Context, j UpdateVariantsJob) error
	DeleteProduct(ctx context.Context, j DeleteProductJob) error
	DeleteVariant(ctx context.Context, j DeleteVariantJob) error
	UpdateVariantsByID(ctx context.Context, j UpdateVariantsByIDJob) error
	UpdateAsset(ctx context.Context, j UpdateAssetJob) error
	DeleteAsset(ctx context.Context, j DeleteAssetJob) error
	AssignProductToChannel(ctx context.Context, j AssignProductToChannelJob) error
	RemoveProductFromChannel(ctx context.Context, j RemoveProductFromChannelJob) error
	AssignVariantToChannel(ctx context.Context, j AssignVariantToChannelJob) error
	RemoveVariantFromChannel(ctx context.Context, j RemoveVariantFromChannelJob) error
}

// ReindexJob rebuilds the whole index.
type ReindexJob struct {
	Ctx domain.RequestContext `json:"ctx"`
}

func (ReindexJob) Type() Type                       { return TypeReindex }
func (j ReindexJob) Context() domain.RequestContext { return j.Ctx }
func (ReindexJob) isJob()                           {}
func (j ReindexJob) Accept(ctx context.Context, h Handler, p Progress) error {
	return h.Reindex(ctx, j, p)
}

type UpdateProductJob struct {
	Ctx       domain.RequestContext `json:"ctx"`
	ProductID string                `json:"product_id"`
}

func (UpdateProductJob) Type() Type                       { return TypeUpdateProduct }
func (j UpdateProductJob) Context() domain.RequestContext { return j.Ctx }
func (UpdateProductJob) isJob()                           {}
func (j UpdateProductJob) Accept(ctx context.Context, h Handler, _ Progress) error {
	return h.UpdateProduct(ctx, j)
}

type UpdateVariantsJob struct {
	Ctx        domain.RequestContext `json:"ctx"`
	VariantIDs []string              `json:"variant_ids"`
}

func (UpdateVariantsJob) Type() Type                       { return TypeUpdateVariants }
func (j UpdateVariantsJob) Context() domain.RequestContext { return j.Ctx }
func (UpdateVariantsJob) isJob()                           {}
func (j UpdateVariantsJob) Accept(ctx context.Context, h Handler, _ Progress) error {
	return h.UpdateVariants(ctx, j)
}

type DeleteProductJob struct {
	Ctx       domain.RequestContext `json:"ctx"`
	ProductID string                `json:"product_id"`
}

func (DeleteProductJob) Type() Type                       { return TypeDeleteProduct }
func (j DeleteProductJob) Context() domain.RequestContext { return j.Ctx }
func (DeleteProductJob) isJob()                           {}
func (j DeleteProductJob) Accept(ctx context.Context, h Handler, _ Progress) error {
	return h.DeleteProduct(ctx, j)
}

type DeleteVariantJob struct {
	Ctx        domain.RequestContext `json:"ctx"`
	VariantIDs []string              `json:"variant_ids"`
}

func (DeleteVariantJob) Type() Type                       { return TypeDeleteVariant }
func (j DeleteVariantJob) Context() domain.RequestContext { return j.Ctx }
func (DeleteVariantJob) isJob()                           {}
func (j DeleteVariantJob) Accept(ctx context.Context, h Handler, _ Progress) error {
	return h.DeleteVariant(ctx, j)
}

// UpdateVariantsByIDJob carries the coalesced variant ids of collection changes.
type UpdateVariantsByIDJob struct {
	Ctx domain.RequestContext `json:"ctx"`
	IDs []string              `json:"ids"`
}

func (UpdateVariantsByIDJob) Type() Type                       { return TypeUpdateVariantsByID }
func (j UpdateVariantsByIDJob) Context() domain.RequestContext { return j.Ctx }
func (UpdateVariantsByIDJob) isJob()                           {}
func (j UpdateVariantsByIDJob) Accept(ctx context.Context, h Handler, _ Progress) error {
	return h.UpdateVariantsByID(ctx, j)
}

type UpdateAssetJob struct {
	Ctx   domain.RequestContext `json:"ctx"`
	Asset domain.Asset          `json:"asset"`
}

func (UpdateAssetJob) Type() Type                       { return TypeUpdateAsset }
func (j UpdateAssetJob) Context() domain.RequestContext { return j.Ctx }
func (UpdateAssetJob) isJob()                           {}
func (j UpdateAssetJob) Accept(ctx context.Context, h Handler, _ Progress) error {
	return h.UpdateAsset(ctx, j)
}

type DeleteAssetJob struct {
	Ctx     domain.RequestContext `json:"ctx"`
	AssetID string                `json:"asset_id"`
}

func (DeleteAssetJob) Type() Type                       { return TypeDeleteAsset }
func (j DeleteAssetJob) Context() domain.RequestContext { return j.Ctx }
func (DeleteAssetJob) isJob()                           {}
func (j DeleteAssetJob) Accept(ctx context.Context, h Handler, _ Progress) error {
	return h.DeleteAsset(ctx, j)
}

type AssignProductToChannelJob struct {
	Ctx       domain.RequestContext `json:"ctx"`
	ProductID string                `json:"product_id"`
	ChannelID string                `json:"channel_id"`
}

func (AssignProductToChannelJob) Type() Type                       { return TypeAssignProductToChannel }
func (j AssignProductToChannelJob) Context() domain.RequestContext { return j.Ctx }
func (AssignProductToChannelJob) isJob()                           {}
func (j AssignProductToChannelJob) Accept(ctx context.Context, h Handler, _ Progress) error {
	return h.AssignProductToChannel(ctx, j)
}

type RemoveProductFromChannelJob struct {
	Ctx       domain.RequestContext `json:"ctx"`
	ProductID string                `json:"product_id"`
	ChannelID string                `json:"channel_id"`
}

func (RemoveProductFromChannelJob) Type() Type                       { return TypeRemoveProductFromChannel }
func (j RemoveProductFromChannelJob) Context() domain.RequestContext { return j.Ctx }
func (RemoveProductFromChannelJob) isJob()                           {}
func (j RemoveProductFromChannelJob) Accept(ctx context.Context, h Handler, _ Progress) error {
	return h.RemoveProductFromChannel(ctx, j)
}

type AssignVariantToChannelJob struct {
	Ctx              domain.RequestContext `json:"ctx"`
	ProductVariantID string                `json:"product_variant_id"`
	ChannelID        string                `json:"channel_id"`
}

func (AssignVariantToChannelJob) Type() Type                       { return TypeAssignVariantToChannel }
func (j AssignVariantToChannelJob) Context() domain.RequestContext { return j.Ctx }
func (AssignVariantToChannelJob) isJob()                           {}
func (j AssignVariantToChannelJob) Accept(ctx context.Context, h Handler, _ Progress) error {
	return h.AssignVariantToChannel(ctx, j)
}

type RemoveVariantFromChannelJob struct {
	Ctx              domain.RequestContext `json:"ctx"`
	ProductVariantID string                `json:"product_variant_id"`
	ChannelID        string                `json:"channel_id"`
}

func (RemoveVariantFromChannelJob) Type() Type                       { return TypeRemoveVariantFromChannel }
func (j RemoveVariantFromChannelJob) Context() domain.RequestContext { return j.Ctx }
func (RemoveVariantFromChannelJob) isJob()                           {}
func (j RemoveVariantFromChannelJob) Accept(ctx context.Context, h Handler, _ Progress) error {
	return h.RemoveVariantFromChannel(ctx, j)
}

var decoders = map[Type]func([]byte) (Job, error){
	TypeReindex:                  decodeAs[ReindexJob],
	TypeUpdateProduct:            decodeAs[UpdateProductJob],
	TypeUpdateVariants:           decodeAs[UpdateVariantsJob],
	TypeDeleteProduct:            decodeAs[DeleteProductJob],
	TypeDeleteVariant:            decodeAs[DeleteVariantJob],
	TypeUpdateVariantsByID:       decodeAs[UpdateVariantsByIDJob],
	TypeUpdateAsset:              decodeAs[UpdateAssetJob],
	TypeDeleteAsset:              decodeAs[DeleteAssetJob],
	TypeAssignProductToChannel:   decodeAs[AssignProductToChannelJob],
	TypeRemoveProductFromChannel: decodeAs[RemoveProductFromChannelJob],
	TypeAssignVariantToChannel:   decodeAs[AssignVariantToChannelJob],
	TypeRemoveVariantFromChannel: decodeAs[RemoveVariantFromChannelJob],
}

func decodeAs[T Job](data []byte) (Job, error) {
	var j T
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, err
	}
	return j, nil
}

// Encode renders j as a flat JSON object with a "type" discriminator next to
// the job's own fields.
func Encode(j Job) ([]byte, error) {
	body, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("encode %s job: %w", j.Type(), err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s job: %w", j.Type(), err)
	}
	fields["type"], _ = json.Marshal(j.Type())
	return json.Marshal(fields)
}

// Decode parses an envelope produced by Encode.
func Decode(data []byte) (Job, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode job envelope: %w", err)
	}
	decode, ok := decoders[head.Type]
	if !ok {
		return nil, fmt.Errorf("decode job envelope: unknown type %q", head.Type)
	}
	j, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s job: %w", head.Type, err)
	}
	return j, nil
}
