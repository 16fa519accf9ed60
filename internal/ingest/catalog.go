package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	product "github.com/angelmondragon/inventory-backend/internal/products"
	"github.com/angelmondragon/inventory-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/inventory-backend/pkg/errors"
	"github.com/angelmondragon/inventory-backend/pkg/logger"
)

// CatalogEvent is the upstream product change. The upstream catalog also
// emits skuCode and thumbnailUrl, which are accepted as aliases.
type CatalogEvent struct {
	Action       string `json:"action" validate:"required"`
	SKU          string `json:"sku" validate:"required"`
	SKUCode      string `json:"skuCode,omitempty"`
	Name         string `json:"name"`
	Thumbnail    string `json:"thumbnail"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

func (e *CatalogEvent) normalize() {
	e.Action = strings.TrimSpace(e.Action)
	if strings.TrimSpace(e.SKU) == "" {
		e.SKU = e.SKUCode
	}
	e.SKU = strings.TrimSpace(e.SKU)
	if strings.TrimSpace(e.Thumbnail) == "" {
		e.Thumbnail = e.ThumbnailURL
	}
}

// CatalogHandler keeps products and their ledgers in step with the catalog.
type CatalogHandler struct {
	catalog  product.CatalogService
	logg     *logger.Logger
	validate *validator.Validate
	actions  map[enums.CatalogAction]func(ctx context.Context, event CatalogEvent) error
}

func NewCatalogHandler(catalog product.CatalogService, logg *logger.Logger) (*CatalogHandler, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	h := &CatalogHandler{
		catalog:  catalog,
		logg:     logg,
		validate: validator.New(),
	}
	h.actions = map[enums.CatalogAction]func(ctx context.Context, event CatalogEvent) error{
		enums.CatalogActionCreate: h.create,
		enums.CatalogActionUpdate: h.update,
		enums.CatalogActionDelete: h.delete,
	}
	return h, nil
}

func (h *CatalogHandler) Handle(ctx context.Context, msg Message) error {
	var event CatalogEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDeserialization, err, "decode catalog event")
	}
	event.normalize()
	if err := h.validate.Struct(event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDeserialization, err, "invalid catalog event")
	}

	ctx = h.logg.WithFields(h.logg.WithSKU(ctx, event.SKU), map[string]any{"action": event.Action})
	action, err := enums.ParseCatalogAction(event.Action)
	if err != nil {
		h.logg.Warn(ctx, "unknown catalog action ignored")
		return pkgerrors.Wrap(pkgerrors.CodeUnknownRoute, err, "unknown catalog action")
	}
	return h.actions[action](ctx, event)
}

func (h *CatalogHandler) create(ctx context.Context, event CatalogEvent) error {
	_, err := h.catalog.CreateProduct(ctx, product.CatalogInput{
		SKU:          event.SKU,
		Name:         event.Name,
		ThumbnailURL: event.Thumbnail,
	})
	return err
}

func (h *CatalogHandler) update(ctx context.Context, event CatalogEvent) error {
	_, err := h.catalog.UpdateProduct(ctx, product.CatalogInput{
		SKU:          event.SKU,
		Name:         event.Name,
		ThumbnailURL: event.Thumbnail,
	})
	return err
}

func (h *CatalogHandler) delete(ctx context.Context, event CatalogEvent) error {
	return h.catalog.DeleteProduct(ctx, event.SKU)
}
