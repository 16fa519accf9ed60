package ledger

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/inventory-backend/pkg/db/models"
)

// Line is one (sku, quantity) pair of a reserve or stock check request.
type Line struct {
	SKU      string `json:"sku" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

// Snapshot is the read model returned by the administrative operations.
type Snapshot struct {
	ID               uuid.UUID `json:"id"`
	ProductID        uuid.UUID `json:"productId"`
	SKU              string    `json:"sku"`
	Name             string    `json:"name"`
	Thumbnail        string    `json:"thumbnail"`
	Quantity         int       `json:"quantity"`
	Limit            int       `json:"limit"`
	NotificationSent bool      `json:"notificationSent"`
	Version          int64     `json:"version"`
}

// UpdateLedgerInput carries the administrative overwrite of a ledger's levels.
type UpdateLedgerInput struct {
	Quantity int `json:"quantity" validate:"gte=0"`
	Limit    int `json:"limit" validate:"gte=0"`
}

func SnapshotFromModel(ledger models.StockLedger) Snapshot {
	snapshot := Snapshot{
		ID:               ledger.ID,
		ProductID:        ledger.ProductID,
		Quantity:         ledger.Quantity,
		Limit:            ledger.Limit,
		NotificationSent: ledger.NotificationSent,
		Version:          ledger.Version,
	}
	if ledger.Product != nil {
		snapshot.SKU = ledger.Product.SKU
		snapshot.Name = ledger.Product.Name
		snapshot.Thumbnail = ledger.Product.ThumbnailURL
	}
	return snapshot
}
