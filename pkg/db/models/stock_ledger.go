package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StockLedger holds the available quantity for exactly one product. Every
// write bumps Version and is guarded by the previously read Version.
type StockLedger struct {
	ID               uuid.UUID `gorm:"column:id;type:varchar(36);primaryKey"`
	ProductID        uuid.UUID `gorm:"column:product_id;type:varchar(36);not null;uniqueIndex:ux_stock_ledgers_product_id"`
	Product          *Product  `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	Quantity         int       `gorm:"column:quantity;not null;default:0;check:chk_stock_ledgers_quantity,quantity >= 0"`
	Limit            int       `gorm:"column:limit_qty;not null;default:0;check:chk_stock_ledgers_limit,limit_qty >= 0"`
	NotificationSent bool      `gorm:"column:notification_sent;not null;default:false"`
	Version          int64     `gorm:"column:version;not null;default:0"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (StockLedger) TableName() string { return "stock_ledgers" }

func (l *StockLedger) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// AtOrBelowLimit reports whether the ledger has reached its restock threshold.
func (l StockLedger) AtOrBelowLimit() bool {
	return l.Quantity <= l.Limit
}
