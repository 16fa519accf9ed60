package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Reservation is a time-boxed hold on stock already debited from a ledger.
type Reservation struct {
	ID          uuid.UUID `gorm:"column:id;type:varchar(36);primaryKey"`
	OrderNumber string    `gorm:"column:order_number;type:varchar(128);not null;index:ix_reservations_order_number"`
	ProductID   uuid.UUID `gorm:"column:product_id;type:varchar(36);not null;index:ix_reservations_product_id"`
	Product     *Product  `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	Quantity    int       `gorm:"column:quantity;not null;check:chk_reservations_quantity,quantity > 0"`
	ExpiresAt   time.Time `gorm:"column:expires_at;not null;index:ix_reservations_expires_at"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Reservation) TableName() string { return "reservations" }

func (r *Reservation) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Expired reports whether the hold lapsed strictly before now.
func (r Reservation) Expired(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}
