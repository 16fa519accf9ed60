package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product is the local projection of an upstream catalog entry.
type Product struct {
	ID           uuid.UUID `gorm:"column:id;type:varchar(36);primaryKey"`
	SKU          string    `gorm:"column:sku_code;type:varchar(128);not null;uniqueIndex:ux_products_sku_code"`
	Name         string    `gorm:"column:name;type:varchar(255);not null"`
	ThumbnailURL string    `gorm:"column:thumbnail_url;type:varchar(1024);not null;default:''"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Product) TableName() string { return "products" }

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
