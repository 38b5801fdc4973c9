package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/types"
)

// ProductVariant is the catalog row a cart line points at. The catalog is
// owned elsewhere; the fulfillment engine only reads it.
type ProductVariant struct {
	ID          uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	ProductName string           `gorm:"column:product_name;not null"`
	SKU         *string          `gorm:"column:sku"`
	Attributes  types.Attributes `gorm:"column:attributes;type:jsonb;not null"`
	PriceCents  int              `gorm:"column:price_cents;not null"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt   gorm.DeletedAt   `gorm:"column:deleted_at;index"`
}

func (v *ProductVariant) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
