package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/types"
)

// OrderItem snapshots a purchased variant. VariantID is a soft reference: the
// catalog entry may disappear, so name, attributes and price are copied.
type OrderItem struct {
	ID             uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID        `gorm:"column:order_id;type:uuid;not null;index"`
	VariantID      uuid.UUID        `gorm:"column:variant_id;type:uuid;not null"`
	ProductName    string           `gorm:"column:product_name;not null"`
	SKU            *string          `gorm:"column:sku"`
	Attributes     types.Attributes `gorm:"column:attributes;type:jsonb;not null"`
	UnitPriceCents int              `gorm:"column:unit_price_cents;not null"`
	Quantity       int              `gorm:"column:quantity;not null;check:quantity > 0"`
	LineTotalCents int              `gorm:"column:line_total_cents;not null"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
