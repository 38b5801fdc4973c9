package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryRecord tracks sellable and reserved units for one variant.
// Rows are never deleted and are created at zero on first stocking.
type InventoryRecord struct {
	VariantID      uuid.UUID `gorm:"column:variant_id;type:uuid;primaryKey"`
	AvailableStock int       `gorm:"column:available_stock;not null;default:0;check:available_stock >= 0"`
	ReservedStock  int       `gorm:"column:reserved_stock;not null;default:0;check:reserved_stock >= 0"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (InventoryRecord) TableName() string { return "inventory" }
