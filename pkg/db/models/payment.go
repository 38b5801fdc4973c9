package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// Payment records one provider attempt. ProviderReference is the provider's
// session or intent id and doubles as the idempotency key.
type Payment struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	Provider          enums.PaymentProvider `gorm:"column:provider;not null"`
	ProviderReference string                `gorm:"column:provider_reference;not null;uniqueIndex"`
	Status            enums.PaymentStatus   `gorm:"column:status;not null"`
	AmountCents       int                   `gorm:"column:amount_cents;not null"`
	Currency          enums.Currency        `gorm:"column:currency;not null"`
	FailureReason     *string               `gorm:"column:failure_reason"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
