package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/types"
)

// Order is the durable header of a customer purchase. A nil UserID marks a
// guest order; once set it is never cleared.
type Order struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber     string            `gorm:"column:order_number;not null;uniqueIndex"`
	UserID          *uuid.UUID        `gorm:"column:user_id;type:uuid;index"`
	CartID          *uuid.UUID        `gorm:"column:cart_id;type:uuid"`
	Status          enums.OrderStatus `gorm:"column:status;not null;index"`
	Currency        enums.Currency    `gorm:"column:currency;not null"`
	SubtotalCents   int               `gorm:"column:subtotal_cents;not null"`
	ShippingCents   int               `gorm:"column:shipping_cents;not null;default:0"`
	TaxCents        int               `gorm:"column:tax_cents;not null;default:0"`
	DiscountCents   int               `gorm:"column:discount_cents;not null;default:0"`
	TotalCents      int               `gorm:"column:total_cents;not null"`
	ShippingAddress types.Address     `gorm:"column:shipping_address;type:jsonb;not null"`
	BillingAddress  *types.Address    `gorm:"column:billing_address;type:jsonb"`
	CancelReason    *string           `gorm:"column:cancel_reason"`
	PaidAt          *time.Time        `gorm:"column:paid_at"`
	ShippedAt       *time.Time        `gorm:"column:shipped_at"`
	DeliveredAt     *time.Time        `gorm:"column:delivered_at"`
	CancelledAt     *time.Time        `gorm:"column:cancelled_at"`
	ClaimedAt       *time.Time        `gorm:"column:claimed_at"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`

	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// IsGuest reports whether the order has not been claimed by an account.
func (o *Order) IsGuest() bool {
	return o.UserID == nil
}
