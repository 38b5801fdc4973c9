package cart

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/api/controllers/orders"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
)

type cartResponse struct {
	ID            uuid.UUID          `json:"id"`
	Guest         bool               `json:"guest"`
	Items         []cartItemResponse `json:"items"`
	SubtotalCents int                `json:"subtotal_cents"`
	Subtotal      string             `json:"subtotal"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

type cartItemResponse struct {
	VariantID      uuid.UUID `json:"variant_id"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int       `json:"unit_price_cents"`
}

func newCartResponse(record *models.Cart) cartResponse {
	if record == nil {
		return cartResponse{}
	}
	items := make([]cartItemResponse, 0, len(record.Items))
	subtotal := 0
	for _, item := range record.Items {
		subtotal += item.UnitPriceCents * item.Quantity
		items = append(items, cartItemResponse{
			VariantID:      item.VariantID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	return cartResponse{
		ID:            record.ID,
		Guest:         record.UserID == nil,
		Items:         items,
		SubtotalCents: subtotal,
		Subtotal:      orders.FormatCents(subtotal),
		UpdatedAt:     record.UpdatedAt,
	}
}
