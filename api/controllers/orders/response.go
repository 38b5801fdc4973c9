package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/types"
)

// OrderResponse is the public shape of an order. Cent amounts are exact;
// Total is the same value formatted for display.
type OrderResponse struct {
	ID              uuid.UUID           `json:"id"`
	OrderNumber     string              `json:"order_number"`
	Status          string              `json:"status"`
	Guest           bool                `json:"guest"`
	Currency        string              `json:"currency"`
	SubtotalCents   int                 `json:"subtotal_cents"`
	ShippingCents   int                 `json:"shipping_cents"`
	TaxCents        int                 `json:"tax_cents"`
	DiscountCents   int                 `json:"discount_cents"`
	TotalCents      int                 `json:"total_cents"`
	Total           string              `json:"total"`
	ShippingAddress types.Address       `json:"shipping_address"`
	BillingAddress  *types.Address      `json:"billing_address,omitempty"`
	CancelReason    *string             `json:"cancel_reason,omitempty"`
	Items           []OrderItemResponse `json:"items"`
	PaidAt          *time.Time          `json:"paid_at,omitempty"`
	ShippedAt       *time.Time          `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time          `json:"delivered_at,omitempty"`
	CancelledAt     *time.Time          `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

type OrderItemResponse struct {
	VariantID      uuid.UUID        `json:"variant_id"`
	ProductName    string           `json:"product_name"`
	SKU            *string          `json:"sku,omitempty"`
	Attributes     types.Attributes `json:"attributes,omitempty"`
	Quantity       int              `json:"quantity"`
	UnitPriceCents int              `json:"unit_price_cents"`
	LineTotalCents int              `json:"line_total_cents"`
}

// NewOrderResponse maps a persisted order onto its public shape.
func NewOrderResponse(order *models.Order) OrderResponse {
	if order == nil {
		return OrderResponse{}
	}
	items := make([]OrderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemResponse{
			VariantID:      item.VariantID,
			ProductName:    item.ProductName,
			SKU:            item.SKU,
			Attributes:     item.Attributes,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			LineTotalCents: item.LineTotalCents,
		})
	}
	return OrderResponse{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		Status:          order.Status.String(),
		Guest:           order.IsGuest(),
		Currency:        string(order.Currency),
		SubtotalCents:   order.SubtotalCents,
		ShippingCents:   order.ShippingCents,
		TaxCents:        order.TaxCents,
		DiscountCents:   order.DiscountCents,
		TotalCents:      order.TotalCents,
		Total:           FormatCents(order.TotalCents),
		ShippingAddress: order.ShippingAddress,
		BillingAddress:  order.BillingAddress,
		CancelReason:    order.CancelReason,
		Items:           items,
		PaidAt:          order.PaidAt,
		ShippedAt:       order.ShippedAt,
		DeliveredAt:     order.DeliveredAt,
		CancelledAt:     order.CancelledAt,
		CreatedAt:       order.CreatedAt,
	}
}

// FormatCents renders minor units as a fixed two-decimal amount.
func FormatCents(cents int) string {
	return decimal.NewFromInt(int64(cents)).Shift(-2).StringFixed(2)
}

type orderListResponse struct {
	Orders     []OrderResponse `json:"orders"`
	NextCursor string          `json:"next_cursor,omitempty"`
}
