package notifications

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

const payloadVersion = 1

// Envelope is the wire format shared by every transport.
type Envelope struct {
	Version    int              `json:"version"`
	EventID    string           `json:"eventId"`
	EventType  enums.OrderEvent `json:"eventType"`
	OccurredAt time.Time        `json:"occurredAt"`
	Order      OrderSnapshot    `json:"order"`
}

// OrderSnapshot is the subset of an order downstream consumers need.
type OrderSnapshot struct {
	ID           uuid.UUID         `json:"id"`
	OrderNumber  string            `json:"orderNumber"`
	UserID       *uuid.UUID        `json:"userId,omitempty"`
	Status       enums.OrderStatus `json:"status"`
	TotalCents   int               `json:"totalCents"`
	Currency     enums.Currency    `json:"currency"`
	ContactEmail string            `json:"contactEmail"`
	ItemCount    int               `json:"itemCount"`
	CancelReason *string           `json:"cancelReason,omitempty"`
}

func newEnvelope(event enums.OrderEvent, order *models.Order, now time.Time) Envelope {
	count := 0
	for _, item := range order.Items {
		count += item.Quantity
	}
	return Envelope{
		Version:    payloadVersion,
		EventID:    uuid.NewString(),
		EventType:  event,
		OccurredAt: now.UTC(),
		Order: OrderSnapshot{
			ID:           order.ID,
			OrderNumber:  order.OrderNumber,
			UserID:       order.UserID,
			Status:       order.Status,
			TotalCents:   order.TotalCents,
			Currency:     order.Currency,
			ContactEmail: order.ShippingAddress.Email,
			ItemCount:    count,
			CancelReason: order.CancelReason,
		},
	}
}

func (e Envelope) attributes() map[string]string {
	return map[string]string{
		"event_id":     e.EventID,
		"event_type":   e.EventType.String(),
		"order_id":     e.Order.ID.String(),
		"order_status": e.Order.Status.String(),
		"occurred_at":  e.OccurredAt.Format(time.RFC3339Nano),
	}
}

func (e Envelope) marshal() ([]byte, error) {
	return json.Marshal(e)
}
