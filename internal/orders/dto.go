package orders

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// TransitionResult describes the outcome of a status change request. Applied
// is false when the order was already past the requested state.
type TransitionResult struct {
	Order    *models.Order
	Previous enums.OrderStatus
	Applied  bool
}

// PaymentConfirmation carries a verified "payment completed" signal.
type PaymentConfirmation struct {
	OrderID           uuid.UUID
	Provider          enums.PaymentProvider
	ProviderReference string
	AmountCents       int
	Currency          enums.Currency
}

// PaymentFailure records a declined attempt. The order stays PENDING so the
// customer can retry until the expiration window closes.
type PaymentFailure struct {
	OrderID           uuid.UUID
	ProviderReference string
	Reason            string
}

// PaymentSessionInput registers a freshly created provider session.
type PaymentSessionInput struct {
	OrderID           uuid.UUID
	Provider          enums.PaymentProvider
	ProviderReference string
	AmountCents       int
	Currency          enums.Currency
}

// CancelInput describes a PENDING -> CANCELLED request.
type CancelInput struct {
	OrderID uuid.UUID
	Reason  enums.CancelReason
}

// ClaimInput moves a guest order under an account.
type ClaimInput struct {
	OrderID uuid.UUID
	UserID  uuid.UUID
	Email   string
}

// GuestLookupInput finds a guest order by its public number and contact email.
type GuestLookupInput struct {
	OrderNumber string
	Email       string
	// ClientIP scopes the attempt limit to the caller.
	ClientIP    string
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
