package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/pagination"
)

// Repository defines persistence operations for orders, their items and
// payment attempts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateItems(ctx context.Context, items []models.OrderItem) error
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindByIDForUpdate(ctx context.Context, orderID uuid.UUID, nowait bool) (*models.Order, error)
	FindItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, fields map[string]any) (bool, error)
	AssignOwner(ctx context.Context, orderID, userID uuid.UUID, claimedAt time.Time) (bool, error)
	FindGuestOrder(ctx context.Context, orderNumber string) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Order, error)
	ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
	CreatePayment(ctx context.Context, payment *models.Payment) error
	FindPaymentByReference(ctx context.Context, providerReference string) (*models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, providerReference string, from, to enums.PaymentStatus, fields map[string]any) (bool, error)
	FailPendingPayments(ctx context.Context, orderID uuid.UUID, reason string) (int64, error)
}

// StockLedger applies the stock side effects of a status transition inside
// the caller's transaction.
type StockLedger interface {
	Release(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int) error
	ConfirmSale(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int) error
}

// Notifier announces committed order events. Delivery is fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, event enums.OrderEvent, order *models.Order) error
}

// OrderCache is a best-effort read-through cache. Implementations log and
// swallow their own failures.
type OrderCache interface {
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, bool)
	Set(ctx context.Context, order *models.Order)
	Invalidate(ctx context.Context, order *models.Order)
}

// RateLimiter guards credential-checked lookups against guessing.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
