package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error
}

func (r *repository) CreateItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("variant_id ASC") }).
		Where("id = ?", orderID).
		Take(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByIDForUpdate locks the order row for the rest of the transaction.
// With nowait a competing lock fails immediately instead of queueing.
func (r *repository) FindByIDForUpdate(ctx context.Context, orderID uuid.UUID, nowait bool) (*models.Order, error) {
	locking := clause.Locking{Strength: clause.LockingStrengthUpdate}
	if nowait {
		locking.Options = clause.LockingOptionsNoWait
	}

	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(locking).
		Where("id = ?", orderID).
		Take(&order).Error
	if err != nil {
		return nil, err
	}

	items, err := r.FindItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return &order, nil
}

// FindItems returns the order's items sorted by variant so stock rows are
// always locked in the same order.
func (r *repository) FindItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("variant_id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateStatus writes the new status only while the row still holds from and
// reports whether it did.
func (r *repository) UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, fields map[string]any) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("order status %s cannot become %s", from, to)
	}
	updates := map[string]any{"status": to}
	for key, value := range fields {
		updates[key] = value
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AssignOwner sets user_id on a guest order. The user_id IS NULL guard makes
// ownership one-directional.
func (r *repository) AssignOwner(ctx context.Context, orderID, userID uuid.UUID, claimedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND user_id IS NULL", orderID).
		Updates(map[string]any{
			"user_id":    userID,
			"claimed_at": claimedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FindGuestOrder is the only lookup that serves unauthenticated callers. The
// user_id IS NULL predicate hides every claimed order from it.
func (r *repository) FindGuestOrder(ctx context.Context, orderNumber string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("variant_id ASC") }).
		Where("order_number = ? AND user_id IS NULL", orderNumber).
		Take(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	query := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("variant_id ASC") }).
		Where("user_id = ?", userID)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id <= ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var orders []models.Order
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ListExpiredPending returns ids of PENDING orders created before cutoff,
// oldest first.
func (r *repository) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("status = ? AND created_at < ?", enums.OrderStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindPaymentByReference(ctx context.Context, providerReference string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("provider_reference = ?", providerReference).
		Take(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) UpdatePaymentStatus(ctx context.Context, providerReference string, from, to enums.PaymentStatus, fields map[string]any) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("payment status %s cannot become %s", from, to)
	}
	updates := map[string]any{"status": to}
	for key, value := range fields {
		updates[key] = value
	}
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("provider_reference = ? AND status = ?", providerReference, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FailPendingPayments closes every open attempt on an order that is being
// cancelled.
func (r *repository) FailPendingPayments(ctx context.Context, orderID uuid.UUID, reason string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("order_id = ? AND status = ?", orderID, enums.PaymentStatusPending).
		Updates(map[string]any{
			"status":         enums.PaymentStatusFailed,
			"failure_reason": reason,
		})
	return res.RowsAffected, res.Error
}
