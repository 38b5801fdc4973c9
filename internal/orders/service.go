package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/metrics"
	"github.com/angelmondragon/fulfillment-backend/pkg/pagination"
)

const (
	defaultClaimAttempts = 5
	defaultClaimWindow   = 15 * time.Minute
)

// Service owns the order state machine and ownership transfer.
type Service interface {
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
	LookupGuestOrder(ctx context.Context, input GuestLookupInput) (*models.Order, error)
	ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)

	AttachPaymentSession(ctx context.Context, input PaymentSessionInput) (*models.Payment, error)
	MarkPaid(ctx context.Context, input PaymentConfirmation) (*TransitionResult, error)
	RecordPaymentFailure(ctx context.Context, input PaymentFailure) (bool, error)
	Cancel(ctx context.Context, input CancelInput) (*TransitionResult, error)
	CancelExpired(ctx context.Context, orderID uuid.UUID) (*TransitionResult, error)
	AdvanceFulfillment(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus) (*TransitionResult, error)

	Claim(ctx context.Context, input ClaimInput) (*models.Order, error)
}

// ServiceParams wires the order service. Notifier, Cache, Limiter and Metrics
// are optional.
type ServiceParams struct {
	Repo          Repository
	Tx            txRunner
	Ledger        StockLedger
	Notifier      Notifier
	Cache         OrderCache
	Limiter       RateLimiter
	Metrics       *metrics.FulfillmentMetrics
	Logger        *logger.Logger
	Now           func() time.Time
	ClaimAttempts int64
	ClaimWindow   time.Duration
}

type service struct {
	repo          Repository
	tx            txRunner
	ledger        StockLedger
	notifier      Notifier
	cache         OrderCache
	limiter       RateLimiter
	metrics       *metrics.FulfillmentMetrics
	logg          *logger.Logger
	now           func() time.Time
	claimAttempts int64
	claimWindow   time.Duration
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	svc := &service{
		repo:          params.Repo,
		tx:            params.Tx,
		ledger:        params.Ledger,
		notifier:      params.Notifier,
		cache:         params.Cache,
		limiter:       params.Limiter,
		metrics:       params.Metrics,
		logg:          params.Logger,
		now:           params.Now,
		claimAttempts: params.ClaimAttempts,
		claimWindow:   params.ClaimWindow,
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if svc.claimAttempts <= 0 {
		svc.claimAttempts = defaultClaimAttempts
	}
	if svc.claimWindow <= 0 {
		svc.claimWindow = defaultClaimWindow
	}
	return svc, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, orderID); ok && cached.Status.IsTerminal() {
			return cached, nil
		}
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapLoadError(err, orderID)
	}
	// Only terminal orders are cached. A transition committing between the
	// read above and a Set would otherwise leave a stale live status behind.
	if s.cache != nil && order.Status.IsTerminal() {
		s.cache.Set(ctx, order)
	}
	return order, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.ListByUser(ctx, userID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, db.Classify(err, "list orders")
	}

	page, next := pagination.Trim(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return &OrderList{Orders: page, NextCursor: next}, nil
}

func (s *service) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "limit must be positive")
	}
	ids, err := s.repo.ListExpiredPending(ctx, cutoff, limit)
	if err != nil {
		return nil, db.Classify(err, "list expired orders")
	}
	return ids, nil
}

// AttachPaymentSession persists a PENDING payment row for a provider session.
// Re-registering the same reference returns the existing row.
func (s *service) AttachPaymentSession(ctx context.Context, input PaymentSessionInput) (*models.Payment, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ProviderReference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider reference required")
	}

	payment := &models.Payment{
		OrderID:           input.OrderID,
		Provider:          input.Provider,
		ProviderReference: input.ProviderReference,
		Status:            enums.PaymentStatusPending,
		AmountCents:       input.AmountCents,
		Currency:          input.Currency,
	}
	err := s.repo.CreatePayment(ctx, payment)
	if err == nil {
		return payment, nil
	}
	if !db.IsUniqueViolation(err, "") {
		return nil, db.Classify(err, "create payment")
	}
	existing, findErr := s.repo.FindPaymentByReference(ctx, input.ProviderReference)
	if findErr != nil {
		return nil, db.Classify(findErr, "load payment")
	}
	if existing.OrderID != input.OrderID {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "provider reference belongs to another order")
	}
	return existing, nil
}

// MarkPaid drives PENDING -> PAID. Any other current status is a silent
// no-op so duplicate deliveries never confirm stock twice.
func (s *service) MarkPaid(ctx context.Context, input PaymentConfirmation) (*TransitionResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ProviderReference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider reference required")
	}

	return s.transition(ctx, input.OrderID, transitionSpec{
		target:       enums.OrderStatusPaid,
		noopOnSettle: true,
		fields: func(now time.Time) map[string]any {
			return map[string]any{"paid_at": now}
		},
		effect: func(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, now time.Time) error {
			if err := s.settlePayment(ctx, repo, order, input); err != nil {
				return err
			}
			for _, item := range order.Items {
				if err := s.ledger.ConfirmSale(ctx, tx, item.VariantID, item.Quantity); err != nil {
					return err
				}
			}
			return nil
		},
	})
}

func (s *service) settlePayment(ctx context.Context, repo Repository, order *models.Order, input PaymentConfirmation) error {
	if input.AmountCents != 0 && input.AmountCents != order.TotalCents {
		fields := map[string]any{
			"order_id":       order.ID.String(),
			"amount_cents":   input.AmountCents,
			"total_cents":    order.TotalCents,
			"provider_ref":   input.ProviderReference,
			"payment_status": enums.PaymentStatusSuccess,
		}
		s.logg.Warn(s.logg.WithFields(ctx, fields), "captured amount differs from order total")
	}

	updated, err := repo.UpdatePaymentStatus(ctx, input.ProviderReference, enums.PaymentStatusPending, enums.PaymentStatusSuccess, nil)
	if err != nil {
		return db.Classify(err, "settle payment")
	}
	if updated {
		return nil
	}

	existing, err := repo.FindPaymentByReference(ctx, input.ProviderReference)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Classify(err, "load payment")
	}
	if existing != nil {
		// Already terminal; the order row is the source of truth.
		return nil
	}

	amount := input.AmountCents
	if amount == 0 {
		amount = order.TotalCents
	}
	currency := input.Currency
	if currency == "" {
		currency = order.Currency
	}
	provider := input.Provider
	if provider == "" {
		provider = enums.PaymentProviderStripe
	}
	payment := &models.Payment{
		OrderID:           order.ID,
		Provider:          provider,
		ProviderReference: input.ProviderReference,
		Status:            enums.PaymentStatusSuccess,
		AmountCents:       amount,
		Currency:          currency,
	}
	if err := repo.CreatePayment(ctx, payment); err != nil {
		return db.Classify(err, "record payment")
	}
	return nil
}

// RecordPaymentFailure marks a PENDING attempt FAILED without touching the
// order.
func (s *service) RecordPaymentFailure(ctx context.Context, input PaymentFailure) (bool, error) {
	if input.ProviderReference == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "provider reference required")
	}
	fields := map[string]any{}
	if input.Reason != "" {
		fields["failure_reason"] = input.Reason
	}
	updated, err := s.repo.UpdatePaymentStatus(ctx, input.ProviderReference, enums.PaymentStatusPending, enums.PaymentStatusFailed, fields)
	if err != nil {
		return false, db.Classify(err, "record payment failure")
	}
	return updated, nil
}

// Cancel drives PENDING -> CANCELLED on request. Cancelling a paid or
// shipped order is a state conflict; an already cancelled order is a no-op.
func (s *service) Cancel(ctx context.Context, input CancelInput) (*TransitionResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	reason := input.Reason
	if reason == "" {
		reason = enums.CancelReasonRequested
	}
	return s.transition(ctx, input.OrderID, s.cancelSpec(reason, reason == enums.CancelReasonSessionExpired, false))
}

// CancelExpired is the sweeper entry point. The row lock is taken with
// NOWAIT so a webhook holding the order fails this attempt instead of
// blocking the batch.
func (s *service) CancelExpired(ctx context.Context, orderID uuid.UUID) (*TransitionResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	return s.transition(ctx, orderID, s.cancelSpec(enums.CancelReasonOrderExpired, true, true))
}

func (s *service) cancelSpec(reason enums.CancelReason, noopOnSettle, nowait bool) transitionSpec {
	return transitionSpec{
		target:       enums.OrderStatusCancelled,
		noopOnSettle: noopOnSettle,
		nowait:       nowait,
		fields: func(now time.Time) map[string]any {
			return map[string]any{
				"cancelled_at":  now,
				"cancel_reason": reason.String(),
			}
		},
		effect: func(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, now time.Time) error {
			for _, item := range order.Items {
				if err := s.ledger.Release(ctx, tx, item.VariantID, item.Quantity); err != nil {
					return err
				}
			}
			if _, err := repo.FailPendingPayments(ctx, order.ID, reason.String()); err != nil {
				return db.Classify(err, "close pending payments")
			}
			return nil
		},
	}
}

// AdvanceFulfillment moves a paid order through SHIPPED and DELIVERED.
func (s *service) AdvanceFulfillment(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus) (*TransitionResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	var column string
	switch target {
	case enums.OrderStatusShipped:
		column = "shipped_at"
	case enums.OrderStatusDelivered:
		column = "delivered_at"
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("cannot advance fulfillment to %s", target))
	}
	return s.transition(ctx, orderID, transitionSpec{
		target: target,
		fields: func(now time.Time) map[string]any {
			return map[string]any{column: now}
		},
	})
}

type transitionSpec struct {
	target enums.OrderStatus
	// noopOnSettle turns a disallowed transition into a silent no-op. Used by
	// payment and expiration flows that may observe an already settled order.
	noopOnSettle bool
	nowait       bool
	fields       func(now time.Time) map[string]any
	effect       func(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, now time.Time) error
}

// transition locks the order, checks the current status and applies the
// conditional status write plus its side effect in one transaction.
// Notifications and cache invalidation run after commit.
func (s *service) transition(ctx context.Context, orderID uuid.UUID, spec transitionSpec) (*TransitionResult, error) {
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	result := &TransitionResult{}
	now := s.now().UTC()

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, orderID, spec.nowait)
		if err != nil {
			return mapLoadError(err, orderID)
		}
		result.Order = order
		result.Previous = order.Status

		if order.Status == spec.target {
			return nil
		}
		if !order.Status.CanTransitionTo(spec.target) {
			if spec.noopOnSettle {
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order cannot move from %s to %s", order.Status, spec.target))
		}

		var fields map[string]any
		if spec.fields != nil {
			fields = spec.fields(now)
		}
		updated, err := repo.UpdateStatus(ctx, orderID, order.Status, spec.target, fields)
		if err != nil {
			return db.Classify(err, "update order status")
		}
		if !updated {
			// Another writer moved the order first.
			return nil
		}

		if spec.effect != nil {
			if err := spec.effect(ctx, tx, repo, order, now); err != nil {
				return err
			}
		}

		refreshed, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return db.Classify(err, "reload order")
		}
		result.Order = refreshed
		result.Applied = true
		return nil
	})
	if err != nil {
		if pkgerrors.IsFault(err) {
			s.logg.Error(s.logg.WithField(ctx, "target_status", spec.target.String()), "order transition failed", err)
		}
		return nil, err
	}

	s.metrics.IncTransition(spec.target.String(), result.Applied)
	if !result.Applied {
		fields := map[string]any{"status": result.Previous.String(), "target_status": spec.target.String()}
		s.logg.Info(s.logg.WithFields(ctx, fields), "order transition skipped")
		return result, nil
	}

	fields := map[string]any{"from_status": result.Previous.String(), "to_status": spec.target.String()}
	s.logg.Info(s.logg.WithFields(ctx, fields), "order transition applied")
	s.afterCommit(ctx, result.Order, spec.target)
	return result, nil
}

func (s *service) afterCommit(ctx context.Context, order *models.Order, status enums.OrderStatus) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, order)
	}
	event, ok := enums.OrderEventFor(status)
	if !ok {
		return
	}
	s.notify(ctx, event, order)
}

func (s *service) notify(ctx context.Context, event enums.OrderEvent, order *models.Order) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, order); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "event", event.String()), "order notification failed", err)
	}
}

func mapLoadError(err error, orderID uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.OrderNotFound(orderID.String())
	}
	return db.Classify(err, "load order")
}
