package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/pagination"
)

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestMarkPaidAppliesOnceUnderDuplicateDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variant := f.seedStock(t, 3, 2)
	order := f.seedPendingOrder(t, "ada@example.com", seededLine{variantID: variant, qty: 2, unitCents: 1500})
	f.attachSession(t, order, "cs_test_1")

	input := PaymentConfirmation{
		OrderID:           order.ID,
		Provider:          enums.PaymentProviderStripe,
		ProviderReference: "cs_test_1",
		AmountCents:       3000,
		Currency:          enums.CurrencyUSD,
	}

	first, err := f.svc.MarkPaid(ctx, input)
	require.NoError(t, err)
	assert.True(t, first.Applied)
	assert.Equal(t, enums.OrderStatusPending, first.Previous)
	assert.Equal(t, enums.OrderStatusPaid, first.Order.Status)
	require.NotNil(t, first.Order.PaidAt)

	second, err := f.svc.MarkPaid(ctx, input)
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Equal(t, enums.OrderStatusPaid, second.Previous)

	record := f.stock(t, variant)
	assert.Equal(t, 3, record.AvailableStock)
	assert.Equal(t, 0, record.ReservedStock)
	assert.Equal(t, enums.PaymentStatusSuccess, f.payment(t, "cs_test_1").Status)
	assert.Equal(t, []enums.OrderEvent{enums.OrderEventPaid}, f.notifier.Events())
	assert.Contains(t, f.cache.invalidated, order.ID)
}

func TestMarkPaidRecordsPaymentWhenSessionRowMissing(t *testing.T) {
	f := newFixture(t)
	variant := f.seedStock(t, 0, 1)
	order := f.seedPendingOrder(t, "ada@example.com", seededLine{variantID: variant, qty: 1, unitCents: 900})

	result, err := f.svc.MarkPaid(context.Background(), PaymentConfirmation{OrderID: order.ID, ProviderReference: "cs_orphan"})
	require.NoError(t, err)
	assert.True(t, result.Applied)

	payment := f.payment(t, "cs_orphan")
	assert.Equal(t, enums.PaymentStatusSuccess, payment.Status)
	assert.Equal(t, 900, payment.AmountCents)
	assert.Equal(t, enums.PaymentProviderStripe, payment.Provider)
}

func TestMarkPaidUnknownOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.MarkPaid(context.Background(), PaymentConfirmation{OrderID: uuid.New(), ProviderReference: "cs_missing"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOrderNotFound))
}

func TestSessionExpiredAfterPaymentIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variant := f.seedStock(t, 4, 1)
	order := f.seedPendingOrder(t, "ada@example.com", seededLine{variantID: variant, qty: 1, unitCents: 500})
	f.attachSession(t, order, "cs_paid")

	_, err := f.svc.MarkPaid(ctx, PaymentConfirmation{OrderID: order.ID, ProviderReference: "cs_paid", AmountCents: 500})
	require.NoError(t, err)

	result, err := f.svc.Cancel(ctx, CancelInput{OrderID: order.ID, Reason: enums.CancelReasonSessionExpired})
	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.Equal(t, enums.OrderStatusPaid, f.reload(t, order.ID).Status)

	record := f.stock(t, variant)
	assert.Equal(t, 4, record.AvailableStock)
	assert.Equal(t, 0, record.ReservedStock)
	assert.Equal(t, enums.PaymentStatusSuccess, f.payment(t, "cs_paid").Status)
}

func TestCancelReleasesStockAndClosesPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seedStock(t, 1, 2)
	b := f.seedStock(t, 0, 3)
	order := f.seedPendingOrder(t, "ada@example.com",
		seededLine{variantID: a, qty: 2, unitCents: 100},
		seededLine{variantID: b, qty: 3, unitCents: 200},
	)
	f.attachSession(t, order, "cs_open")

	result, err := f.svc.Cancel(ctx, CancelInput{OrderID: order.ID})
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, enums.OrderStatusCancelled, result.Order.Status)
	require.NotNil(t, result.Order.CancelReason)
	assert.Equal(t, enums.CancelReasonRequested.String(), *result.Order.CancelReason)

	assert.Equal(t, 3, f.stock(t, a).AvailableStock)
	assert.Equal(t, 0, f.stock(t, a).ReservedStock)
	assert.Equal(t, 3, f.stock(t, b).AvailableStock)
	assert.Equal(t, 0, f.stock(t, b).ReservedStock)

	payment := f.payment(t, "cs_open")
	assert.Equal(t, enums.PaymentStatusFailed, payment.Status)
	require.NotNil(t, payment.FailureReason)
	assert.Equal(t, []enums.OrderEvent{enums.OrderEventCancelled}, f.notifier.Events())

	again, err := f.svc.Cancel(ctx, CancelInput{OrderID: order.ID})
	require.NoError(t, err)
	assert.False(t, again.Applied)
	assert.Equal(t, 3, f.stock(t, a).AvailableStock)
}

func TestRequestedCancelOfPaidOrderConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variant := f.seedStock(t, 0, 1)
	order := f.seedPendingOrder(t, "ada@example.com", seededLine{variantID: variant, qty: 1, unitCents: 100})
	_, err := f.svc.MarkPaid(ctx, PaymentConfirmation{OrderID: order.ID, ProviderReference: "cs_x"})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, CancelInput{OrderID: order.ID})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestCancelExpiredSkipsPaidOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variant := f.seedStock(t, 0, 1)
	order := f.seedPendingOrder(t, "ada@example.com", seededLine{variantID: variant, qty: 1, unitCents: 100})
	_, err := f.svc.MarkPaid(ctx, PaymentConfirmation{OrderID: order.ID, ProviderReference: "cs_y"})
	require.NoError(t, err)

	result, err := f.svc.CancelExpired(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.Equal(t, 0, f.stock(t, variant).AvailableStock)
}

func TestAdvanceFulfillmentFollowsStateMachine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variant := f.seedStock(t, 0, 1)
	order := f.seedPendingOrder(t, "ada@example.com", seededLine{variantID: variant, qty: 1, unitCents: 100})

	_, err := f.svc.AdvanceFulfillment(ctx, order.ID, enums.OrderStatusShipped)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.AdvanceFulfillment(ctx, order.ID, enums.OrderStatusCancelled)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.MarkPaid(ctx, PaymentConfirmation{OrderID: order.ID, ProviderReference: "cs_z"})
	require.NoError(t, err)

	shipped, err := f.svc.AdvanceFulfillment(ctx, order.ID, enums.OrderStatusShipped)
	require.NoError(t, err)
	assert.True(t, shipped.Applied)
	require.NotNil(t, shipped.Order.ShippedAt)

	delivered, err := f.svc.AdvanceFulfillment(ctx, order.ID, enums.OrderStatusDelivered)
	require.NoError(t, err)
	assert.True(t, delivered.Applied)
	assert.True(t, delivered.Order.Status.IsTerminal())

	assert.Equal(t, []enums.OrderEvent{enums.OrderEventPaid, enums.OrderEventShipped, enums.OrderEventDelivered}, f.notifier.Events())
}

func TestNotifierFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errNotifierDown
	variant := f.seedStock(t, 0, 1)
	order := f.seedPendingOrder(t, "ada@example.com", seededLine{variantID: variant, qty: 1, unitCents: 100})

	result, err := f.svc.MarkPaid(context.Background(), PaymentConfirmation{OrderID: order.ID, ProviderReference: "cs_n"})
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, enums.OrderStatusPaid, f.reload(t, order.ID).Status)
}

func TestRecordPaymentFailureKeepsOrderPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variant := f.seedStock(t, 0, 1)
	order := f.seedPendingOrder(t, "ada@example.com", seededLine{variantID: variant, qty: 1, unitCents: 100})
	f.attachSession(t, order, "cs_fail")

	updated, err := f.svc.RecordPaymentFailure(ctx, PaymentFailure{OrderID: order.ID, ProviderReference: "cs_fail", Reason: "card_declined"})
	require.NoError(t, err)
	assert.True(t, updated)

	updated, err = f.svc.RecordPaymentFailure(ctx, PaymentFailure{OrderID: order.ID, ProviderReference: "cs_fail"})
	require.NoError(t, err)
	assert.False(t, updated)

	assert.Equal(t, enums.PaymentStatusFailed, f.payment(t, "cs_fail").Status)
	assert.Equal(t, enums.OrderStatusPending, f.reload(t, order.ID).Status)
	assert.Equal(t, 1, f.stock(t, variant).ReservedStock)
}

func TestAttachPaymentSessionIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedPendingOrder(t, "ada@example.com")
	input := PaymentSessionInput{OrderID: order.ID, Provider: enums.PaymentProviderStripe, ProviderReference: "cs_dup", AmountCents: 10, Currency: enums.CurrencyUSD}

	first, err := f.svc.AttachPaymentSession(ctx, input)
	require.NoError(t, err)
	second, err := f.svc.AttachPaymentSession(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	other := f.seedPendingOrder(t, "bob@example.com")
	input.OrderID = other.ID
	_, err = f.svc.AttachPaymentSession(ctx, input)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestGetCachesOnlyTerminalOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedPendingOrder(t, "ada@example.com")

	loaded, err := f.svc.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, loaded.OrderNumber)
	_, ok := f.cache.Get(ctx, order.ID)
	assert.False(t, ok)

	// A transition committed without any cache invalidation in between.
	require.NoError(t, f.conn.Model(&models.Order{}).
		Where("id = ?", order.ID).
		Update("status", enums.OrderStatusCancelled).Error)

	fresh, err := f.svc.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, fresh.Status)

	cached, ok := f.cache.Get(ctx, order.ID)
	require.True(t, ok)
	assert.Same(t, fresh, cached)

	_, err = f.svc.Get(ctx, uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOrderNotFound))
}

func TestListForUserPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		order := f.seedPendingOrder(t, "ada@example.com")
		require.NoError(t, f.conn.Model(order).Updates(map[string]any{
			"user_id":    userID,
			"created_at": base.Add(time.Duration(i) * time.Hour),
		}).Error)
	}
	f.seedPendingOrder(t, "guest@example.com")

	page, err := f.svc.ListForUser(ctx, userID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	require.NotEmpty(t, page.NextCursor)
	assert.True(t, page.Orders[0].CreatedAt.After(page.Orders[1].CreatedAt))

	next, err := f.svc.ListForUser(ctx, userID, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, next.Orders, 1)
	assert.Empty(t, next.NextCursor)

	_, err = f.svc.ListForUser(ctx, userID, pagination.Params{Cursor: "%%%"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestListExpiredPendingHonoursCutoff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := f.seedPendingOrder(t, "old@example.com")
	fresh := f.seedPendingOrder(t, "fresh@example.com")
	require.NoError(t, f.conn.Model(old).Update("created_at", f.now.Add(-2*time.Hour)).Error)
	require.NoError(t, f.conn.Model(fresh).Update("created_at", f.now.Add(-time.Minute)).Error)

	ids, err := f.svc.ListExpiredPending(ctx, f.now.Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{old.ID}, ids)
}
