package orders

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
)

func TestClaimSucceedsOnceThenAlreadyClaimed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedPendingOrder(t, "Ada@Example.com")
	userID := uuid.New()

	claimed, err := f.svc.Claim(ctx, ClaimInput{OrderID: order.ID, UserID: userID, Email: "  ada@example.COM "})
	require.NoError(t, err)
	require.NotNil(t, claimed.UserID)
	assert.Equal(t, userID, *claimed.UserID)
	require.NotNil(t, claimed.ClaimedAt)
	assert.Equal(t, []enums.OrderEvent{enums.OrderEventClaimed}, f.notifier.Events())

	_, err = f.svc.Claim(ctx, ClaimInput{OrderID: order.ID, UserID: uuid.New(), Email: "ada@example.com"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyClaimed))

	_, err = f.svc.Claim(ctx, ClaimInput{OrderID: order.ID, UserID: userID, Email: "wrong@example.com"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyClaimed))

	reloaded := f.reload(t, order.ID)
	require.NotNil(t, reloaded.UserID)
	assert.Equal(t, userID, *reloaded.UserID)
}

func TestClaimWrongEmailLeavesOrderUntouched(t *testing.T) {
	f := newFixture(t)
	order := f.seedPendingOrder(t, "ada@example.com")

	_, err := f.svc.Claim(context.Background(), ClaimInput{OrderID: order.ID, UserID: uuid.New(), Email: "eve@example.com"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeVerificationFailed))
	assert.False(t, pkgerrors.IsFault(err))

	reloaded := f.reload(t, order.ID)
	assert.Nil(t, reloaded.UserID)
	assert.Nil(t, reloaded.ClaimedAt)
	assert.Empty(t, f.notifier.Events())
}

func TestClaimUnknownOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Claim(context.Background(), ClaimInput{OrderID: uuid.New(), UserID: uuid.New(), Email: "ada@example.com"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOrderNotFound))
}

func TestClaimRateLimited(t *testing.T) {
	f := newFixture(t)
	f.limiter.allowed = false
	order := f.seedPendingOrder(t, "ada@example.com")
	userID := uuid.New()

	_, err := f.svc.Claim(context.Background(), ClaimInput{OrderID: order.ID, UserID: userID, Email: "ada@example.com"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeRateLimit))
	assert.Equal(t, []string{"order-claim:" + userID.String()}, f.limiter.scopes)
	assert.Nil(t, f.reload(t, order.ID).UserID)
}

func TestClaimProceedsWhenLimiterUnavailable(t *testing.T) {
	f := newFixture(t)
	f.limiter.err = errors.New("redis down")
	order := f.seedPendingOrder(t, "ada@example.com")

	_, err := f.svc.Claim(context.Background(), ClaimInput{OrderID: order.ID, UserID: uuid.New(), Email: "ada@example.com"})
	require.NoError(t, err)
}

func TestClaimValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Claim(ctx, ClaimInput{UserID: uuid.New(), Email: "a@b.c"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Claim(ctx, ClaimInput{OrderID: uuid.New(), Email: "a@b.c"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	_, err = f.svc.Claim(ctx, ClaimInput{OrderID: uuid.New(), UserID: uuid.New(), Email: " "})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestGuestLookupBarrierHidesClaimedOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedPendingOrder(t, "ada@example.com")

	found, err := f.svc.LookupGuestOrder(ctx, GuestLookupInput{OrderNumber: order.OrderNumber, Email: "ADA@example.com"})
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)

	_, err = f.svc.LookupGuestOrder(ctx, GuestLookupInput{OrderNumber: order.OrderNumber, Email: "eve@example.com"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOrderNotFound))

	_, err = f.svc.Claim(ctx, ClaimInput{OrderID: order.ID, UserID: uuid.New(), Email: "ada@example.com"})
	require.NoError(t, err)

	_, err = f.svc.LookupGuestOrder(ctx, GuestLookupInput{OrderNumber: order.OrderNumber, Email: "ada@example.com"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOrderNotFound))
}

func TestGuestLookupLimitIsPerCaller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedPendingOrder(t, "ada@example.com")

	f.limiter.allowed = false
	_, err := f.svc.LookupGuestOrder(ctx, GuestLookupInput{OrderNumber: order.OrderNumber, Email: "eve@example.com", ClientIP: "203.0.113.9"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeRateLimit))

	f.limiter.allowed = true
	found, err := f.svc.LookupGuestOrder(ctx, GuestLookupInput{OrderNumber: order.OrderNumber, Email: "ada@example.com", ClientIP: "198.51.100.4"})
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)

	assert.Equal(t, []string{
		"guest-lookup:203.0.113.9:" + order.OrderNumber,
		"guest-lookup:198.51.100.4:" + order.OrderNumber,
	}, f.limiter.scopes)
	assert.Equal(t, "guest-lookup:unknown:ORD-1", guestLookupScope(" ", "ORD-1"))
}

func TestEmailsMatch(t *testing.T) {
	assert.True(t, emailsMatch("Ada@Example.com", " ada@example.com"))
	assert.False(t, emailsMatch("ada@example.com", "ada@example.co"))
	assert.False(t, emailsMatch("", ""))
}
