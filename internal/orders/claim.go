package orders

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/types"
)

// Claim moves a guest order under userID after checking the contact email
// captured at checkout. The order row stays locked from the ownership check
// until commit.
func (s *service) Claim(ctx context.Context, input ClaimInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if strings.TrimSpace(input.Email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "verification email required")
	}
	if err := s.allow(ctx, "order-claim:"+input.UserID.String()); err != nil {
		return nil, err
	}

	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())
	var claimed *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, input.OrderID, false)
		if err != nil {
			return mapLoadError(err, input.OrderID)
		}
		if order.UserID != nil {
			return pkgerrors.New(pkgerrors.CodeAlreadyClaimed, "order already belongs to an account")
		}
		if !emailsMatch(order.ShippingAddress.Email, input.Email) {
			return pkgerrors.New(pkgerrors.CodeVerificationFailed, "order could not be verified")
		}

		assigned, err := repo.AssignOwner(ctx, order.ID, input.UserID, s.now().UTC())
		if err != nil {
			return db.Classify(err, "assign order owner")
		}
		if !assigned {
			return pkgerrors.New(pkgerrors.CodeAlreadyClaimed, "order already belongs to an account")
		}

		claimed, err = repo.FindByID(ctx, order.ID)
		if err != nil {
			return db.Classify(err, "reload order")
		}
		return nil
	})
	if err != nil {
		if pkgerrors.IsFault(err) {
			s.logg.Error(ctx, "order claim failed", err)
		}
		return nil, err
	}

	s.logg.Info(s.logg.WithUserID(ctx, input.UserID.String()), "guest order claimed")
	if s.cache != nil {
		s.cache.Invalidate(ctx, claimed)
	}
	s.notify(ctx, enums.OrderEventClaimed, claimed)
	return claimed, nil
}

// LookupGuestOrder serves unauthenticated order tracking. A wrong email and
// an unknown or claimed order are indistinguishable to the caller.
func (s *service) LookupGuestOrder(ctx context.Context, input GuestLookupInput) (*models.Order, error) {
	number := strings.TrimSpace(input.OrderNumber)
	if number == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}
	if strings.TrimSpace(input.Email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email required")
	}
	if err := s.allow(ctx, guestLookupScope(input.ClientIP, number)); err != nil {
		return nil, err
	}

	order, err := s.repo.FindGuestOrder(ctx, number)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found")
		}
		return nil, db.Classify(err, "load guest order")
	}
	if !emailsMatch(order.ShippingAddress.Email, input.Email) {
		return nil, pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found")
	}
	return order, nil
}

// guestLookupScope keys the lookup limit by caller and order number, so
// guessing numbers from one address cannot lock out the real guest.
func guestLookupScope(clientIP, number string) string {
	clientIP = strings.TrimSpace(clientIP)
	if clientIP == "" {
		clientIP = "unknown"
	}
	return "guest-lookup:" + clientIP + ":" + number
}

// allow applies the attempt limit. A limiter outage lets the request through.
func (s *service) allow(ctx context.Context, scope string) error {
	if s.limiter == nil {
		return nil
	}
	allowed, _, err := s.limiter.FixedWindowAllow(ctx, scope, s.claimAttempts, s.claimWindow)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "scope", scope), "rate limiter unavailable")
		return nil
	}
	if !allowed {
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later")
	}
	return nil
}

// emailsMatch compares fixed-length digests of both normalized addresses so
// the comparison time does not depend on where the inputs differ.
func emailsMatch(stored, supplied string) bool {
	storedNorm := types.NormalizeEmail(stored)
	if storedNorm == "" {
		return false
	}
	a := blake2b.Sum256([]byte(storedNorm))
	b := blake2b.Sum256([]byte(types.NormalizeEmail(supplied)))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
