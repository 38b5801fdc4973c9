package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
)

type variantLoader interface {
	FindVariant(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error)
}

// Service manages the pre-checkout basket.
type Service interface {
	Create(ctx context.Context, userID *uuid.UUID) (*models.Cart, error)
	Get(ctx context.Context, cartID uuid.UUID, userID *uuid.UUID) (*models.Cart, error)
	SetItem(ctx context.Context, cartID uuid.UUID, userID *uuid.UUID, variantID uuid.UUID, qty int) (*models.Cart, error)
}

type service struct {
	repo     Repository
	variants variantLoader
}

// NewService builds the cart service.
func NewService(repo Repository, variants variantLoader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if variants == nil {
		return nil, fmt.Errorf("variant loader required")
	}
	return &service{repo: repo, variants: variants}, nil
}

func (s *service) Create(ctx context.Context, userID *uuid.UUID) (*models.Cart, error) {
	cart := &models.Cart{UserID: userID}
	if err := s.repo.Create(ctx, cart); err != nil {
		return nil, db.Classify(err, "create cart")
	}
	return cart, nil
}

// Get loads a cart. Account carts are only visible to their owner; guest
// carts are visible to anyone holding the id.
func (s *service) Get(ctx context.Context, cartID uuid.UUID, userID *uuid.UUID) (*models.Cart, error) {
	if cartID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart id required")
	}
	cart, err := s.repo.FindByID(ctx, cartID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return nil, db.Classify(err, "load cart")
	}
	if err := CheckOwner(cart, userID); err != nil {
		return nil, err
	}
	return cart, nil
}

// SetItem sets the quantity of a variant line, quoting the current catalog
// price. A zero quantity removes the line.
func (s *service) SetItem(ctx context.Context, cartID uuid.UUID, userID *uuid.UUID, variantID uuid.UUID, qty int) (*models.Cart, error) {
	if variantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id required")
	}
	if qty < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity cannot be negative")
	}
	if _, err := s.Get(ctx, cartID, userID); err != nil {
		return nil, err
	}

	if qty == 0 {
		if err := s.repo.RemoveItem(ctx, cartID, variantID); err != nil {
			return nil, db.Classify(err, "remove cart item")
		}
		return s.Get(ctx, cartID, userID)
	}

	variant, err := s.variants.FindVariant(ctx, variantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
		}
		return nil, db.Classify(err, "load variant")
	}

	item := &models.CartItem{
		CartID:         cartID,
		VariantID:      variantID,
		Quantity:       qty,
		UnitPriceCents: variant.PriceCents,
	}
	if err := s.repo.UpsertItem(ctx, item); err != nil {
		return nil, db.Classify(err, "save cart item")
	}
	return s.Get(ctx, cartID, userID)
}

// CheckOwner rejects access to an account cart by anyone but its owner.
func CheckOwner(cart *models.Cart, userID *uuid.UUID) error {
	if cart.UserID == nil {
		return nil
	}
	if userID == nil || *userID != *cart.UserID {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	return nil
}
