package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/internal/cart"
	"github.com/angelmondragon/fulfillment-backend/internal/catalog"
	"github.com/angelmondragon/fulfillment-backend/internal/orders"
	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/metrics"
	"github.com/angelmondragon/fulfillment-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockReserver interface {
	Reserve(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int) error
}

// Service turns a cart or an explicit item list into a PENDING order.
type Service interface {
	Execute(ctx context.Context, input Input) (*models.Order, error)
}

// Input captures everything checkout needs. Either CartID or Items must be
// provided; when both are set the cart wins.
type Input struct {
	UserID          *uuid.UUID
	CartID          *uuid.UUID
	Items           []Line
	ShippingAddress types.Address
	BillingAddress  *types.Address
	Totals          Totals
}

// ServiceParams wires the checkout service.
type ServiceParams struct {
	Tx       txRunner
	Carts    cart.Repository
	Catalog  *catalog.Repository
	Orders   orders.Repository
	Ledger   stockReserver
	Numbers  OrderNumbers
	Currency enums.Currency
	Metrics  *metrics.FulfillmentMetrics
	Logger   *logger.Logger
	// Pricing, when set, replaces caller-supplied shipping and tax.
	Pricing Pricing
}

type service struct {
	tx       txRunner
	carts    cart.Repository
	catalog  *catalog.Repository
	orders   orders.Repository
	ledger   stockReserver
	numbers  OrderNumbers
	currency enums.Currency
	metrics  *metrics.FulfillmentMetrics
	logg     *logger.Logger
	pricing  Pricing
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("stock reserver required")
	}
	if params.Numbers == nil {
		return nil, fmt.Errorf("order number source required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	currency := params.Currency
	if currency == "" {
		currency = enums.CurrencyUSD
	}
	if !currency.IsValid() {
		return nil, fmt.Errorf("unsupported currency %q", currency)
	}
	return &service{
		tx:       params.Tx,
		carts:    params.Carts,
		catalog:  params.Catalog,
		orders:   params.Orders,
		ledger:   params.Ledger,
		numbers:  params.Numbers,
		currency: currency,
		metrics:  params.Metrics,
		logg:     params.Logger,
		pricing:  params.Pricing,
	}, nil
}

// Execute reserves stock for every line, persists the order header and its
// item snapshots, and clears the source cart in one transaction. The first
// failure rolls back every reservation made so far.
func (s *service) Execute(ctx context.Context, input Input) (*models.Order, error) {
	if err := validateInput(input); err != nil {
		s.metrics.IncCheckout("invalid")
		return nil, err
	}

	number, err := s.numbers.Next(ctx)
	if err != nil {
		s.metrics.IncCheckout("failed")
		wrapped := pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate order number")
		s.logg.Error(ctx, "checkout failed", wrapped)
		return nil, wrapped
	}
	ctx = s.logg.WithField(ctx, "order_number", number)

	var created *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)
		ordersRepo := s.orders.WithTx(tx)

		lines := input.Items
		if input.CartID != nil {
			cartLines, err := s.loadCartLines(ctx, carts, *input.CartID, input.UserID)
			if err != nil {
				return err
			}
			lines = cartLines
		}
		merged, err := mergeLines(lines)
		if err != nil {
			return err
		}

		ids := make([]uuid.UUID, len(merged))
		for i, line := range merged {
			ids[i] = line.VariantID
		}
		variants, err := s.catalog.WithTx(tx).FindVariants(ctx, ids)
		if err != nil {
			return db.Classify(err, "load variants")
		}

		items := make([]models.OrderItem, 0, len(merged))
		subtotal := 0
		for _, line := range merged {
			variant, ok := variants[line.VariantID]
			if !ok {
				return pkgerrors.New(pkgerrors.CodeNotFound, "variant unavailable").
					WithDetails(map[string]any{"variant_id": line.VariantID.String()})
			}
			if err := s.ledger.Reserve(ctx, tx, line.VariantID, line.Quantity); err != nil {
				return err
			}

			unitPrice := line.UnitPriceCents
			if unitPrice == 0 {
				unitPrice = variant.PriceCents
			}
			lineTotal := unitPrice * line.Quantity
			subtotal += lineTotal
			items = append(items, models.OrderItem{
				VariantID:      line.VariantID,
				ProductName:    variant.ProductName,
				SKU:            variant.SKU,
				Attributes:     variant.Attributes.Clone(),
				UnitPriceCents: unitPrice,
				Quantity:       line.Quantity,
				LineTotalCents: lineTotal,
			})
		}

		totals := input.Totals
		if s.pricing != nil {
			quoted, err := s.pricing.Quote(subtotal, input.ShippingAddress)
			if err != nil {
				return err
			}
			quoted.DiscountCents = input.Totals.DiscountCents
			totals = quoted
		}
		if err := totals.validate(subtotal); err != nil {
			return err
		}

		order := &models.Order{
			OrderNumber:     number,
			UserID:          input.UserID,
			CartID:          input.CartID,
			Status:          enums.OrderStatusPending,
			Currency:        s.currency,
			SubtotalCents:   subtotal,
			ShippingCents:   totals.ShippingCents,
			TaxCents:        totals.TaxCents,
			DiscountCents:   totals.DiscountCents,
			TotalCents:      totals.total(subtotal),
			ShippingAddress: input.ShippingAddress,
			BillingAddress:  input.BillingAddress,
		}
		if err := ordersRepo.CreateOrder(ctx, order); err != nil {
			return db.Classify(err, "create order")
		}
		for i := range items {
			items[i].OrderID = order.ID
		}
		if err := ordersRepo.CreateItems(ctx, items); err != nil {
			return db.Classify(err, "create order items")
		}

		if input.CartID != nil {
			if err := carts.Clear(ctx, *input.CartID); err != nil {
				return db.Classify(err, "clear cart")
			}
		}

		order.Items = items
		created = order
		return nil
	})
	if err != nil {
		s.recordFailure(ctx, err)
		return nil, err
	}

	s.metrics.IncCheckout("created")
	fields := map[string]any{
		"order_id":    created.ID.String(),
		"total_cents": created.TotalCents,
		"item_count":  len(created.Items),
		"guest":       created.IsGuest(),
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "order created")
	return created, nil
}

func (s *service) loadCartLines(ctx context.Context, carts cart.Repository, cartID uuid.UUID, userID *uuid.UUID) ([]Line, error) {
	record, err := carts.FindByID(ctx, cartID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return nil, db.Classify(err, "load cart")
	}
	if err := cart.CheckOwner(record, userID); err != nil {
		return nil, err
	}
	if len(record.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart contains no items")
	}
	lines := make([]Line, len(record.Items))
	for i, item := range record.Items {
		lines[i] = Line{
			VariantID:      item.VariantID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		}
	}
	return lines, nil
}

func (s *service) recordFailure(ctx context.Context, err error) {
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
		s.metrics.IncCheckout("insufficient_stock")
	case pkgerrors.IsFault(err):
		s.metrics.IncCheckout("failed")
		s.logg.Error(ctx, "checkout failed", err)
	default:
		s.metrics.IncCheckout("rejected")
	}
}

func validateInput(input Input) error {
	if input.CartID == nil && len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart id or items required")
	}
	if input.CartID != nil && *input.CartID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart id invalid")
	}
	if input.UserID != nil && *input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id invalid")
	}
	if strings.TrimSpace(input.ShippingAddress.Email) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping address email required")
	}
	if strings.TrimSpace(input.ShippingAddress.Line1) == "" ||
		strings.TrimSpace(input.ShippingAddress.City) == "" ||
		strings.TrimSpace(input.ShippingAddress.PostalCode) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping address incomplete")
	}
	return nil
}
