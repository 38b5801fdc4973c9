package checkout

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/types"
)

// Pricing computes shipping and tax for an item subtotal.
type Pricing interface {
	Quote(subtotal int, shipTo types.Address) (Totals, error)
}

// FlatRatePricing charges one shipping fee, waived at or above the free
// shipping threshold, and a single tax rate in basis points on the subtotal.
// A zero threshold disables free shipping.
type FlatRatePricing struct {
	ShippingCents              int
	FreeShippingThresholdCents int
	TaxRateBasisPoints         int64
}

var basisPoints = decimal.NewFromInt(10000)

func (p FlatRatePricing) Quote(subtotal int, _ types.Address) (Totals, error) {
	if subtotal < 0 {
		return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, "subtotal cannot be negative")
	}
	shipping := p.ShippingCents
	if p.FreeShippingThresholdCents > 0 && subtotal >= p.FreeShippingThresholdCents {
		shipping = 0
	}
	// Half-up rounding to the nearest cent.
	tax := decimal.NewFromInt(int64(subtotal)).
		Mul(decimal.NewFromInt(p.TaxRateBasisPoints)).
		Div(basisPoints).
		Round(0).
		IntPart()
	return Totals{ShippingCents: shipping, TaxCents: int(tax)}, nil
}
