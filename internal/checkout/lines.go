package checkout

import (
	"bytes"
	"sort"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
)

// Line is one requested variant. UnitPriceCents is zero when the caller did
// not quote a price and the catalog price applies.
type Line struct {
	VariantID      uuid.UUID
	Quantity       int
	UnitPriceCents int
}

// mergeLines folds duplicate variants together and sorts by variant id so
// concurrent checkouts lock inventory rows in the same order. The first
// quoted price for a variant wins.
func mergeLines(lines []Line) ([]Line, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout requires at least one item")
	}
	index := make(map[uuid.UUID]int, len(lines))
	merged := make([]Line, 0, len(lines))
	for _, line := range lines {
		if line.VariantID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id required")
		}
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
		if line.UnitPriceCents < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit price cannot be negative")
		}
		if pos, ok := index[line.VariantID]; ok {
			merged[pos].Quantity += line.Quantity
			if merged[pos].UnitPriceCents == 0 {
				merged[pos].UnitPriceCents = line.UnitPriceCents
			}
			continue
		}
		index[line.VariantID] = len(merged)
		merged = append(merged, line)
	}
	sort.Slice(merged, func(i, j int) bool {
		return bytes.Compare(merged[i].VariantID[:], merged[j].VariantID[:]) < 0
	})
	return merged, nil
}

// Totals are the externally computed charges applied on top of the item
// subtotal.
type Totals struct {
	ShippingCents int
	TaxCents      int
	DiscountCents int
}

func (t Totals) validate(subtotal int) error {
	if t.ShippingCents < 0 || t.TaxCents < 0 || t.DiscountCents < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping, tax and discount cannot be negative")
	}
	if t.DiscountCents > subtotal {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount exceeds order subtotal")
	}
	return nil
}

func (t Totals) total(subtotal int) int {
	return subtotal + t.ShippingCents + t.TaxCents - t.DiscountCents
}
