package errors

import "fmt"

// InsufficientStockDetails describes which line item could not be reserved.
type InsufficientStockDetails struct {
	VariantID string `json:"variant_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	Shortfall int    `json:"shortfall"`
}

func InsufficientStock(variantID string, requested, available int) *Error {
	if available < 0 {
		available = 0
	}
	return New(CodeInsufficientStock, fmt.Sprintf("variant %s has %d available, %d requested", variantID, available, requested)).
		WithDetails(InsufficientStockDetails{
			VariantID: variantID,
			Requested: requested,
			Available: available,
			Shortfall: requested - available,
		})
}

// NegativeStockDetails captures the ledger state rejected by a stock adjustment.
type NegativeStockDetails struct {
	VariantID string `json:"variant_id"`
	Current   int    `json:"current"`
	Delta     int    `json:"delta"`
}

func NegativeStock(variantID string, current, delta int) *Error {
	return New(CodeNegativeStock, fmt.Sprintf("adjusting variant %s by %d would leave %d available", variantID, delta, current+delta)).
		WithDetails(NegativeStockDetails{VariantID: variantID, Current: current, Delta: delta})
}

func OrderNotFound(orderID string) *Error {
	return New(CodeOrderNotFound, fmt.Sprintf("order %s not found", orderID))
}
