package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fulfillment-backend/pkg/types"
)

func TestFlatRatePricingQuote(t *testing.T) {
	pricing := FlatRatePricing{ShippingCents: 599, FreeShippingThresholdCents: 5000, TaxRateBasisPoints: 825}

	cases := []struct {
		name     string
		subtotal int
		shipping int
		tax      int
	}{
		{"below threshold", 1999, 599, 165},
		{"at threshold", 5000, 0, 413},
		{"empty", 0, 599, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			totals, err := pricing.Quote(tc.subtotal, types.Address{})
			require.NoError(t, err)
			assert.Equal(t, tc.shipping, totals.ShippingCents)
			assert.Equal(t, tc.tax, totals.TaxCents)
			assert.Zero(t, totals.DiscountCents)
		})
	}
}

func TestFlatRatePricingWithoutThreshold(t *testing.T) {
	totals, err := FlatRatePricing{ShippingCents: 300}.Quote(100000, types.Address{})
	require.NoError(t, err)
	assert.Equal(t, 300, totals.ShippingCents)
	assert.Zero(t, totals.TaxCents)

	_, err = FlatRatePricing{}.Quote(-1, types.Address{})
	require.Error(t, err)
}
