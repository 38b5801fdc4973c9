package enums

import (
	"fmt"
	"strings"
)

// Currency is an ISO 4217 code in upper case. All amounts are stored in the
// currency's minor unit.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyCAD Currency = "CAD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

var validCurrencies = []Currency{
	CurrencyUSD,
	CurrencyCAD,
	CurrencyEUR,
	CurrencyGBP,
}

func (c Currency) String() string {
	return string(c)
}

// Lower is the form payment providers expect on the wire.
func (c Currency) Lower() string {
	return strings.ToLower(string(c))
}

func (c Currency) IsValid() bool {
	for _, candidate := range validCurrencies {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCurrency accepts any casing and surrounding whitespace.
func ParseCurrency(value string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(value)))
	if c.IsValid() {
		return c, nil
	}
	return "", fmt.Errorf("invalid currency %q", value)
}
