package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Address is an immutable snapshot of a postal address captured at checkout.
// It is stored as JSON so later edits to a customer's address book never
// rewrite historical orders.
type Address struct {
	Name       string  `json:"name" validate:"required"`
	Email      string  `json:"email" validate:"required,email"`
	Phone      *string `json:"phone,omitempty"`
	Line1      string  `json:"line1" validate:"required"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city" validate:"required"`
	State      string  `json:"state" validate:"required"`
	PostalCode string  `json:"postal_code" validate:"required"`
	Country    string  `json:"country" validate:"omitempty,len=2"`
}

// Value serializes the address into a JSON document.
func (a Address) Value() (driver.Value, error) {
	if strings.TrimSpace(a.Line1) == "" {
		return nil, fmt.Errorf("address: missing line1")
	}
	if strings.TrimSpace(a.City) == "" {
		return nil, fmt.Errorf("address: missing city")
	}
	if strings.TrimSpace(a.PostalCode) == "" {
		return nil, fmt.Errorf("address: missing postal_code")
	}
	if strings.TrimSpace(a.Country) == "" {
		a.Country = "US"
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan decodes a JSON document into the address.
func (a *Address) Scan(value interface{}) error {
	if value == nil {
		*a = Address{}
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return fmt.Errorf("address: %w", err)
	}
	var decoded Address
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("address: %w", err)
	}
	*a = decoded
	return nil
}

// NormalizedEmail returns the contact email in canonical comparison form.
func (a Address) NormalizedEmail() string {
	return NormalizeEmail(a.Email)
}

// NormalizeEmail lowercases and trims an email for comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
