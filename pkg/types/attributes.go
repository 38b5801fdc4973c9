package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Attributes captures variant options (size, color) as denormalized JSON.
type Attributes map[string]string

// Value serializes the attributes to JSON. Nil is stored as an empty object.
func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(map[string]string(a))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan decodes JSON into the attributes.
func (a *Attributes) Scan(value interface{}) error {
	if value == nil {
		*a = Attributes{}
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return fmt.Errorf("attributes: %w", err)
	}
	decoded := Attributes{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("attributes: %w", err)
	}
	*a = decoded
	return nil
}

// Clone returns an independent copy.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

func asJSON(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported scan type %T", value)
	}
}
