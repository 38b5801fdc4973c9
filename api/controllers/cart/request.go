package cart

import "github.com/google/uuid"

type setItemRequest struct {
	VariantID uuid.UUID `json:"variant_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"min=0,max=999"`
}
