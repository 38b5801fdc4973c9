package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/api/controllers/orders"
	"github.com/angelmondragon/fulfillment-backend/api/middleware"
	"github.com/angelmondragon/fulfillment-backend/api/responses"
	"github.com/angelmondragon/fulfillment-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/fulfillment-backend/internal/checkout"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/types"
)

type checkoutService interface {
	Execute(ctx context.Context, input checkoutsvc.Input) (*models.Order, error)
}

// Checkout turns a cart or an explicit item list into a pending order. Guests
// and signed-in customers share the route; the token decides ownership.
func Checkout(svc checkoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.CartID == nil && len(payload.Items) == 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "cart_id or items required"))
			return
		}

		input := checkoutsvc.Input{
			UserID:          middleware.UserUUIDFromContext(r.Context()),
			CartID:          payload.CartID,
			ShippingAddress: payload.ShippingAddress,
			BillingAddress:  payload.BillingAddress,
		}
		for _, item := range payload.Items {
			input.Items = append(input.Items, checkoutsvc.Line{VariantID: item.VariantID, Quantity: item.Quantity})
		}

		order, err := svc.Execute(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, orders.NewOrderResponse(order))
	}
}

type checkoutRequest struct {
	CartID          *uuid.UUID            `json:"cart_id,omitempty"`
	Items           []checkoutItemRequest `json:"items,omitempty" validate:"omitempty,max=100,dive"`
	ShippingAddress types.Address         `json:"shipping_address" validate:"required"`
	BillingAddress  *types.Address        `json:"billing_address,omitempty" validate:"omitempty"`
}

type checkoutItemRequest struct {
	VariantID uuid.UUID `json:"variant_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1,max=999"`
}
