package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/api/controllers/orders"
	"github.com/angelmondragon/fulfillment-backend/api/responses"
	"github.com/angelmondragon/fulfillment-backend/api/validators"
	internalorders "github.com/angelmondragon/fulfillment-backend/internal/orders"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

type fulfillmentService interface {
	AdvanceFulfillment(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus) (*internalorders.TransitionResult, error)
}

// InventoryService reads and corrects stock counters.
type InventoryService interface {
	Adjust(ctx context.Context, variantID uuid.UUID, delta int, reason string) (*models.InventoryRecord, error)
	Get(ctx context.Context, variantID uuid.UUID) (*models.InventoryRecord, error)
}

type orderCachePurger interface {
	PurgeOrders(ctx context.Context) (int, error)
}

type fulfillmentRequest struct {
	Status string `json:"status" validate:"required,oneof=SHIPPED DELIVERED"`
}

type transitionResponse struct {
	Applied  bool                 `json:"applied"`
	Previous string               `json:"previous_status"`
	Order    orders.OrderResponse `json:"order"`
}

// AdminAdvanceFulfillment moves a paid order to SHIPPED or a shipped order to
// DELIVERED. Repeating a transition that already happened returns applied=false.
func AdminAdvanceFulfillment(svc fulfillmentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := pathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload fulfillmentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseOrderStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		result, err := svc.AdvanceFulfillment(r.Context(), orderID, target)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, transitionResponse{
			Applied:  result.Applied,
			Previous: result.Previous.String(),
			Order:    orders.NewOrderResponse(result.Order),
		})
	}
}

type inventoryResponse struct {
	VariantID      uuid.UUID `json:"variant_id"`
	AvailableStock int       `json:"available_stock"`
	ReservedStock  int       `json:"reserved_stock"`
}

func newInventoryResponse(record *models.InventoryRecord) inventoryResponse {
	return inventoryResponse{
		VariantID:      record.VariantID,
		AvailableStock: record.AvailableStock,
		ReservedStock:  record.ReservedStock,
	}
}

// AdminInventoryGet reports the stock counters of a variant.
func AdminInventoryGet(svc InventoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		variantID, err := pathUUID(r, "variantID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		record, err := svc.Get(r.Context(), variantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newInventoryResponse(record))
	}
}

type inventoryAdjustRequest struct {
	Delta  int    `json:"delta" validate:"required"`
	Reason string `json:"reason" validate:"required,max=200"`
}

// AdminInventoryAdjust applies a manual stock correction. Reserved units are
// never touched; a delta that would drive available stock negative is refused.
func AdminInventoryAdjust(svc InventoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		variantID, err := pathUUID(r, "variantID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload inventoryAdjustRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		record, err := svc.Adjust(r.Context(), variantID, payload.Delta, validators.SanitizeString(payload.Reason, 200))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newInventoryResponse(record))
	}
}

// AdminPurgeOrderCache drops every cached order snapshot.
func AdminPurgeOrderCache(purger orderCachePurger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if purger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order cache unavailable"))
			return
		}
		removed, err := purger.PurgeOrders(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "purge order cache"))
			return
		}
		responses.WriteSuccess(w, map[string]int{"removed": removed})
	}
}

func pathUUID(r *http.Request, param string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, param+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+param)
	}
	return id, nil
}
