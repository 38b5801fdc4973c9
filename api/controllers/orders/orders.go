package orders

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/api/middleware"
	"github.com/angelmondragon/fulfillment-backend/api/responses"
	"github.com/angelmondragon/fulfillment-backend/api/validators"
	internalorders "github.com/angelmondragon/fulfillment-backend/internal/orders"
	"github.com/angelmondragon/fulfillment-backend/internal/payments"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/pagination"
)

// OrderService is the slice of the order service the handlers call.
type OrderService interface {
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*internalorders.OrderList, error)
	LookupGuestOrder(ctx context.Context, input internalorders.GuestLookupInput) (*models.Order, error)
	Cancel(ctx context.Context, input internalorders.CancelInput) (*internalorders.TransitionResult, error)
	Claim(ctx context.Context, input internalorders.ClaimInput) (*models.Order, error)
}

// SessionCreator opens a hosted payment page for a pending order.
type SessionCreator interface {
	CreateCheckoutSession(ctx context.Context, orderID uuid.UUID) (*payments.Session, error)
}

// Detail returns one order to its owner or an admin.
func Detail(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		order, err := loadAuthorized(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, NewOrderResponse(order))
	}
}

// List pages through the caller's orders, newest first.
func List(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID := middleware.UserUUIDFromContext(r.Context())
		if userID == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursor, err := validators.ParseQueryToken(r, "cursor", 128)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: cursor,
		}

		list, err := svc.ListForUser(r.Context(), *userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := orderListResponse{Orders: make([]OrderResponse, 0, len(list.Orders)), NextCursor: list.NextCursor}
		for i := range list.Orders {
			out.Orders = append(out.Orders, NewOrderResponse(&list.Orders[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// Cancel withdraws an unpaid order and releases its reserved stock.
func Cancel(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		order, err := loadAuthorized(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Cancel(r.Context(), internalorders.CancelInput{
			OrderID: order.ID,
			Reason:  enums.CancelReasonRequested,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, NewOrderResponse(result.Order))
	}
}

type claimRequest struct {
	Email string `json:"email" validate:"omitempty,email"`
}

// Claim attaches a guest order to the authenticated account. The contact
// email on the order must match the token email, or the one supplied in the
// body when the token carries none.
func Claim(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID := middleware.UserUUIDFromContext(r.Context())
		if userID == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing"))
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload claimRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		email := middleware.EmailFromContext(r.Context())
		if email == "" {
			email = payload.Email
		}

		order, err := svc.Claim(r.Context(), internalorders.ClaimInput{
			OrderID: orderID,
			UserID:  *userID,
			Email:   email,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, NewOrderResponse(order))
	}
}

type guestLookupRequest struct {
	OrderNumber string `json:"order_number" validate:"required,max=64"`
	Email       string `json:"email" validate:"required,email"`
}

// GuestLookup lets a guest read their order with the order number and the
// contact email given at checkout.
func GuestLookup(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		var payload guestLookupRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.LookupGuestOrder(r.Context(), internalorders.GuestLookupInput{
			OrderNumber: validators.SanitizeString(payload.OrderNumber, 64),
			Email:       payload.Email,
			ClientIP:    clientIP(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, NewOrderResponse(order))
	}
}

// clientIP is the peer address of the connection. Forwarded headers are
// not trusted here since any caller can set them.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type paymentSessionResponse struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
	ExpiresAt   string `json:"expires_at"`
}

// PaymentSession opens a provider checkout session for a pending order.
// Guests may open a session for a guest order; owned orders need the owner.
func PaymentSession(svc OrderService, sessions SessionCreator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || sessions == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments unavailable"))
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !order.IsGuest() {
			if err := authorize(r.Context(), order); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		session, err := sessions.CreateCheckoutSession(r.Context(), order.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, paymentSessionResponse{
			SessionID:   session.ID,
			RedirectURL: session.RedirectURL,
			ExpiresAt:   session.ExpiresAt.UTC().Format(time.RFC3339),
		})
	}
}

func loadAuthorized(r *http.Request, svc OrderService) (*models.Order, error) {
	orderID, err := parseOrderID(r)
	if err != nil {
		return nil, err
	}
	order, err := svc.Get(r.Context(), orderID)
	if err != nil {
		return nil, err
	}
	if err := authorize(r.Context(), order); err != nil {
		return nil, err
	}
	return order, nil
}

// authorize hides orders the caller does not own behind a not-found error so
// order ids cannot be probed.
func authorize(ctx context.Context, order *models.Order) error {
	if middleware.RoleFromContext(ctx) == string(enums.RoleAdmin) {
		return nil
	}
	userID := middleware.UserUUIDFromContext(ctx)
	if userID == nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if order.UserID == nil || *order.UserID != *userID {
		return pkgerrors.OrderNotFound(order.ID.String())
	}
	return nil
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return id, nil
}
