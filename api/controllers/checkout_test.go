package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/fulfillment-backend/internal/checkout"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
)

type stubCheckoutService struct {
	input checkoutsvc.Input
	err   error
}

func (s *stubCheckoutService) Execute(ctx context.Context, input checkoutsvc.Input) (*models.Order, error) {
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	return &models.Order{
		ID:              uuid.New(),
		OrderNumber:     "ORD-00000001",
		UserID:          input.UserID,
		Status:          enums.OrderStatusPending,
		Currency:        enums.CurrencyUSD,
		SubtotalCents:   1500,
		TotalCents:      1500,
		ShippingAddress: input.ShippingAddress,
	}, nil
}

const shippingJSON = `"shipping_address":{"name":"Ada","email":"ada@example.com","line1":"1 Main","city":"Austin","state":"TX","postal_code":"78701"}`

func TestCheckoutGuestItems(t *testing.T) {
	svc := &stubCheckoutService{}
	variant := uuid.New()
	body := `{"items":[{"variant_id":"` + variant.String() + `","quantity":3}],` + shippingJSON + `}`

	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body)))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.input.UserID != nil {
		t.Fatalf("guest checkout should carry no user")
	}
	if len(svc.input.Items) != 1 || svc.input.Items[0].VariantID != variant || svc.input.Items[0].Quantity != 3 {
		t.Fatalf("unexpected items %+v", svc.input.Items)
	}
	if svc.input.Items[0].UnitPriceCents != 0 {
		t.Fatalf("client cannot quote prices")
	}
}

func TestCheckoutUserCart(t *testing.T) {
	svc := &stubCheckoutService{}
	cartID := uuid.New()
	user := uuid.New()
	body := `{"cart_id":"` + cartID.String() + `",` + shippingJSON + `}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	req = req.WithContext(middleware.WithUserID(req.Context(), user.String()))
	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
	if svc.input.CartID == nil || *svc.input.CartID != cartID {
		t.Fatalf("expected cart %s", cartID)
	}
	if svc.input.UserID == nil || *svc.input.UserID != user {
		t.Fatalf("expected user %s", user)
	}
}

func TestCheckoutValidation(t *testing.T) {
	cases := map[string]string{
		"no source":      `{` + shippingJSON + `}`,
		"no address":     `{"items":[{"variant_id":"` + uuid.NewString() + `","quantity":1}]}`,
		"zero quantity":  `{"items":[{"variant_id":"` + uuid.NewString() + `","quantity":0}],` + shippingJSON + `}`,
		"unknown field":  `{"items":[{"variant_id":"` + uuid.NewString() + `","quantity":1,"unit_price_cents":1}],` + shippingJSON + `}`,
		"malformed json": `{"items":`,
	}
	for name, body := range cases {
		svc := &stubCheckoutService{}
		resp := httptest.NewRecorder()
		Checkout(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body)))
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d: %s", name, resp.Code, resp.Body.String())
		}
	}
}

func TestCheckoutReportsInsufficientStock(t *testing.T) {
	variant := uuid.New()
	svc := &stubCheckoutService{err: pkgerrors.InsufficientStock(variant.String(), 5, 2)}
	body := `{"items":[{"variant_id":"` + variant.String() + `","quantity":5}],` + shippingJSON + `}`

	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body)))

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	var payload struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeInsufficientStock) {
		t.Fatalf("unexpected code %s", payload.Error.Code)
	}
	if payload.Error.Details["variant_id"] != variant.String() {
		t.Fatalf("expected variant in details, got %v", payload.Error.Details)
	}
}
