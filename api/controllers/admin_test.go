package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	internalorders "github.com/angelmondragon/fulfillment-backend/internal/orders"
	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
)

type stubFulfillment struct {
	target enums.OrderStatus
	err    error
}

func (s *stubFulfillment) AdvanceFulfillment(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus) (*internalorders.TransitionResult, error) {
	s.target = target
	if s.err != nil {
		return nil, s.err
	}
	return &internalorders.TransitionResult{
		Order:    &models.Order{ID: orderID, Status: target},
		Previous: enums.OrderStatusPaid,
		Applied:  true,
	}, nil
}

type stubInventory struct {
	delta  int
	reason string
	err    error
}

func (s *stubInventory) Adjust(ctx context.Context, variantID uuid.UUID, delta int, reason string) (*models.InventoryRecord, error) {
	s.delta = delta
	s.reason = reason
	if s.err != nil {
		return nil, s.err
	}
	return &models.InventoryRecord{VariantID: variantID, AvailableStock: 10 + delta, ReservedStock: 2}, nil
}

func (s *stubInventory) Get(ctx context.Context, variantID uuid.UUID) (*models.InventoryRecord, error) {
	return &models.InventoryRecord{VariantID: variantID, AvailableStock: 10, ReservedStock: 2}, nil
}

type stubPurger struct {
	removed int
	err     error
}

func (s stubPurger) PurgeOrders(context.Context) (int, error) {
	return s.removed, s.err
}

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

func withParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestAdminAdvanceFulfillment(t *testing.T) {
	svc := &stubFulfillment{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/x/fulfillment", strings.NewReader(`{"status":"SHIPPED"}`))
	req = withParam(req, "orderID", uuid.NewString())
	resp := httptest.NewRecorder()
	AdminAdvanceFulfillment(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.target != enums.OrderStatusShipped {
		t.Fatalf("expected SHIPPED target got %s", svc.target)
	}
	if !strings.Contains(resp.Body.String(), `"previous_status":"PAID"`) {
		t.Fatalf("missing previous status in %s", resp.Body.String())
	}
}

func TestAdminAdvanceFulfillmentRejectsOtherTargets(t *testing.T) {
	svc := &stubFulfillment{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/x/fulfillment", strings.NewReader(`{"status":"PAID"}`))
	req = withParam(req, "orderID", uuid.NewString())
	resp := httptest.NewRecorder()
	AdminAdvanceFulfillment(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.target != "" {
		t.Fatalf("service should not be called")
	}
}

func TestAdminAdvanceFulfillmentStateConflict(t *testing.T) {
	svc := &stubFulfillment{err: pkgerrors.New(pkgerrors.CodeStateConflict, "order is PENDING")}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/x/fulfillment", strings.NewReader(`{"status":"DELIVERED"}`))
	req = withParam(req, "orderID", uuid.NewString())
	resp := httptest.NewRecorder()
	AdminAdvanceFulfillment(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestAdminInventoryAdjust(t *testing.T) {
	svc := &stubInventory{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/inventory/x/adjust", strings.NewReader(`{"delta":-3,"reason":" shrinkage "}`))
	req = withParam(req, "variantID", uuid.NewString())
	resp := httptest.NewRecorder()
	AdminInventoryAdjust(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.delta != -3 || svc.reason != "shrinkage" {
		t.Fatalf("unexpected adjust call %d %q", svc.delta, svc.reason)
	}
	if !strings.Contains(resp.Body.String(), `"available_stock":7`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestAdminInventoryAdjustNegativeStock(t *testing.T) {
	svc := &stubInventory{err: pkgerrors.NegativeStock("v", 1, -5)}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/inventory/x/adjust", strings.NewReader(`{"delta":-5,"reason":"count"}`))
	req = withParam(req, "variantID", uuid.NewString())
	resp := httptest.NewRecorder()
	AdminInventoryAdjust(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestAdminInventoryGet(t *testing.T) {
	req := withParam(httptest.NewRequest(http.MethodGet, "/api/v1/admin/inventory/x", nil), "variantID", uuid.NewString())
	resp := httptest.NewRecorder()
	AdminInventoryGet(&stubInventory{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"reserved_stock":2`) {
		t.Fatalf("unexpected response %d %s", resp.Code, resp.Body.String())
	}
}

func TestAdminPurgeOrderCache(t *testing.T) {
	resp := httptest.NewRecorder()
	AdminPurgeOrderCache(stubPurger{removed: 4}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"removed":4`) {
		t.Fatalf("unexpected response %d %s", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	AdminPurgeOrderCache(stubPurger{err: errors.New("redis down")}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}

	resp := httptest.NewRecorder()
	HealthReady(cfg, map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{}}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp.Header().Get("X-Fulfillment-Env") != "test" {
		t.Fatalf("missing env header")
	}

	resp = httptest.NewRecorder()
	HealthReady(cfg, map[string]Pinger{"redis": stubPinger{err: errors.New("refused")}}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}
