package orders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/internal/inventory"
	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/types"
)

func newOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard, Format: "json"})
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []enums.OrderEvent
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, event enums.OrderEvent, _ *models.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) Events() []enums.OrderEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]enums.OrderEvent(nil), n.events...)
}

type recordingCache struct {
	mu          sync.Mutex
	entries     map[uuid.UUID]*models.Order
	invalidated []uuid.UUID
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: map[uuid.UUID]*models.Order{}}
}

func (c *recordingCache) Get(_ context.Context, orderID uuid.UUID) (*models.Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	order, ok := c.entries[orderID]
	return order, ok
}

func (c *recordingCache) Set(_ context.Context, order *models.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[order.ID] = order
}

func (c *recordingCache) Invalidate(_ context.Context, order *models.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, order.ID)
	c.invalidated = append(c.invalidated, order.ID)
}

type stubLimiter struct {
	allowed bool
	err     error
	scopes  []string
}

func (l *stubLimiter) FixedWindowAllow(_ context.Context, scope string, _ int64, _ time.Duration) (bool, int64, error) {
	l.scopes = append(l.scopes, scope)
	if l.err != nil {
		return false, 0, l.err
	}
	return l.allowed, 1, nil
}

type fixture struct {
	conn     *gorm.DB
	svc      Service
	notifier *recordingNotifier
	cache    *recordingCache
	limiter  *stubLimiter
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := newOrdersTestDB(t)
	f := &fixture{
		conn:     conn,
		notifier: &recordingNotifier{},
		cache:    newRecordingCache(),
		limiter:  &stubLimiter{allowed: true},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(conn),
		Tx:       db.NewFromConn(conn),
		Ledger:   inventory.NewLedger(testLogger()),
		Notifier: f.notifier,
		Cache:    f.cache,
		Limiter:  f.limiter,
		Logger:   testLogger(),
		Now:      func() time.Time { return f.now },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

type seededLine struct {
	variantID uuid.UUID
	qty       int
	unitCents int
}

// seedPendingOrder creates a PENDING guest order whose items are already
// reserved, mirroring the state checkout leaves behind.
func (f *fixture) seedPendingOrder(t *testing.T, email string, lines ...seededLine) *models.Order {
	t.Helper()
	subtotal := 0
	for _, line := range lines {
		subtotal += line.qty * line.unitCents
	}
	order := &models.Order{
		OrderNumber:     "ORD-" + uuid.NewString()[:8],
		Status:          enums.OrderStatusPending,
		Currency:        enums.CurrencyUSD,
		SubtotalCents:   subtotal,
		TotalCents:      subtotal,
		ShippingAddress: testAddress(email),
	}
	require.NoError(t, f.conn.Omit("Items").Create(order).Error)

	for _, line := range lines {
		require.NoError(t, f.conn.Create(&models.OrderItem{
			OrderID:        order.ID,
			VariantID:      line.variantID,
			ProductName:    "Widget",
			Attributes:     types.Attributes{"color": "blue"},
			UnitPriceCents: line.unitCents,
			Quantity:       line.qty,
			LineTotalCents: line.qty * line.unitCents,
		}).Error)
	}
	return order
}

func (f *fixture) seedStock(t *testing.T, available, reserved int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, f.conn.Create(&models.InventoryRecord{VariantID: id, AvailableStock: available, ReservedStock: reserved}).Error)
	return id
}

func (f *fixture) stock(t *testing.T, id uuid.UUID) models.InventoryRecord {
	t.Helper()
	var record models.InventoryRecord
	require.NoError(t, f.conn.Where("variant_id = ?", id).Take(&record).Error)
	return record
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, f.conn.Where("id = ?", id).Take(&order).Error)
	return order
}

func (f *fixture) attachSession(t *testing.T, order *models.Order, ref string) {
	t.Helper()
	_, err := f.svc.AttachPaymentSession(context.Background(), PaymentSessionInput{
		OrderID:           order.ID,
		Provider:          enums.PaymentProviderStripe,
		ProviderReference: ref,
		AmountCents:       order.TotalCents,
		Currency:          enums.CurrencyUSD,
	})
	require.NoError(t, err)
}

func (f *fixture) payment(t *testing.T, ref string) models.Payment {
	t.Helper()
	var payment models.Payment
	require.NoError(t, f.conn.Where("provider_reference = ?", ref).Take(&payment).Error)
	return payment
}

func testAddress(email string) types.Address {
	return types.Address{
		Name:       "Ada Lovelace",
		Email:      email,
		Line1:      "1 Main St",
		City:       "Springfield",
		State:      "IL",
		PostalCode: "62701",
		Country:    "US",
	}
}

var errNotifierDown = errors.New("notifier down")
