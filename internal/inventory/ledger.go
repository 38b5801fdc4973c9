package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

// Ledger mutates per-variant stock counters. Every operation is a single
// conditional UPDATE so the row lock taken by the database linearizes
// concurrent callers on the same variant. Callers own the transaction.
type Ledger struct {
	logg *logger.Logger
}

// NewLedger builds a ledger. A nil logger discards invariant warnings.
func NewLedger(logg *logger.Logger) *Ledger {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Ledger{logg: logg}
}

const reserveSQL = `
UPDATE inventory
SET available_stock = available_stock - ?,
    reserved_stock = reserved_stock + ?,
    updated_at = CURRENT_TIMESTAMP
WHERE variant_id = ? AND available_stock >= ?`

const releaseSQL = `
UPDATE inventory
SET available_stock = available_stock + ?,
    reserved_stock = CASE WHEN reserved_stock > ? THEN reserved_stock - ? ELSE 0 END,
    updated_at = CURRENT_TIMESTAMP
WHERE variant_id = ?`

const confirmSaleSQL = `
UPDATE inventory
SET reserved_stock = CASE WHEN reserved_stock > ? THEN reserved_stock - ? ELSE 0 END,
    updated_at = CURRENT_TIMESTAMP
WHERE variant_id = ?`

const adjustSQL = `
UPDATE inventory
SET available_stock = available_stock + ?,
    updated_at = CURRENT_TIMESTAMP
WHERE variant_id = ? AND available_stock + ? >= 0`

// Reserve moves qty units from available to reserved, failing with
// InsufficientStock when fewer than qty units are available.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int) error {
	if err := validateQty(variantID, qty); err != nil {
		return err
	}
	res := tx.WithContext(ctx).Exec(reserveSQL, qty, qty, variantID, qty)
	if res.Error != nil {
		return db.Classify(res.Error, "reserve stock")
	}
	if res.RowsAffected == 1 {
		return nil
	}

	available := 0
	record, err := l.find(ctx, tx, variantID)
	if err != nil {
		return err
	}
	if record != nil {
		available = record.AvailableStock
	}
	return pkgerrors.InsufficientStock(variantID.String(), qty, available)
}

// Release returns qty units to available and drops the reservation, never
// letting reserved fall below zero.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int) error {
	if err := validateQty(variantID, qty); err != nil {
		return err
	}
	return l.applyToReservation(ctx, tx, variantID, qty, "release", releaseSQL, qty, qty, qty, variantID)
}

// ConfirmSale consumes qty reserved units. Available stock is untouched
// because those units left availability at reserve time.
func (l *Ledger) ConfirmSale(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int) error {
	if err := validateQty(variantID, qty); err != nil {
		return err
	}
	return l.applyToReservation(ctx, tx, variantID, qty, "confirm sale", confirmSaleSQL, qty, qty, variantID)
}

func (l *Ledger) applyToReservation(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, qty int, op, query string, args ...any) error {
	before, err := l.find(ctx, tx, variantID)
	if err != nil {
		return err
	}
	if before == nil {
		err := pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("%s: no inventory record for variant %s", op, variantID))
		l.logg.Error(l.logg.WithVariantID(ctx, variantID.String()), "inventory record missing for reservation", err)
		return err
	}
	if before.ReservedStock < qty {
		fields := map[string]any{"variant_id": variantID.String(), "reserved_stock": before.ReservedStock, "quantity": qty, "operation": op}
		l.logg.Warn(l.logg.WithFields(ctx, fields), "reservation smaller than requested quantity; clamping at zero")
	}

	res := tx.WithContext(ctx).Exec(query, args...)
	if res.Error != nil {
		return db.Classify(res.Error, op)
	}
	return nil
}

// AdjustStock applies a manual correction to available stock, creating the
// record at zero on first use. A result below zero fails with NegativeStock.
func (l *Ledger) AdjustStock(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, delta int) (*models.InventoryRecord, error) {
	if variantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}

	err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "variant_id"}}, DoNothing: true}).
		Create(&models.InventoryRecord{VariantID: variantID}).Error
	if err != nil {
		return nil, db.Classify(err, "ensure inventory record")
	}

	if delta != 0 {
		res := tx.WithContext(ctx).Exec(adjustSQL, delta, variantID, delta)
		if res.Error != nil {
			return nil, db.Classify(res.Error, "adjust stock")
		}
		if res.RowsAffected == 0 {
			current, findErr := l.find(ctx, tx, variantID)
			if findErr != nil {
				return nil, findErr
			}
			available := 0
			if current != nil {
				available = current.AvailableStock
			}
			negErr := pkgerrors.NegativeStock(variantID.String(), available, delta)
			fields := map[string]any{"variant_id": variantID.String(), "available_stock": available, "delta": delta}
			l.logg.Error(l.logg.WithFields(ctx, fields), "stock adjustment rejected", negErr)
			return nil, negErr
		}
	}

	record, err := l.find(ctx, tx, variantID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory record vanished after adjustment")
	}
	return record, nil
}

// Get returns the record for variantID or a NotFound error.
func (l *Ledger) Get(ctx context.Context, tx *gorm.DB, variantID uuid.UUID) (*models.InventoryRecord, error) {
	record, err := l.find(ctx, tx, variantID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("no inventory for variant %s", variantID))
	}
	return record, nil
}

func (l *Ledger) find(ctx context.Context, tx *gorm.DB, variantID uuid.UUID) (*models.InventoryRecord, error) {
	var record models.InventoryRecord
	err := tx.WithContext(ctx).Where("variant_id = ?", variantID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, db.Classify(err, "load inventory record")
	}
	return &record, nil
}

func validateQty(variantID uuid.UUID, qty int) error {
	if variantID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	return nil
}
