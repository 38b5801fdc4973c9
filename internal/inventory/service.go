package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes ledger operations that run in their own transaction, for
// callers outside the order lifecycle such as stock receiving.
type Service struct {
	tx     txRunner
	db     *gorm.DB
	ledger *Ledger
	logg   *logger.Logger
}

func NewService(tx txRunner, db *gorm.DB, ledger *Ledger, logg *logger.Logger) (*Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{tx: tx, db: db, ledger: ledger, logg: logg}, nil
}

// Adjust applies a manual stock correction such as receiving or shrinkage.
func (s *Service) Adjust(ctx context.Context, variantID uuid.UUID, delta int, reason string) (*models.InventoryRecord, error) {
	var record *models.InventoryRecord
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		record, err = s.ledger.AdjustStock(ctx, tx, variantID, delta)
		return err
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"variant_id":      variantID.String(),
		"delta":           delta,
		"reason":          reason,
		"available_stock": record.AvailableStock,
	})
	s.logg.Info(ctx, "inventory adjusted")
	return record, nil
}

// Get returns the current counters for a variant.
func (s *Service) Get(ctx context.Context, variantID uuid.UUID) (*models.InventoryRecord, error) {
	return s.ledger.Get(ctx, s.db, variantID)
}
