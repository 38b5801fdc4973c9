package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
)

// Repository reads the product variants checkout snapshots into orders.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a catalog repository to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository scoped to the transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindVariants returns live variants keyed by id. Soft-deleted variants are
// left out, so callers treat them as unavailable.
func (r *Repository) FindVariants(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.ProductVariant, error) {
	out := make(map[uuid.UUID]models.ProductVariant, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var variants []models.ProductVariant
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&variants).Error; err != nil {
		return nil, err
	}
	for _, variant := range variants {
		out[variant.ID] = variant
	}
	return out, nil
}

// FindVariant loads one live variant.
func (r *Repository) FindVariant(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&variant).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

// CreateVariant inserts a catalog row. Used by seeding and tests.
func (r *Repository) CreateVariant(ctx context.Context, variant *models.ProductVariant) error {
	return r.db.WithContext(ctx).Create(variant).Error
}

// DeleteVariant soft-deletes a variant. Orders keep their snapshots.
func (r *Repository) DeleteVariant(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ProductVariant{}).Error
}
