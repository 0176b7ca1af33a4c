package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edupanel/edupanel-api/internal/models"
)

// GradingScaleRepository persists owner-configured grading scales. Each owner
// has at most one scale; absence means the default bands apply.
type GradingScaleRepository struct {
	db *sqlx.DB
}

// NewGradingScaleRepository constructs a new grading scale repository.
func NewGradingScaleRepository(db *sqlx.DB) *GradingScaleRepository {
	return &GradingScaleRepository{db: db}
}

// FindByOwner returns the owner's configured scale, or sql.ErrNoRows.
func (r *GradingScaleRepository) FindByOwner(ctx context.Context, ownerID string) (*models.GradingScale, error) {
	const query = `SELECT id, owner_id, bands, created_at, updated_at
        FROM grading_scales WHERE owner_id = $1`
	var scale models.GradingScale
	if err := r.db.GetContext(ctx, &scale, query, ownerID); err != nil {
		return nil, err
	}
	return &scale, nil
}

// Upsert inserts or replaces the owner's grading scale.
func (r *GradingScaleRepository) Upsert(ctx context.Context, scale *models.GradingScale) error {
	if scale.ID == "" {
		scale.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if scale.CreatedAt.IsZero() {
		scale.CreatedAt = now
	}
	scale.UpdatedAt = now
	const query = `INSERT INTO grading_scales (id, owner_id, bands, created_at, updated_at)
        VALUES (:id, :owner_id, :bands, :created_at, :updated_at)
        ON CONFLICT (owner_id)
        DO UPDATE SET bands = EXCLUDED.bands, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, scale); err != nil {
		return fmt.Errorf("upsert grading scale: %w", err)
	}
	return nil
}

// Delete removes the owner's configured scale, reverting to defaults.
func (r *GradingScaleRepository) Delete(ctx context.Context, ownerID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM grading_scales WHERE owner_id = $1", ownerID); err != nil {
		return fmt.Errorf("delete grading scale: %w", err)
	}
	return nil
}
