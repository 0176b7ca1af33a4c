package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/edupanel/edupanel-api/internal/models"
)

// ClassRepository manages persistence for classes.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// FindByID returns a class scoped to its owner.
func (r *ClassRepository) FindByID(ctx context.Context, ownerID, id string) (*models.Class, error) {
	const query = `SELECT id, owner_id, name, section, created_at, updated_at
        FROM classes WHERE id = $1 AND owner_id = $2`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id, ownerID); err != nil {
		return nil, err
	}
	return &class, nil
}

// List returns classes matching filter criteria plus the total count.
func (r *ClassRepository) List(ctx context.Context, ownerID string, filter models.ClassFilter) ([]models.Class, int, error) {
	f := newQueryFilter("FROM classes WHERE owner_id = $1", ownerID)
	if filter.Search != "" {
		f.And("LOWER(name) LIKE $%d", "%"+strings.ToLower(filter.Search)+"%")
	}

	sortBy := sortColumn(filter.SortBy, map[string]bool{"name": true, "created_at": true, "updated_at": true}, "name")
	order := sortDirection(filter.SortOrder, "ASC")
	limit, offset := clampPage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT id, owner_id, name, section, created_at, updated_at %s ORDER BY %s %s LIMIT %d OFFSET %d", f.where, sortBy, order, limit, offset)
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, f.args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+f.where, f.args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}
