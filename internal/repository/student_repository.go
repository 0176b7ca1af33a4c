package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/edupanel/edupanel-api/internal/models"
)

// StudentRepository manages persistence for students.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a new student repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID returns a student scoped to its owner.
func (r *StudentRepository) FindByID(ctx context.Context, ownerID, id string) (*models.Student, error) {
	const query = `SELECT id, owner_id, name, roll_number, class_id, created_at, updated_at
        FROM students WHERE id = $1 AND owner_id = $2`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id, ownerID); err != nil {
		return nil, err
	}
	return &student, nil
}

// List returns students matching filter criteria plus the total count.
func (r *StudentRepository) List(ctx context.Context, ownerID string, filter models.StudentFilter) ([]models.Student, int, error) {
	f := newQueryFilter("FROM students WHERE owner_id = $1", ownerID)
	if filter.ClassID != "" {
		f.And("class_id = $%d", filter.ClassID)
	}
	if filter.Search != "" {
		f.And("(LOWER(name) LIKE $%[1]d OR LOWER(roll_number) LIKE $%[1]d)", "%"+strings.ToLower(filter.Search)+"%")
	}

	sortBy := sortColumn(filter.SortBy, map[string]bool{"name": true, "roll_number": true, "created_at": true}, "name")
	order := sortDirection(filter.SortOrder, "ASC")
	limit, offset := clampPage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT id, owner_id, name, roll_number, class_id, created_at, updated_at %s ORDER BY %s %s LIMIT %d OFFSET %d", f.where, sortBy, order, limit, offset)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, f.args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+f.where, f.args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}
