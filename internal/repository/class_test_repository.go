package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/edupanel/edupanel-api/internal/models"
)

const classTestColumns = `id, owner_id, test_name, test_type, test_date, total_marks,
        class_id, class_name, section, subject_id, subject_name, student_marks,
        average_marks, highest_marks, lowest_marks, pass_count, fail_count,
        status, is_published, published_at, created_at, updated_at`

// ClassTestRepository manages persistence for class tests.
type ClassTestRepository struct {
	db *sqlx.DB
}

// NewClassTestRepository constructs a new class test repository.
func NewClassTestRepository(db *sqlx.DB) *ClassTestRepository {
	return &ClassTestRepository{db: db}
}

// IsUniqueViolation reports whether the error is a Postgres unique constraint
// violation. The class_tests table carries a unique index on
// (owner_id, class_id, subject_name, test_date) so duplicate tests fail at
// insert time instead of racing an application-level existence check.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// Create inserts a new class test.
func (r *ClassTestRepository) Create(ctx context.Context, test *models.ClassTest) error {
	if test.ID == "" {
		test.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	test.CreatedAt = now
	test.UpdatedAt = now
	const query = `INSERT INTO class_tests (id, owner_id, test_name, test_type, test_date, total_marks,
                class_id, class_name, section, subject_id, subject_name, student_marks,
                average_marks, highest_marks, lowest_marks, pass_count, fail_count,
                status, is_published, published_at, created_at, updated_at)
        VALUES (:id, :owner_id, :test_name, :test_type, :test_date, :total_marks,
                :class_id, :class_name, :section, :subject_id, :subject_name, :student_marks,
                :average_marks, :highest_marks, :lowest_marks, :pass_count, :fail_count,
                :status, :is_published, :published_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, test); err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("insert class test: %w", err)
	}
	return nil
}

// Update persists the full row for an existing class test.
func (r *ClassTestRepository) Update(ctx context.Context, test *models.ClassTest) error {
	test.UpdatedAt = time.Now().UTC()
	const query = `UPDATE class_tests SET test_name = :test_name, test_type = :test_type,
                test_date = :test_date, total_marks = :total_marks, subject_id = :subject_id,
                subject_name = :subject_name, student_marks = :student_marks,
                average_marks = :average_marks, highest_marks = :highest_marks,
                lowest_marks = :lowest_marks, pass_count = :pass_count, fail_count = :fail_count,
                status = :status, is_published = :is_published, published_at = :published_at,
                updated_at = :updated_at
        WHERE id = :id AND owner_id = :owner_id`
	result, err := r.db.NamedExecContext(ctx, query, test)
	if err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("update class test: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update class test: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindByID returns a single class test scoped to its owner.
func (r *ClassTestRepository) FindByID(ctx context.Context, ownerID, id string) (*models.ClassTest, error) {
	query := fmt.Sprintf("SELECT %s FROM class_tests WHERE id = $1 AND owner_id = $2", classTestColumns)
	var test models.ClassTest
	if err := r.db.GetContext(ctx, &test, query, id, ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find class test: %w", err)
	}
	return &test, nil
}

// Delete removes a class test permanently. This is a hard delete.
func (r *ClassTestRepository) Delete(ctx context.Context, ownerID, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM class_tests WHERE id = $1 AND owner_id = $2", id, ownerID)
	if err != nil {
		return fmt.Errorf("delete class test: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete class test: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns class tests matching filter criteria plus the total count.
func (r *ClassTestRepository) List(ctx context.Context, ownerID string, filter models.ClassTestFilter) ([]models.ClassTest, int, error) {
	f := newQueryFilter("FROM class_tests WHERE owner_id = $1", ownerID)
	if filter.ClassID != "" {
		f.And("class_id = $%d", filter.ClassID)
	}
	if filter.SubjectName != "" {
		f.And("subject_name = $%d", filter.SubjectName)
	}
	if filter.TestType != "" {
		f.And("test_type = $%d", filter.TestType)
	}
	if filter.Status != "" {
		f.And("status = $%d", filter.Status)
	}
	if filter.DateFrom != nil {
		f.And("test_date >= $%d", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		f.And("test_date <= $%d", *filter.DateTo)
	}
	if filter.Search != "" {
		f.And("LOWER(test_name) LIKE $%d", "%"+strings.ToLower(filter.Search)+"%")
	}

	sortBy := sortColumn(filter.SortBy, map[string]bool{
		"test_date":  true,
		"test_name":  true,
		"created_at": true,
		"updated_at": true,
	}, "test_date")
	order := sortDirection(filter.SortOrder, "DESC")
	limit, offset := clampPage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", classTestColumns, f.where, sortBy, order, limit, offset)
	var tests []models.ClassTest
	if err := r.db.SelectContext(ctx, &tests, query, f.args...); err != nil {
		return nil, 0, fmt.Errorf("list class tests: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+f.where, f.args...); err != nil {
		return nil, 0, fmt.Errorf("count class tests: %w", err)
	}
	return tests, total, nil
}

// ListPublished returns published tests matching the report filter. When
// StudentID is set, only tests whose roster contains that student match,
// using JSONB containment on the student_marks column.
func (r *ClassTestRepository) ListPublished(ctx context.Context, ownerID string, filter models.PublishedTestFilter) ([]models.ClassTest, error) {
	f := newQueryFilter("FROM class_tests WHERE owner_id = $1 AND is_published = TRUE", ownerID)
	if filter.ClassID != "" {
		f.And("class_id = $%d", filter.ClassID)
	}
	if filter.SubjectName != "" {
		f.And("subject_name = $%d", filter.SubjectName)
	}
	if filter.StudentID != "" {
		probe, err := json.Marshal([]map[string]string{{"student_id": filter.StudentID}})
		if err != nil {
			return nil, fmt.Errorf("marshal student probe: %w", err)
		}
		f.And("student_marks @> $%d::jsonb", string(probe))
	}
	if filter.DateFrom != nil {
		f.And("test_date >= $%d", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		f.And("test_date <= $%d", *filter.DateTo)
	}

	order := sortDirection(filter.OrderByDate, "ASC")
	query := fmt.Sprintf("SELECT %s %s ORDER BY test_date %s", classTestColumns, f.where, order)
	var tests []models.ClassTest
	if err := r.db.SelectContext(ctx, &tests, query, f.args...); err != nil {
		return nil, fmt.Errorf("list published tests: %w", err)
	}
	return tests, nil
}
