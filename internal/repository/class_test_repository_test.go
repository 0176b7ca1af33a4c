package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupanel/edupanel-api/internal/models"
)

func newClassTestMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func classTestRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "owner_id", "test_name", "test_type", "test_date", "total_marks",
		"class_id", "class_name", "section", "subject_id", "subject_name", "student_marks",
		"average_marks", "highest_marks", "lowest_marks", "pass_count", "fail_count",
		"status", "is_published", "published_at", "created_at", "updated_at",
	})
}

func TestClassTestRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newClassTestMock(t)
	defer cleanup()
	repo := NewClassTestRepository(db)

	mock.ExpectExec("INSERT INTO class_tests").
		WillReturnResult(sqlmock.NewResult(1, 1))

	test := &models.ClassTest{
		OwnerID:     "owner-1",
		TestName:    "Algebra Unit 1",
		TestType:    models.TestTypeUnit,
		TestDate:    time.Date(2024, 11, 4, 0, 0, 0, 0, time.UTC),
		TotalMarks:  100,
		ClassID:     "class-1",
		ClassName:   "Grade 10",
		SubjectName: "Mathematics",
		Marks:       models.StudentMarks{{StudentID: "s1", StudentName: "Asha", ObtainedMarks: 72}},
		Status:      models.TestStatusDraft,
	}
	err := repo.Create(context.Background(), test)
	require.NoError(t, err)
	assert.NotEmpty(t, test.ID)
	assert.False(t, test.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassTestRepositoryCreatePassesThroughUniqueViolation(t *testing.T) {
	db, mock, cleanup := newClassTestMock(t)
	defer cleanup()
	repo := NewClassTestRepository(db)

	mock.ExpectExec("INSERT INTO class_tests").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.ClassTest{OwnerID: "owner-1"})
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(sql.ErrNoRows))
	assert.False(t, IsUniqueViolation(nil))
}

func TestClassTestRepositoryFindByIDScansRoster(t *testing.T) {
	db, mock, cleanup := newClassTestMock(t)
	defer cleanup()
	repo := NewClassTestRepository(db)

	now := time.Now().UTC()
	rows := classTestRows().AddRow(
		"test-1", "owner-1", "Algebra Unit 1", "unit", now, 100.0,
		"class-1", "Grade 10", "A", nil, "Mathematics",
		`[{"student_id":"s1","student_name":"Asha","obtained_marks":72}]`,
		72.0, 72.0, 72.0, 1, 0,
		"draft", false, nil, now, now,
	)
	mock.ExpectQuery("SELECT (.+) FROM class_tests WHERE id = \\$1 AND owner_id = \\$2").
		WithArgs("test-1", "owner-1").
		WillReturnRows(rows)

	test, err := repo.FindByID(context.Background(), "owner-1", "test-1")
	require.NoError(t, err)
	assert.Equal(t, "Algebra Unit 1", test.TestName)
	require.Len(t, test.Marks, 1)
	assert.Equal(t, "Asha", test.Marks[0].StudentName)
	assert.Equal(t, 72.0, test.Marks[0].ObtainedMarks)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassTestRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newClassTestMock(t)
	defer cleanup()
	repo := NewClassTestRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM class_tests WHERE id = \\$1 AND owner_id = \\$2").
		WithArgs("missing", "owner-1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "owner-1", "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassTestRepositoryListFiltersAndCounts(t *testing.T) {
	db, mock, cleanup := newClassTestMock(t)
	defer cleanup()
	repo := NewClassTestRepository(db)

	now := time.Now().UTC()
	rows := classTestRows().AddRow(
		"test-1", "owner-1", "Algebra Unit 1", "unit", now, 100.0,
		"class-1", "Grade 10", "A", nil, "Mathematics", `[]`,
		0.0, 0.0, 0.0, 0, 0, "draft", false, nil, now, now,
	)
	mock.ExpectQuery("SELECT (.+) FROM class_tests WHERE owner_id = \\$1 AND class_id = \\$2 AND subject_name = \\$3 ORDER BY test_date DESC LIMIT 20 OFFSET 0").
		WithArgs("owner-1", "class-1", "Mathematics").
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM class_tests WHERE owner_id = \\$1 AND class_id = \\$2 AND subject_name = \\$3").
		WithArgs("owner-1", "class-1", "Mathematics").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	tests, total, err := repo.List(context.Background(), "owner-1", models.ClassTestFilter{
		ClassID:     "class-1",
		SubjectName: "Mathematics",
	})
	require.NoError(t, err)
	assert.Len(t, tests, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassTestRepositoryListPublishedStudentProbe(t *testing.T) {
	db, mock, cleanup := newClassTestMock(t)
	defer cleanup()
	repo := NewClassTestRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM class_tests WHERE owner_id = \\$1 AND is_published = TRUE AND student_marks @> \\$2::jsonb ORDER BY test_date ASC").
		WithArgs("owner-1", `[{"student_id":"s1"}]`).
		WillReturnRows(classTestRows())

	tests, err := repo.ListPublished(context.Background(), "owner-1", models.PublishedTestFilter{StudentID: "s1"})
	require.NoError(t, err)
	assert.Empty(t, tests)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassTestRepositoryDeleteMissingRow(t *testing.T) {
	db, mock, cleanup := newClassTestMock(t)
	defer cleanup()
	repo := NewClassTestRepository(db)

	mock.ExpectExec("DELETE FROM class_tests WHERE id = \\$1 AND owner_id = \\$2").
		WithArgs("missing", "owner-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "owner-1", "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
