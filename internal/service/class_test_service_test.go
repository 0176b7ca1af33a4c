package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edupanel/edupanel-api/internal/dto"
	"github.com/edupanel/edupanel-api/internal/models"
	appErrors "github.com/edupanel/edupanel-api/pkg/errors"
)

type mockClassTestStore struct {
	tests     map[string]*models.ClassTest
	createErr error
	updateErr error
}

func newMockClassTestStore() *mockClassTestStore {
	return &mockClassTestStore{tests: make(map[string]*models.ClassTest)}
}

func (m *mockClassTestStore) Create(_ context.Context, test *models.ClassTest) error {
	if m.createErr != nil {
		return m.createErr
	}
	if test.ID == "" {
		test.ID = "test-" + test.TestName
	}
	copied := *test
	m.tests[test.ID] = &copied
	return nil
}

func (m *mockClassTestStore) Update(_ context.Context, test *models.ClassTest) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.tests[test.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *test
	m.tests[test.ID] = &copied
	return nil
}

func (m *mockClassTestStore) FindByID(_ context.Context, ownerID, id string) (*models.ClassTest, error) {
	test, ok := m.tests[id]
	if !ok || test.OwnerID != ownerID {
		return nil, sql.ErrNoRows
	}
	copied := *test
	return &copied, nil
}

func (m *mockClassTestStore) Delete(_ context.Context, ownerID, id string) error {
	test, ok := m.tests[id]
	if !ok || test.OwnerID != ownerID {
		return sql.ErrNoRows
	}
	delete(m.tests, id)
	return nil
}

func (m *mockClassTestStore) List(_ context.Context, ownerID string, _ models.ClassTestFilter) ([]models.ClassTest, int, error) {
	var out []models.ClassTest
	for _, test := range m.tests {
		if test.OwnerID == ownerID {
			out = append(out, *test)
		}
	}
	return out, len(out), nil
}

type mockClassDirectory struct {
	classes map[string]*models.Class
}

func (m *mockClassDirectory) FindByID(_ context.Context, ownerID, id string) (*models.Class, error) {
	class, ok := m.classes[id]
	if !ok || class.OwnerID != ownerID {
		return nil, sql.ErrNoRows
	}
	return class, nil
}

type mockStudentDirectory struct {
	students map[string]*models.Student
}

func (m *mockStudentDirectory) FindByID(_ context.Context, ownerID, id string) (*models.Student, error) {
	student, ok := m.students[id]
	if !ok || student.OwnerID != ownerID {
		return nil, sql.ErrNoRows
	}
	return student, nil
}

func newClassTestFixture() (*ClassTestService, *mockClassTestStore) {
	store := newMockClassTestStore()
	classes := &mockClassDirectory{classes: map[string]*models.Class{
		"class-1": {ID: "class-1", OwnerID: "owner-1", Name: "Grade 10", Section: "A"},
	}}
	students := &mockStudentDirectory{students: map[string]*models.Student{
		"stu-1": {ID: "stu-1", OwnerID: "owner-1", Name: "Asha Verma", RollNumber: "10"},
	}}
	svc := NewClassTestService(store, classes, students, nil, nil, zap.NewNop())
	return svc, store
}

func TestRecomputeStatistics(t *testing.T) {
	marks := models.StudentMarks{
		{StudentID: "a", ObtainedMarks: 90},
		{StudentID: "b", ObtainedMarks: 45},
		{StudentID: "c", ObtainedMarks: 60},
		{StudentID: "d", ObtainedMarks: 20},
	}

	stats := RecomputeStatistics(marks, 100)
	assert.Equal(t, 53.75, stats.AverageMarks)
	assert.Equal(t, 90.0, stats.HighestMarks)
	assert.Equal(t, 20.0, stats.LowestMarks)
	assert.Equal(t, 3, stats.PassCount)
	assert.Equal(t, 1, stats.FailCount)
}

func TestRecomputeStatisticsEmptyRoster(t *testing.T) {
	stats := RecomputeStatistics(nil, 100)
	assert.Equal(t, models.TestStatistics{}, stats)
}

func TestRecomputeStatisticsIdempotent(t *testing.T) {
	marks := models.StudentMarks{{StudentID: "a", ObtainedMarks: 33}, {StudentID: "b", ObtainedMarks: 32.9}}
	first := RecomputeStatistics(marks, 100)
	second := RecomputeStatistics(marks, 100)
	assert.Equal(t, first, second)
	// 33% of 100 is the exact pass boundary
	assert.Equal(t, 1, first.PassCount)
	assert.Equal(t, 1, first.FailCount)
}

func TestRecomputeStatisticsStoresExactMean(t *testing.T) {
	marks := models.StudentMarks{
		{StudentID: "a", ObtainedMarks: 10},
		{StudentID: "b", ObtainedMarks: 20},
		{StudentID: "c", ObtainedMarks: 40},
	}

	stats := RecomputeStatistics(marks, 100)
	// the stored average is not rounded
	assert.Equal(t, 70.0/3.0, stats.AverageMarks)
}

func TestClassTestCreateDenormalisesClass(t *testing.T) {
	svc, _ := newClassTestFixture()

	test, err := svc.Create(context.Background(), "owner-1", dto.CreateClassTestRequest{
		TestName:    "Algebra Unit 1",
		TestDate:    "2024-11-04",
		TotalMarks:  100,
		ClassID:     "class-1",
		SubjectName: "Mathematics",
		StudentMarks: []dto.MarkInput{
			{StudentID: "stu-1", ObtainedMarks: 72},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Grade 10", test.ClassName)
	assert.Equal(t, "A", test.Section)
	assert.Equal(t, models.TestStatusDraft, test.Status)
	assert.False(t, test.IsPublished)
	assert.Equal(t, models.TestTypeUnit, test.TestType)
	// student name backfilled from the directory
	require.Len(t, test.Marks, 1)
	assert.Equal(t, "Asha Verma", test.Marks[0].StudentName)
	assert.Equal(t, "10", test.Marks[0].RollNo)
	assert.Equal(t, 72.0, test.AverageMarks)
	assert.Equal(t, 1, test.PassCount)
}

func TestClassTestCreateRejectsMarksAboveTotal(t *testing.T) {
	svc, _ := newClassTestFixture()

	_, err := svc.Create(context.Background(), "owner-1", dto.CreateClassTestRequest{
		TestName:    "Quiz",
		TestDate:    "2024-11-04",
		TotalMarks:  50,
		ClassID:     "class-1",
		SubjectName: "Science",
		StudentMarks: []dto.MarkInput{
			{StudentName: "Ravi", ObtainedMarks: 55},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrMarksExceedTotal)
}

func TestClassTestCreateUnknownClass(t *testing.T) {
	svc, _ := newClassTestFixture()

	_, err := svc.Create(context.Background(), "owner-1", dto.CreateClassTestRequest{
		TestName:    "Quiz",
		TestDate:    "2024-11-04",
		TotalMarks:  50,
		ClassID:     "missing",
		SubjectName: "Science",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, 404, appErr.Status)
}

func TestClassTestCreateDuplicateMapsToConflict(t *testing.T) {
	svc, store := newClassTestFixture()
	store.createErr = &pq.Error{Code: "23505"}

	_, err := svc.Create(context.Background(), "owner-1", dto.CreateClassTestRequest{
		TestName:    "Quiz",
		TestDate:    "2024-11-04",
		TotalMarks:  50,
		ClassID:     "class-1",
		SubjectName: "Science",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrDuplicateTest)
}

func TestClassTestCreateRejectsDuplicateRosterEntry(t *testing.T) {
	svc, _ := newClassTestFixture()

	_, err := svc.Create(context.Background(), "owner-1", dto.CreateClassTestRequest{
		TestName:    "Quiz",
		TestDate:    "2024-11-04",
		TotalMarks:  50,
		ClassID:     "class-1",
		SubjectName: "Science",
		StudentMarks: []dto.MarkInput{
			{StudentID: "stu-1", ObtainedMarks: 20},
			{StudentID: "stu-1", ObtainedMarks: 30},
		},
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, 400, appErr.Status)
}

func TestClassTestPublishIsIdempotent(t *testing.T) {
	svc, store := newClassTestFixture()

	created, err := svc.Create(context.Background(), "owner-1", dto.CreateClassTestRequest{
		TestName:    "Quiz",
		TestDate:    "2024-11-04",
		TotalMarks:  50,
		ClassID:     "class-1",
		SubjectName: "Science",
		StudentMarks: []dto.MarkInput{
			{StudentID: "stu-1", ObtainedMarks: 40},
		},
	})
	require.NoError(t, err)

	published, err := svc.Publish(context.Background(), "owner-1", created.ID)
	require.NoError(t, err)
	require.NotNil(t, published.PublishedAt)
	assert.True(t, published.IsPublished)
	assert.Equal(t, models.TestStatusPublished, published.Status)
	firstPublishedAt := *published.PublishedAt

	time.Sleep(5 * time.Millisecond)
	again, err := svc.Publish(context.Background(), "owner-1", created.ID)
	require.NoError(t, err)
	require.NotNil(t, again.PublishedAt)
	assert.Equal(t, firstPublishedAt, *again.PublishedAt)

	stored := store.tests[created.ID]
	assert.Equal(t, firstPublishedAt, *stored.PublishedAt)
}

func TestClassTestUpdateRecomputesStatistics(t *testing.T) {
	svc, _ := newClassTestFixture()

	created, err := svc.Create(context.Background(), "owner-1", dto.CreateClassTestRequest{
		TestName:    "Quiz",
		TestDate:    "2024-11-04",
		TotalMarks:  100,
		ClassID:     "class-1",
		SubjectName: "Science",
		StudentMarks: []dto.MarkInput{
			{StudentName: "Ravi", ObtainedMarks: 90},
			{StudentName: "Meena", ObtainedMarks: 20},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 55.0, created.AverageMarks)

	newMarks := []dto.MarkInput{
		{StudentName: "Ravi", ObtainedMarks: 80},
		{StudentName: "Meena", ObtainedMarks: 60},
	}
	updated, err := svc.Update(context.Background(), "owner-1", created.ID, dto.UpdateClassTestRequest{StudentMarks: &newMarks})
	require.NoError(t, err)
	assert.Equal(t, 70.0, updated.AverageMarks)
	assert.Equal(t, 80.0, updated.HighestMarks)
	assert.Equal(t, 60.0, updated.LowestMarks)
	assert.Equal(t, 2, updated.PassCount)
}

func TestClassTestUpdateTotalBelowExistingMarks(t *testing.T) {
	svc, _ := newClassTestFixture()

	created, err := svc.Create(context.Background(), "owner-1", dto.CreateClassTestRequest{
		TestName:    "Quiz",
		TestDate:    "2024-11-04",
		TotalMarks:  100,
		ClassID:     "class-1",
		SubjectName: "Science",
		StudentMarks: []dto.MarkInput{
			{StudentName: "Ravi", ObtainedMarks: 90},
		},
	})
	require.NoError(t, err)

	lowered := 50.0
	_, err = svc.Update(context.Background(), "owner-1", created.ID, dto.UpdateClassTestRequest{TotalMarks: &lowered})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrMarksExceedTotal)
}

func TestClassTestGetUnknownID(t *testing.T) {
	svc, _ := newClassTestFixture()

	_, err := svc.Get(context.Background(), "owner-1", "missing")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, 404, appErr.Status)
}

func TestClassTestDeleteRemovesRow(t *testing.T) {
	svc, store := newClassTestFixture()

	created, err := svc.Create(context.Background(), "owner-1", dto.CreateClassTestRequest{
		TestName:    "Quiz",
		TestDate:    "2024-11-04",
		TotalMarks:  50,
		ClassID:     "class-1",
		SubjectName: "Science",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), "owner-1", created.ID))
	assert.Empty(t, store.tests)

	err = svc.Delete(context.Background(), "owner-1", created.ID)
	require.Error(t, err)
	assert.Equal(t, 404, appErrors.FromError(err).Status)
}
