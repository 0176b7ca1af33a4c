package service

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edupanel/edupanel-api/internal/dto"
	"github.com/edupanel/edupanel-api/internal/models"
	appErrors "github.com/edupanel/edupanel-api/pkg/errors"
)

type mockPublishedSource struct {
	tests []models.ClassTest
	calls int
	err   error
}

func (m *mockPublishedSource) ListPublished(_ context.Context, _ string, filter models.PublishedTestFilter) ([]models.ClassTest, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var out []models.ClassTest
	for _, test := range m.tests {
		if filter.ClassID != "" && test.ClassID != filter.ClassID {
			continue
		}
		if filter.SubjectName != "" && test.SubjectName != filter.SubjectName {
			continue
		}
		if filter.StudentID != "" && !rosterContains(test.Marks, filter.StudentID) {
			continue
		}
		if filter.DateFrom != nil && test.TestDate.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && test.TestDate.After(*filter.DateTo) {
			continue
		}
		out = append(out, test)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if filter.OrderByDate == "DESC" {
			return out[i].TestDate.After(out[j].TestDate)
		}
		return out[i].TestDate.Before(out[j].TestDate)
	})
	return out, nil
}

func rosterContains(marks models.StudentMarks, studentID string) bool {
	for _, mark := range marks {
		if mark.StudentID == studentID {
			return true
		}
	}
	return false
}

type stubCacheRepo struct {
	store map[string][]byte
}

func (s *stubCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	payload, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (s *stubCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if s.store == nil {
		s.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = payload
	return nil
}

func (s *stubCacheRepo) DeleteByPattern(_ context.Context, _ string) error {
	s.store = make(map[string][]byte)
	return nil
}

func date(raw string) time.Time {
	ts, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		panic(err)
	}
	return ts
}

func publishedTest(id, classID, subject string, day string, total float64, marks models.StudentMarks) models.ClassTest {
	test := models.ClassTest{
		ID:          id,
		OwnerID:     "owner-1",
		TestName:    id,
		TestType:    models.TestTypeUnit,
		TestDate:    date(day),
		TotalMarks:  total,
		ClassID:     classID,
		ClassName:   "Grade 10",
		SubjectName: subject,
		Marks:       marks,
		Status:      models.TestStatusPublished,
		IsPublished: true,
	}
	test.TestStatistics = RecomputeStatistics(marks, total)
	return test
}

func TestClassWiseReportSummary(t *testing.T) {
	source := &mockPublishedSource{tests: []models.ClassTest{
		publishedTest("t1", "class-1", "Mathematics", "2024-11-04", 100, models.StudentMarks{
			{StudentID: "s1", StudentName: "Asha", ObtainedMarks: 90},
			{StudentID: "s2", StudentName: "Ravi", ObtainedMarks: 45},
			{StudentID: "s3", StudentName: "Meena", ObtainedMarks: 60},
			{StudentID: "s4", StudentName: "Kiran", ObtainedMarks: 20},
		}),
		publishedTest("t2", "class-1", "Science", "2024-11-07", 100, models.StudentMarks{
			{StudentID: "s1", StudentName: "Asha", ObtainedMarks: 80},
			{StudentID: "s2", StudentName: "Ravi", ObtainedMarks: 70},
			{StudentID: "s3", StudentName: "Meena", ObtainedMarks: 50},
			{StudentID: "s4", StudentName: "Kiran", ObtainedMarks: 40},
		}),
	}}
	svc := NewReportService(source, nil, nil, nil, nil, zap.NewNop())

	report, err := svc.ClassWise(context.Background(), "owner-1", "class-1")
	require.NoError(t, err)

	assert.Equal(t, 2, report.Summary.TotalTests)
	// mean of per-test averages: (53.75 + 60) / 2
	assert.Equal(t, 56.88, report.Summary.OverallAverage)
	assert.Equal(t, 7, report.Summary.TotalPassCount)
	assert.Equal(t, 4, report.Summary.TotalStudents)
	assert.False(t, report.Summary.Approximate)
	// 7 passes over 8 seats
	assert.Equal(t, 87.5, report.Summary.PassPercentage)

	require.Len(t, report.Subjects, 2)
	assert.Equal(t, "Science", report.Subjects[0].SubjectName)
	assert.Equal(t, 60.0, report.Subjects[0].AverageScore)
}

func TestClassWiseReportApproximateOnUnevenRosters(t *testing.T) {
	source := &mockPublishedSource{tests: []models.ClassTest{
		publishedTest("t1", "class-1", "Mathematics", "2024-11-04", 100, models.StudentMarks{
			{StudentID: "s1", ObtainedMarks: 50},
			{StudentID: "s2", ObtainedMarks: 60},
		}),
		publishedTest("t2", "class-1", "Mathematics", "2024-11-11", 100, models.StudentMarks{
			{StudentID: "s1", ObtainedMarks: 50},
		}),
	}}
	svc := NewReportService(source, nil, nil, nil, nil, zap.NewNop())

	report, err := svc.ClassWise(context.Background(), "owner-1", "class-1")
	require.NoError(t, err)
	assert.True(t, report.Summary.Approximate)
	assert.Equal(t, 2, report.Summary.TotalStudents)
}

func TestClassWiseReportEmpty(t *testing.T) {
	svc := NewReportService(&mockPublishedSource{}, nil, nil, nil, nil, zap.NewNop())

	report, err := svc.ClassWise(context.Background(), "owner-1", "class-1")
	require.NoError(t, err)
	assert.Equal(t, dto.ClassSummary{}, report.Summary)
	assert.Empty(t, report.Tests)
	assert.Empty(t, report.Subjects)
}

func TestClassWiseReportCaching(t *testing.T) {
	source := &mockPublishedSource{tests: []models.ClassTest{
		publishedTest("t1", "class-1", "Mathematics", "2024-11-04", 100, models.StudentMarks{
			{StudentID: "s1", ObtainedMarks: 50},
		}),
	}}
	cacheSvc := NewCacheService(&stubCacheRepo{}, nil, time.Minute, zap.NewNop(), true)
	svc := NewReportService(source, nil, cacheSvc, nil, nil, zap.NewNop())

	first, err := svc.ClassWise(context.Background(), "owner-1", "class-1")
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls)

	second, err := svc.ClassWise(context.Background(), "owner-1", "class-1")
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls)
	assert.Equal(t, first.Summary, second.Summary)
}

func TestClassSubjectReportRanksByWeightedPercentage(t *testing.T) {
	source := &mockPublishedSource{tests: []models.ClassTest{
		publishedTest("t1", "class-1", "Mathematics", "2024-11-04", 100, models.StudentMarks{
			{StudentID: "s1", StudentName: "Asha", ObtainedMarks: 90},
			{StudentID: "s2", StudentName: "Ravi", ObtainedMarks: 40},
		}),
		publishedTest("t2", "class-1", "Mathematics", "2024-11-11", 50, models.StudentMarks{
			{StudentID: "s1", StudentName: "Asha", ObtainedMarks: 40},
			{StudentID: "s2", StudentName: "Ravi", ObtainedMarks: 45},
		}),
	}}
	svc := NewReportService(source, nil, nil, nil, nil, zap.NewNop())

	report, err := svc.ClassSubject(context.Background(), "owner-1", "class-1", "Mathematics")
	require.NoError(t, err)

	require.Len(t, report.Students, 2)
	top := report.Students[0]
	assert.Equal(t, "Asha", top.StudentName)
	assert.Equal(t, 1, top.Rank)
	// 130 of 150 possible
	assert.Equal(t, 86.67, top.OverallPercentage)
	assert.Equal(t, "A", top.Grade)
	assert.Len(t, top.ScoreHistory, 2)

	second := report.Students[1]
	assert.Equal(t, 2, second.Rank)
	// 85 of 150 possible
	assert.Equal(t, 56.67, second.OverallPercentage)
	assert.Equal(t, "C", second.Grade)

	assert.Equal(t, 2, report.Summary.TotalTests)
	assert.True(t, report.Summary.Approximate) // totals differ across tests
}

func TestStudentSubjectReportGroupsBySubject(t *testing.T) {
	source := &mockPublishedSource{tests: []models.ClassTest{
		publishedTest("t1", "class-1", "Mathematics", "2024-11-04", 100, models.StudentMarks{
			{StudentID: "s1", StudentName: "Asha", ObtainedMarks: 90},
			{StudentID: "s2", StudentName: "Ravi", ObtainedMarks: 40},
		}),
		publishedTest("t2", "class-1", "Science", "2024-11-06", 50, models.StudentMarks{
			{StudentID: "s1", StudentName: "Asha", ObtainedMarks: 35},
		}),
	}}
	svc := NewReportService(source, nil, nil, nil, nil, zap.NewNop())

	report, err := svc.StudentSubject(context.Background(), "owner-1", "s1")
	require.NoError(t, err)

	assert.Equal(t, "Asha", report.StudentName)
	assert.Equal(t, 2, report.Overall.TotalTests)
	assert.Equal(t, 2, report.Overall.SubjectsTaken)
	require.Len(t, report.Subjects, 2)
	assert.Equal(t, "Mathematics", report.Subjects[0].SubjectName)
	assert.Equal(t, 90.0, report.Subjects[0].AverageScore)
	assert.Equal(t, 90.0, report.Subjects[0].AveragePercentage)
	assert.Equal(t, "Science", report.Subjects[1].SubjectName)
	assert.Equal(t, 70.0, report.Subjects[1].AveragePercentage)
	// mean of per-test percentages: (90 + 70) / 2
	assert.Equal(t, 80.0, report.Overall.OverallAverage)
	assert.Len(t, report.Overall.TestHistory, 2)
}

func TestStudentSubjectReportHistoryNewestFirst(t *testing.T) {
	source := &mockPublishedSource{tests: []models.ClassTest{
		publishedTest("t-old", "class-1", "Mathematics", "2024-11-04", 100, models.StudentMarks{
			{StudentID: "s1", StudentName: "Asha", ObtainedMarks: 60},
		}),
		publishedTest("t-new", "class-1", "Mathematics", "2024-11-20", 100, models.StudentMarks{
			{StudentID: "s1", StudentName: "Asha", ObtainedMarks: 80},
		}),
	}}
	svc := NewReportService(source, nil, nil, nil, nil, zap.NewNop())

	report, err := svc.StudentSubject(context.Background(), "owner-1", "s1")
	require.NoError(t, err)

	require.Len(t, report.Overall.TestHistory, 2)
	assert.Equal(t, "t-new", report.Overall.TestHistory[0].TestID)
	assert.Equal(t, "t-old", report.Overall.TestHistory[1].TestID)
}

func TestStudentSubjectReportEmpty(t *testing.T) {
	svc := NewReportService(&mockPublishedSource{}, nil, nil, nil, nil, zap.NewNop())

	report, err := svc.StudentSubject(context.Background(), "owner-1", "ghost")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Overall.TotalTests)
	assert.Empty(t, report.Subjects)
	assert.Empty(t, report.Overall.TestHistory)
}

func TestDateRangeReportWeeklyBuckets(t *testing.T) {
	source := &mockPublishedSource{tests: []models.ClassTest{
		// both fall in the week starting Sunday 2024-11-03
		publishedTest("t1", "class-1", "Mathematics", "2024-11-04", 100, models.StudentMarks{
			{StudentID: "s1", ObtainedMarks: 60},
		}),
		publishedTest("t2", "class-1", "Science", "2024-11-07", 100, models.StudentMarks{
			{StudentID: "s1", ObtainedMarks: 80},
		}),
		// next week
		publishedTest("t3", "class-1", "Mathematics", "2024-11-12", 100, models.StudentMarks{
			{StudentID: "s1", ObtainedMarks: 40},
		}),
	}}
	svc := NewReportService(source, nil, nil, nil, nil, zap.NewNop())

	report, err := svc.DateRange(context.Background(), "owner-1", dto.DateRangeRequest{
		StartDate: "2024-11-01",
		EndDate:   "2024-11-30",
	})
	require.NoError(t, err)

	require.Len(t, report.WeeklyTrend, 2)
	assert.Equal(t, "2024-11-03", report.WeeklyTrend[0].Week)
	assert.Equal(t, 70.0, report.WeeklyTrend[0].AverageScore)
	assert.Equal(t, "2024-11-10", report.WeeklyTrend[1].Week)
	assert.Equal(t, 40.0, report.WeeklyTrend[1].AverageScore)
}

func TestDateRangeReportRejectsInvertedWindow(t *testing.T) {
	svc := NewReportService(&mockPublishedSource{}, nil, nil, nil, nil, zap.NewNop())

	_, err := svc.DateRange(context.Background(), "owner-1", dto.DateRangeRequest{
		StartDate: "2024-11-30",
		EndDate:   "2024-11-01",
	})
	require.Error(t, err)
	assert.Equal(t, 400, appErrors.FromError(err).Status)
}

func TestPerformanceReport(t *testing.T) {
	source := &mockPublishedSource{tests: []models.ClassTest{
		publishedTest("t1", "class-1", "Mathematics", "2024-11-04", 100, models.StudentMarks{
			{StudentID: "s1", StudentName: "Asha", ObtainedMarks: 95},
			{StudentID: "s2", StudentName: "Ravi", ObtainedMarks: 25},
		}),
		publishedTest("t2", "class-1", "Science", "2024-11-06", 100, models.StudentMarks{
			{StudentID: "s1", StudentName: "Asha", ObtainedMarks: 85},
			{StudentID: "s2", StudentName: "Ravi", ObtainedMarks: 30},
		}),
	}}
	svc := NewReportService(source, nil, nil, nil, nil, zap.NewNop())

	report, err := svc.Performance(context.Background(), "owner-1", "class-1")
	require.NoError(t, err)

	assert.Equal(t, 2, report.Overall.TotalTests)
	assert.True(t, report.Overall.Estimated)
	assert.Nil(t, report.Overall.AttendanceRate)
	assert.Nil(t, report.Overall.CompletionRate)
	// per student: Asha passes, Ravi fails
	assert.Equal(t, 50.0, report.Overall.PassRate)
	// mean of per-student percentages: (90 + 27.5) / 2
	assert.Equal(t, 58.75, report.Overall.AverageScore)

	require.Len(t, report.TopPerformers, 2)
	top := report.TopPerformers[0]
	assert.Equal(t, "Asha", top.StudentName)
	assert.Equal(t, 1, top.Rank)
	// weighted: 180 of 200
	assert.Equal(t, 90.0, top.AveragePercentage)
	assert.Equal(t, "A+", top.Grade)
	assert.Equal(t, "Pass", top.Status)

	bottom := report.TopPerformers[1]
	assert.Equal(t, 27.5, bottom.AveragePercentage)
	assert.Equal(t, "F", bottom.Grade)
	assert.Equal(t, "Fail", bottom.Status)

	assert.Equal(t, 1, report.GradeDistribution["A+"])
	assert.Equal(t, 1, report.GradeDistribution["F"])
	// every band is present even when no student lands in it
	require.Len(t, report.GradeDistribution, 7)
	assert.Equal(t, 0, report.GradeDistribution["B"])
	require.Len(t, report.Subjects, 2)
}

func TestPerformanceReportOverallIsPerStudent(t *testing.T) {
	// Asha sits both tests, Ravi only the first; a per-test basis would
	// overweight the test Ravi missed
	source := &mockPublishedSource{tests: []models.ClassTest{
		publishedTest("t1", "class-1", "Mathematics", "2024-11-04", 100, models.StudentMarks{
			{StudentID: "s1", StudentName: "Asha", ObtainedMarks: 85},
			{StudentID: "s2", StudentName: "Ravi", ObtainedMarks: 10},
		}),
		publishedTest("t2", "class-1", "Science", "2024-11-06", 100, models.StudentMarks{
			{StudentID: "s1", StudentName: "Asha", ObtainedMarks: 85},
		}),
	}}
	svc := NewReportService(source, nil, nil, nil, nil, zap.NewNop())

	report, err := svc.Performance(context.Background(), "owner-1", "class-1")
	require.NoError(t, err)

	// Asha 170 of 200 = 85%, Ravi 10 of 100 = 10%
	assert.Equal(t, 47.5, report.Overall.AverageScore)
	// one of two students passes
	assert.Equal(t, 50.0, report.Overall.PassRate)
}

func TestPerformanceReportEmpty(t *testing.T) {
	svc := NewReportService(&mockPublishedSource{}, nil, nil, nil, nil, zap.NewNop())

	report, err := svc.Performance(context.Background(), "owner-1", "class-1")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Overall.TotalTests)
	assert.True(t, report.Overall.Estimated)
	assert.Empty(t, report.TopPerformers)
	// the scale's bands are present at zero even with no tests
	require.Len(t, report.GradeDistribution, 7)
	assert.Equal(t, 0, report.GradeDistribution["A+"])
}

func TestWeekStart(t *testing.T) {
	// a Monday and a Thursday share the same Sunday start
	assert.Equal(t, date("2024-11-03"), weekStart(date("2024-11-04")))
	assert.Equal(t, date("2024-11-03"), weekStart(date("2024-11-07")))
	// a Sunday is its own week start
	assert.Equal(t, date("2024-11-03"), weekStart(date("2024-11-03")))
}

func TestMeanOfAveragesVersusWeightedMean(t *testing.T) {
	tests := []models.ClassTest{
		publishedTest("t1", "class-1", "Mathematics", "2024-11-04", 100, models.StudentMarks{
			{StudentID: "s1", ObtainedMarks: 100},
		}),
		publishedTest("t2", "class-1", "Mathematics", "2024-11-05", 20, models.StudentMarks{
			{StudentID: "s1", ObtainedMarks: 10},
		}),
	}

	// every test weighs the same: (100 + 10) / 2
	assert.Equal(t, 55.0, meanOfAverages(tests))
	// weighted by possible marks: 110 of 120
	assert.Equal(t, 91.67, weightedMean(110, 120))
}
