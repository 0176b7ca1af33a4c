package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edupanel/edupanel-api/internal/dto"
	"github.com/edupanel/edupanel-api/internal/models"
	appErrors "github.com/edupanel/edupanel-api/pkg/errors"
)

// PublishedTestSource lists the published tests report queries aggregate over.
type PublishedTestSource interface {
	ListPublished(ctx context.Context, ownerID string, filter models.PublishedTestFilter) ([]models.ClassTest, error)
}

// GradeResolver yields the grade bands in effect for an owner.
type GradeResolver interface {
	EffectiveBands(ctx context.Context, ownerID string) (models.GradeBands, error)
}

// ReportService computes the read-side aggregations over published tests.
// Reports never mutate state, so results are cached per owner and invalidated
// whenever a test changes.
type ReportService struct {
	tests    PublishedTestSource
	grades   GradeResolver
	cache    *CacheService
	metrics  *MetricsService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewReportService constructs a report service.
func NewReportService(tests PublishedTestSource, grades GradeResolver, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ReportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{tests: tests, grades: grades, cache: cache, metrics: metrics, validate: validate, logger: logger}
}

// meanOfAverages averages the per-test average marks. Every test weighs the
// same regardless of roster size, matching the summary blocks of the
// class-wise and date-range reports.
func meanOfAverages(tests []models.ClassTest) float64 {
	if len(tests) == 0 {
		return 0
	}
	sum := 0.0
	for _, test := range tests {
		sum += test.AverageMarks
	}
	return round2(sum / float64(len(tests)))
}

// weightedMean is the percentage of total obtained over total possible marks.
// Tests with higher totals weigh more, matching the performance report.
func weightedMean(totalObtained, totalPossible float64) float64 {
	if totalPossible <= 0 {
		return 0
	}
	return round2(totalObtained / totalPossible * 100)
}

// weekStart truncates a date to the Sunday that begins its week, in UTC.
func weekStart(t time.Time) time.Time {
	t = t.UTC().Truncate(24 * time.Hour)
	return t.AddDate(0, 0, -int(t.Weekday()))
}

// ClassWise aggregates a class's published tests with a summary and a
// subject-wise rollup.
func (s *ReportService) ClassWise(ctx context.Context, ownerID, classID string) (*dto.ClassWiseReport, error) {
	if classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class_id is required")
	}

	cacheKey := reportCacheKey(ownerID, "classwise", classID)
	var cached dto.ClassWiseReport
	if hit := s.cacheGet(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	start := time.Now()
	tests, err := s.tests.ListPublished(ctx, ownerID, models.PublishedTestFilter{ClassID: classID, OrderByDate: "DESC"})
	if err != nil {
		return nil, fmt.Errorf("list published tests: %w", err)
	}

	report := &dto.ClassWiseReport{
		ClassID:  classID,
		Tests:    tests,
		Summary:  summariseClass(tests),
		Subjects: rollupSubjects(tests),
	}

	s.observe("classwise", start)
	s.cacheSet(ctx, cacheKey, report)
	return report, nil
}

// ClassSubject ranks a class's students within one subject.
func (s *ReportService) ClassSubject(ctx context.Context, ownerID, classID, subjectName string) (*dto.ClassSubjectReport, error) {
	if classID == "" || subjectName == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class_id and subject_name are required")
	}

	cacheKey := reportCacheKey(ownerID, "classsubject", classID, subjectName)
	var cached dto.ClassSubjectReport
	if hit := s.cacheGet(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	start := time.Now()
	tests, err := s.tests.ListPublished(ctx, ownerID, models.PublishedTestFilter{ClassID: classID, SubjectName: subjectName, OrderByDate: "ASC"})
	if err != nil {
		return nil, fmt.Errorf("list published tests: %w", err)
	}

	bands, err := s.effectiveBands(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	report := &dto.ClassSubjectReport{
		ClassID:     classID,
		SubjectName: subjectName,
		Students:    rankStudents(tests, bands),
		Summary:     summariseClassSubject(tests),
	}

	s.observe("classsubject", start)
	s.cacheSet(ctx, cacheKey, report)
	return report, nil
}

// StudentSubject groups one student's published marks by subject.
func (s *ReportService) StudentSubject(ctx context.Context, ownerID, studentID string) (*dto.StudentSubjectReport, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}

	cacheKey := reportCacheKey(ownerID, "studentsubject", studentID)
	var cached dto.StudentSubjectReport
	if hit := s.cacheGet(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	// newest first so the test history reads most recent to oldest; the
	// per-subject accumulation is order-insensitive
	start := time.Now()
	tests, err := s.tests.ListPublished(ctx, ownerID, models.PublishedTestFilter{StudentID: studentID, OrderByDate: "DESC"})
	if err != nil {
		return nil, fmt.Errorf("list published tests: %w", err)
	}

	report := buildStudentSubjectReport(studentID, tests)

	s.observe("studentsubject", start)
	s.cacheSet(ctx, cacheKey, report)
	return report, nil
}

// DateRange aggregates tests within an inclusive window and buckets their
// averages by week.
func (s *ReportService) DateRange(ctx context.Context, ownerID string, req dto.DateRangeRequest) (*dto.DateRangeReport, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	from, err := time.ParseInLocation(testDateLayout, req.StartDate, time.UTC)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_date must be formatted as YYYY-MM-DD")
	}
	to, err := time.ParseInLocation(testDateLayout, req.EndDate, time.UTC)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must be formatted as YYYY-MM-DD")
	}
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must not precede start_date")
	}

	cacheKey := reportCacheKey(ownerID, "daterange", req.StartDate, req.EndDate, req.ClassID, req.SubjectName)
	var cached dto.DateRangeReport
	if hit := s.cacheGet(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	start := time.Now()
	tests, err := s.tests.ListPublished(ctx, ownerID, models.PublishedTestFilter{
		ClassID:     req.ClassID,
		SubjectName: req.SubjectName,
		DateFrom:    &from,
		DateTo:      &to,
		OrderByDate: "ASC",
	})
	if err != nil {
		return nil, fmt.Errorf("list published tests: %w", err)
	}

	report := &dto.DateRangeReport{
		Tests:       tests,
		Summary:     summariseClass(tests),
		WeeklyTrend: weeklyTrend(tests),
	}

	s.observe("daterange", start)
	s.cacheSet(ctx, cacheKey, report)
	return report, nil
}

// Performance builds the full class performance view: ranked students, grade
// distribution and per-subject averages.
func (s *ReportService) Performance(ctx context.Context, ownerID, classID string) (*dto.PerformanceReport, error) {
	if classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class_id is required")
	}

	cacheKey := reportCacheKey(ownerID, "performance", classID)
	var cached dto.PerformanceReport
	if hit := s.cacheGet(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	start := time.Now()
	tests, err := s.tests.ListPublished(ctx, ownerID, models.PublishedTestFilter{ClassID: classID, OrderByDate: "ASC"})
	if err != nil {
		return nil, fmt.Errorf("list published tests: %w", err)
	}
	bands, err := s.effectiveBands(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	report := buildPerformanceReport(classID, tests, bands)

	s.observe("performance", start)
	s.cacheSet(ctx, cacheKey, report)
	return report, nil
}

// summariseClass builds the shared class summary block. TotalStudents assumes
// every test covers the same roster; when roster sizes differ the largest one
// is reported and the summary is flagged approximate.
func summariseClass(tests []models.ClassTest) dto.ClassSummary {
	summary := dto.ClassSummary{TotalTests: len(tests)}
	if len(tests) == 0 {
		return summary
	}

	summary.OverallAverage = meanOfAverages(tests)
	uniform := true
	for i, test := range tests {
		summary.TotalPassCount += test.PassCount
		size := len(test.Marks)
		if size > summary.TotalStudents {
			summary.TotalStudents = size
		}
		if i > 0 && size != len(tests[0].Marks) {
			uniform = false
		}
	}
	summary.Approximate = !uniform

	totalSeats := summary.TotalStudents * summary.TotalTests
	if totalSeats > 0 {
		summary.PassPercentage = round2(float64(summary.TotalPassCount) / float64(totalSeats) * 100)
	}
	return summary
}

// rollupSubjects aggregates per-test averages by subject, sorted by average
// score descending.
func rollupSubjects(tests []models.ClassTest) []dto.SubjectRollup {
	type acc struct {
		count   int
		sum     float64
		highest float64
		lowest  float64
	}
	accs := make(map[string]*acc)
	for _, test := range tests {
		a, ok := accs[test.SubjectName]
		if !ok {
			a = &acc{highest: test.AverageMarks, lowest: test.AverageMarks}
			accs[test.SubjectName] = a
		}
		a.count++
		a.sum += test.AverageMarks
		if test.AverageMarks > a.highest {
			a.highest = test.AverageMarks
		}
		if test.AverageMarks < a.lowest {
			a.lowest = test.AverageMarks
		}
	}

	rollups := make([]dto.SubjectRollup, 0, len(accs))
	for subject, a := range accs {
		rollups = append(rollups, dto.SubjectRollup{
			SubjectName:    subject,
			TotalTests:     a.count,
			AverageScore:   round2(a.sum / float64(a.count)),
			HighestAverage: a.highest,
			LowestAverage:  a.lowest,
		})
	}
	sort.Slice(rollups, func(i, j int) bool {
		if rollups[i].AverageScore != rollups[j].AverageScore {
			return rollups[i].AverageScore > rollups[j].AverageScore
		}
		return rollups[i].SubjectName < rollups[j].SubjectName
	})
	return rollups
}

func summariseClassSubject(tests []models.ClassTest) dto.ClassSubjectSummary {
	summary := dto.ClassSubjectSummary{TotalTests: len(tests)}
	if len(tests) == 0 {
		return summary
	}

	summary.AverageScore = meanOfAverages(tests)
	summary.HighestScore = tests[0].HighestMarks
	summary.LowestScore = tests[0].LowestMarks
	passes, seats := 0, 0
	for i, test := range tests {
		if test.HighestMarks > summary.HighestScore {
			summary.HighestScore = test.HighestMarks
		}
		if test.LowestMarks < summary.LowestScore {
			summary.LowestScore = test.LowestMarks
		}
		passes += test.PassCount
		seats += test.PassCount + test.FailCount
		if i > 0 && test.TotalMarks != tests[0].TotalMarks {
			summary.Approximate = true
		}
	}
	if seats > 0 {
		summary.PassRate = round2(float64(passes) / float64(seats) * 100)
	}
	return summary
}

// rankStudents collapses the tests' rosters into one ranked standing per
// student. Ranks follow overall percentage descending; ties share order by
// name for determinism.
func rankStudents(tests []models.ClassTest, bands models.GradeBands) []dto.StudentStanding {
	type acc struct {
		standing      dto.StudentStanding
		totalObtained float64
		totalPossible float64
	}
	accs := make(map[string]*acc)
	order := make([]string, 0)

	for _, test := range tests {
		for _, mark := range test.Marks {
			key := mark.StudentID
			if key == "" {
				key = mark.StudentName
			}
			a, ok := accs[key]
			if !ok {
				a = &acc{standing: dto.StudentStanding{
					StudentID:   mark.StudentID,
					StudentName: mark.StudentName,
					RollNo:      mark.RollNo,
				}}
				accs[key] = a
				order = append(order, key)
			}
			a.standing.TestsTaken++
			a.standing.TotalMarks += mark.ObtainedMarks
			a.totalObtained += mark.ObtainedMarks
			a.totalPossible += test.TotalMarks
			point := dto.ScorePoint{
				TestID:        test.ID,
				TestName:      test.TestName,
				SubjectName:   test.SubjectName,
				TestDate:      test.TestDate,
				ObtainedMarks: mark.ObtainedMarks,
				TotalMarks:    test.TotalMarks,
			}
			if test.TotalMarks > 0 {
				point.Percentage = round2(mark.ObtainedMarks / test.TotalMarks * 100)
			}
			a.standing.ScoreHistory = append(a.standing.ScoreHistory, point)
		}
	}

	standings := make([]dto.StudentStanding, 0, len(accs))
	for _, key := range order {
		a := accs[key]
		a.standing.AverageScore = round2(a.totalObtained / float64(a.standing.TestsTaken))
		a.standing.OverallPercentage = weightedMean(a.totalObtained, a.totalPossible)
		a.standing.Grade = bands.GradeFor(a.standing.OverallPercentage)
		standings = append(standings, a.standing)
	}

	sort.Slice(standings, func(i, j int) bool {
		if standings[i].OverallPercentage != standings[j].OverallPercentage {
			return standings[i].OverallPercentage > standings[j].OverallPercentage
		}
		return standings[i].StudentName < standings[j].StudentName
	})
	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings
}

func buildStudentSubjectReport(studentID string, tests []models.ClassTest) *dto.StudentSubjectReport {
	report := &dto.StudentSubjectReport{
		StudentID: studentID,
		Subjects:  []dto.StudentSubjectSummary{},
		Overall:   dto.StudentOverall{TestHistory: []dto.ScorePoint{}},
	}

	type acc struct {
		taken         int
		obtained      float64
		possible      float64
		highest       float64
		lowest        float64
		firstObserved bool
	}
	accs := make(map[string]*acc)
	order := make([]string, 0)
	percentSum := 0.0

	for _, test := range tests {
		for _, mark := range test.Marks {
			if mark.StudentID != studentID {
				continue
			}
			if report.StudentName == "" {
				report.StudentName = mark.StudentName
			}

			a, ok := accs[test.SubjectName]
			if !ok {
				a = &acc{}
				accs[test.SubjectName] = a
				order = append(order, test.SubjectName)
			}
			a.taken++
			a.obtained += mark.ObtainedMarks
			a.possible += test.TotalMarks
			if !a.firstObserved || mark.ObtainedMarks > a.highest {
				a.highest = mark.ObtainedMarks
			}
			if !a.firstObserved || mark.ObtainedMarks < a.lowest {
				a.lowest = mark.ObtainedMarks
			}
			a.firstObserved = true

			point := dto.ScorePoint{
				TestID:        test.ID,
				TestName:      test.TestName,
				SubjectName:   test.SubjectName,
				TestDate:      test.TestDate,
				ObtainedMarks: mark.ObtainedMarks,
				TotalMarks:    test.TotalMarks,
			}
			if test.TotalMarks > 0 {
				point.Percentage = round2(mark.ObtainedMarks / test.TotalMarks * 100)
			}
			report.Overall.TestHistory = append(report.Overall.TestHistory, point)
			report.Overall.TotalTests++
			percentSum += point.Percentage
			break
		}
	}

	sort.Strings(order)
	for _, subject := range order {
		a := accs[subject]
		report.Subjects = append(report.Subjects, dto.StudentSubjectSummary{
			SubjectName:       subject,
			TestsTaken:        a.taken,
			AverageScore:      round2(a.obtained / float64(a.taken)),
			AveragePercentage: weightedMean(a.obtained, a.possible),
			HighestScore:      a.highest,
			LowestScore:       a.lowest,
		})
	}
	report.Overall.SubjectsTaken = len(order)
	if report.Overall.TotalTests > 0 {
		report.Overall.OverallAverage = round2(percentSum / float64(report.Overall.TotalTests))
	}
	return report
}

// weeklyTrend buckets per-test averages into weeks keyed by their Sunday start
// date, oldest first.
func weeklyTrend(tests []models.ClassTest) []dto.TrendPoint {
	type acc struct {
		sum   float64
		count int
	}
	buckets := make(map[string]*acc)
	for _, test := range tests {
		week := weekStart(test.TestDate).Format(testDateLayout)
		a, ok := buckets[week]
		if !ok {
			a = &acc{}
			buckets[week] = a
		}
		a.sum += test.AverageMarks
		a.count++
	}

	weeks := make([]string, 0, len(buckets))
	for week := range buckets {
		weeks = append(weeks, week)
	}
	sort.Strings(weeks)

	trend := make([]dto.TrendPoint, 0, len(weeks))
	for _, week := range weeks {
		a := buckets[week]
		trend = append(trend, dto.TrendPoint{Week: week, AverageScore: round2(a.sum / float64(a.count))})
	}
	return trend
}

const topPerformerLimit = 10

// buildPerformanceReport assembles the class performance view. The overall
// block is computed per student, not per test: averageScore is the mean of
// each student's weighted percentage and passRate is the share of students
// whose overall standing passes. The grade distribution carries every band of
// the scale so absent grades read as zero.
func buildPerformanceReport(classID string, tests []models.ClassTest, bands models.GradeBands) *dto.PerformanceReport {
	report := &dto.PerformanceReport{
		ClassID:           classID,
		Subjects:          []dto.SubjectPerformance{},
		TopPerformers:     []dto.PerformerRow{},
		GradeDistribution: map[string]int{},
		Overall: dto.PerformanceOverall{
			TotalTests: len(tests),
			Estimated:  true,
		},
	}
	for _, grade := range bands.Grades() {
		report.GradeDistribution[grade] = 0
	}
	if len(tests) == 0 {
		return report
	}

	subjectAccs := make(map[string]*struct {
		count int
		sum   float64
	})
	for _, test := range tests {
		a, ok := subjectAccs[test.SubjectName]
		if !ok {
			a = &struct {
				count int
				sum   float64
			}{}
			subjectAccs[test.SubjectName] = a
		}
		a.count++
		a.sum += test.AverageMarks
	}
	for subject, a := range subjectAccs {
		report.Subjects = append(report.Subjects, dto.SubjectPerformance{
			SubjectName:  subject,
			Tests:        a.count,
			AverageScore: round2(a.sum / float64(a.count)),
		})
	}
	sort.Slice(report.Subjects, func(i, j int) bool {
		return report.Subjects[i].SubjectName < report.Subjects[j].SubjectName
	})

	rows := rankPerformers(tests, bands)
	percentSum := 0.0
	passCount := 0
	for _, row := range rows {
		report.GradeDistribution[row.Grade]++
		percentSum += row.AveragePercentage
		if row.Status == "Pass" {
			passCount++
		}
	}
	if len(rows) > 0 {
		report.Overall.AverageScore = round2(percentSum / float64(len(rows)))
		report.Overall.PassRate = round2(float64(passCount) / float64(len(rows)) * 100)
	}
	if len(rows) > topPerformerLimit {
		rows = rows[:topPerformerLimit]
	}
	report.TopPerformers = rows
	return report
}

// rankPerformers ranks every student across the class's tests by weighted
// average percentage.
func rankPerformers(tests []models.ClassTest, bands models.GradeBands) []dto.PerformerRow {
	type acc struct {
		row dto.PerformerRow
	}
	accs := make(map[string]*acc)
	order := make([]string, 0)

	for _, test := range tests {
		for _, mark := range test.Marks {
			key := mark.StudentID
			if key == "" {
				key = mark.StudentName
			}
			a, ok := accs[key]
			if !ok {
				a = &acc{row: dto.PerformerRow{
					StudentID:   mark.StudentID,
					StudentName: mark.StudentName,
					RollNo:      mark.RollNo,
				}}
				accs[key] = a
				order = append(order, key)
			}
			a.row.TestsTaken++
			a.row.TotalObtained += mark.ObtainedMarks
			a.row.TotalPossible += test.TotalMarks
		}
	}

	rows := make([]dto.PerformerRow, 0, len(accs))
	for _, key := range order {
		a := accs[key]
		a.row.AveragePercentage = weightedMean(a.row.TotalObtained, a.row.TotalPossible)
		a.row.Grade = bands.GradeFor(a.row.AveragePercentage)
		if a.row.AveragePercentage >= models.PassMarkPercent {
			a.row.Status = "Pass"
		} else {
			a.row.Status = "Fail"
		}
		rows = append(rows, a.row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].AveragePercentage != rows[j].AveragePercentage {
			return rows[i].AveragePercentage > rows[j].AveragePercentage
		}
		return rows[i].StudentName < rows[j].StudentName
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}

func (s *ReportService) effectiveBands(ctx context.Context, ownerID string) (models.GradeBands, error) {
	if s.grades == nil {
		return models.DefaultGradeBands, nil
	}
	bands, err := s.grades.EffectiveBands(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return bands, nil
}

func (s *ReportService) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	hit, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		s.logger.Warn("report cache get", zap.String("key", key), zap.Error(err))
		return false
	}
	return hit
}

func (s *ReportService) cacheSet(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, 0); err != nil {
		s.logger.Warn("report cache set", zap.String("key", key), zap.Error(err))
	}
}

func (s *ReportService) observe(report string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveReportBuild(report, time.Since(start))
	}
}

func reportCacheKey(ownerID string, parts ...string) string {
	var builder strings.Builder
	builder.WriteString("reports:")
	builder.WriteString(ownerID)
	for _, part := range parts {
		if part == "" {
			continue
		}
		builder.WriteByte(':')
		builder.WriteString(strings.ReplaceAll(part, ":", "|"))
	}
	return builder.String()
}

func reportCachePattern(ownerID string) string {
	return "reports:" + ownerID + ":*"
}
