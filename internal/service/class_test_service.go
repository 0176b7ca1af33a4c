package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edupanel/edupanel-api/internal/dto"
	"github.com/edupanel/edupanel-api/internal/models"
	"github.com/edupanel/edupanel-api/internal/repository"
	appErrors "github.com/edupanel/edupanel-api/pkg/errors"
)

const testDateLayout = "2006-01-02"

// ClassTestStore describes the persistence layer required by ClassTestService.
type ClassTestStore interface {
	Create(ctx context.Context, test *models.ClassTest) error
	Update(ctx context.Context, test *models.ClassTest) error
	FindByID(ctx context.Context, ownerID, id string) (*models.ClassTest, error)
	Delete(ctx context.Context, ownerID, id string) error
	List(ctx context.Context, ownerID string, filter models.ClassTestFilter) ([]models.ClassTest, int, error)
}

// ClassDirectory resolves classes for denormalisation at create time.
type ClassDirectory interface {
	FindByID(ctx context.Context, ownerID, id string) (*models.Class, error)
}

// StudentDirectory resolves students to backfill roster entries supplied by id only.
type StudentDirectory interface {
	FindByID(ctx context.Context, ownerID, id string) (*models.Student, error)
}

// ClassTestService manages the class test lifecycle. Statistics are never
// accepted from clients; they are recomputed from the roster before every
// persisted mutation.
type ClassTestService struct {
	repo     ClassTestStore
	classes  ClassDirectory
	students StudentDirectory
	cache    *CacheService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewClassTestService constructs a class test service.
func NewClassTestService(repo ClassTestStore, classes ClassDirectory, students StudentDirectory, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ClassTestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassTestService{repo: repo, classes: classes, students: students, cache: cache, validate: validate, logger: logger}
}

// RecomputeStatistics derives the stored aggregates from a roster. It is pure:
// the same roster and total always produce the same statistics, and an empty
// roster yields all zeroes. A mark passes when it reaches 33% of total marks.
func RecomputeStatistics(marks models.StudentMarks, totalMarks float64) models.TestStatistics {
	var stats models.TestStatistics
	if len(marks) == 0 {
		return stats
	}

	passMark := totalMarks * models.PassThreshold
	sum := 0.0
	stats.HighestMarks = marks[0].ObtainedMarks
	stats.LowestMarks = marks[0].ObtainedMarks
	for _, mark := range marks {
		sum += mark.ObtainedMarks
		if mark.ObtainedMarks > stats.HighestMarks {
			stats.HighestMarks = mark.ObtainedMarks
		}
		if mark.ObtainedMarks < stats.LowestMarks {
			stats.LowestMarks = mark.ObtainedMarks
		}
		if mark.ObtainedMarks >= passMark {
			stats.PassCount++
		} else {
			stats.FailCount++
		}
	}
	// the exact mean is stored; rounding happens in report summaries only,
	// otherwise the drift compounds through the rollups
	stats.AverageMarks = sum / float64(len(marks))
	return stats
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Create validates and persists a new draft test with its initial roster.
func (s *ClassTestService) Create(ctx context.Context, ownerID string, req dto.CreateClassTestRequest) (*models.ClassTest, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	testDate, err := time.ParseInLocation(testDateLayout, req.TestDate, time.UTC)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "test_date must be formatted as YYYY-MM-DD")
	}

	class, err := s.classes.FindByID(ctx, ownerID, req.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, fmt.Errorf("resolve class: %w", err)
	}

	roster, err := s.buildRoster(ctx, ownerID, req.TotalMarks, req.StudentMarks)
	if err != nil {
		return nil, err
	}

	testType := models.TestType(req.TestType)
	if testType == "" {
		testType = models.TestTypeUnit
	}

	test := &models.ClassTest{
		OwnerID:     ownerID,
		TestName:    req.TestName,
		TestType:    testType,
		TestDate:    testDate,
		TotalMarks:  req.TotalMarks,
		ClassID:     class.ID,
		ClassName:   class.Name,
		Section:     class.Section,
		SubjectName: req.SubjectName,
		Marks:       roster,
		Status:      models.TestStatusDraft,
	}
	if req.SubjectID != "" {
		subjectID := req.SubjectID
		test.SubjectID = &subjectID
	}
	test.TestStatistics = RecomputeStatistics(test.Marks, test.TotalMarks)

	if err := s.repo.Create(ctx, test); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.ErrDuplicateTest
		}
		return nil, fmt.Errorf("create class test: %w", err)
	}

	s.invalidateReports(ctx, ownerID)
	s.logger.Info("class test created",
		zap.String("test_id", test.ID),
		zap.String("class_id", test.ClassID),
		zap.String("subject", test.SubjectName))
	return test, nil
}

// Update applies a partial update, recomputes statistics and persists the row.
func (s *ClassTestService) Update(ctx context.Context, ownerID, id string, req dto.UpdateClassTestRequest) (*models.ClassTest, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	test, err := s.repo.FindByID(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class test not found")
		}
		return nil, fmt.Errorf("find class test: %w", err)
	}

	if req.TestName != nil {
		test.TestName = *req.TestName
	}
	if req.TestType != nil {
		test.TestType = models.TestType(*req.TestType)
	}
	if req.TestDate != nil {
		testDate, err := time.ParseInLocation(testDateLayout, *req.TestDate, time.UTC)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "test_date must be formatted as YYYY-MM-DD")
		}
		test.TestDate = testDate
	}
	if req.TotalMarks != nil {
		test.TotalMarks = *req.TotalMarks
	}
	if req.SubjectName != nil {
		test.SubjectName = *req.SubjectName
	}
	if req.StudentMarks != nil {
		roster, err := s.buildRoster(ctx, ownerID, test.TotalMarks, *req.StudentMarks)
		if err != nil {
			return nil, err
		}
		test.Marks = roster
	} else if req.TotalMarks != nil {
		// total changed without a new roster; the existing marks must still fit
		for _, mark := range test.Marks {
			if mark.ObtainedMarks > test.TotalMarks {
				return nil, appErrors.ErrMarksExceedTotal
			}
		}
	}
	if req.Status != nil {
		s.applyStatus(test, models.TestStatus(*req.Status))
	}

	test.TestStatistics = RecomputeStatistics(test.Marks, test.TotalMarks)

	if err := s.repo.Update(ctx, test); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.ErrDuplicateTest
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class test not found")
		}
		return nil, fmt.Errorf("update class test: %w", err)
	}

	s.invalidateReports(ctx, ownerID)
	return test, nil
}

// applyStatus moves the test between lifecycle states. Publishing is sticky:
// the first transition records PublishedAt and republishing never touches it.
func (s *ClassTestService) applyStatus(test *models.ClassTest, status models.TestStatus) {
	switch status {
	case models.TestStatusPublished:
		if !test.IsPublished {
			test.IsPublished = true
			now := time.Now().UTC()
			test.PublishedAt = &now
		}
	case models.TestStatusDraft:
		test.IsPublished = false
	}
	test.Status = status
}

// Publish marks a test as published. Publishing an already published test is a
// no-op that returns the stored row unchanged.
func (s *ClassTestService) Publish(ctx context.Context, ownerID, id string) (*models.ClassTest, error) {
	test, err := s.repo.FindByID(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class test not found")
		}
		return nil, fmt.Errorf("find class test: %w", err)
	}
	if test.IsPublished && test.Status == models.TestStatusPublished {
		return test, nil
	}

	s.applyStatus(test, models.TestStatusPublished)
	test.TestStatistics = RecomputeStatistics(test.Marks, test.TotalMarks)
	if err := s.repo.Update(ctx, test); err != nil {
		return nil, fmt.Errorf("publish class test: %w", err)
	}

	s.invalidateReports(ctx, ownerID)
	s.logger.Info("class test published", zap.String("test_id", test.ID))
	return test, nil
}

// Get returns one test scoped to its owner.
func (s *ClassTestService) Get(ctx context.Context, ownerID, id string) (*models.ClassTest, error) {
	test, err := s.repo.FindByID(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class test not found")
		}
		return nil, fmt.Errorf("find class test: %w", err)
	}
	return test, nil
}

// List returns tests matching the filter plus the total count.
func (s *ClassTestService) List(ctx context.Context, ownerID string, filter models.ClassTestFilter) ([]models.ClassTest, int, error) {
	return s.repo.List(ctx, ownerID, filter)
}

// Delete removes a test permanently.
func (s *ClassTestService) Delete(ctx context.Context, ownerID, id string) error {
	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class test not found")
		}
		return fmt.Errorf("delete class test: %w", err)
	}
	s.invalidateReports(ctx, ownerID)
	return nil
}

// buildRoster validates mark inputs against the total and backfills student
// names from the directory when only an id was supplied.
func (s *ClassTestService) buildRoster(ctx context.Context, ownerID string, totalMarks float64, inputs []dto.MarkInput) (models.StudentMarks, error) {
	roster := make(models.StudentMarks, 0, len(inputs))
	seen := make(map[string]bool, len(inputs))
	for _, input := range inputs {
		if input.StudentID == "" && input.StudentName == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "each mark entry needs a student_id or student_name")
		}
		if input.ObtainedMarks > totalMarks {
			return nil, appErrors.ErrMarksExceedTotal
		}
		if input.StudentID != "" {
			if seen[input.StudentID] {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate mark entry for student %s", input.StudentID))
			}
			seen[input.StudentID] = true
		}

		mark := models.StudentMark{
			StudentID:     input.StudentID,
			StudentName:   input.StudentName,
			RollNo:        input.RollNo,
			ObtainedMarks: input.ObtainedMarks,
		}
		if mark.StudentName == "" && s.students != nil {
			student, err := s.students.FindByID(ctx, ownerID, mark.StudentID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("student %s not found", mark.StudentID))
				}
				return nil, fmt.Errorf("resolve student: %w", err)
			}
			mark.StudentName = student.Name
			if mark.RollNo == "" {
				mark.RollNo = student.RollNumber
			}
		}
		roster = append(roster, mark)
	}
	return roster, nil
}

func (s *ClassTestService) invalidateReports(ctx context.Context, ownerID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, reportCachePattern(ownerID)); err != nil {
		s.logger.Warn("invalidate report cache", zap.String("owner_id", ownerID), zap.Error(err))
	}
}
