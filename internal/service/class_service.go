package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/edupanel/edupanel-api/internal/models"
	appErrors "github.com/edupanel/edupanel-api/pkg/errors"
)

// ClassStore describes the persistence layer required by ClassService.
type ClassStore interface {
	FindByID(ctx context.Context, ownerID, id string) (*models.Class, error)
	List(ctx context.Context, ownerID string, filter models.ClassFilter) ([]models.Class, int, error)
}

// StudentStore describes the persistence layer required by StudentService.
type StudentStore interface {
	FindByID(ctx context.Context, ownerID, id string) (*models.Student, error)
	List(ctx context.Context, ownerID string, filter models.StudentFilter) ([]models.Student, int, error)
}

// ClassService exposes read access to the class roster catalogue.
type ClassService struct {
	repo   ClassStore
	logger *zap.Logger
}

// NewClassService constructs a class service.
func NewClassService(repo ClassStore, logger *zap.Logger) *ClassService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, logger: logger}
}

// Get returns one class scoped to its owner.
func (s *ClassService) Get(ctx context.Context, ownerID, id string) (*models.Class, error) {
	class, err := s.repo.FindByID(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, fmt.Errorf("find class: %w", err)
	}
	return class, nil
}

// List returns classes matching the filter plus the total count.
func (s *ClassService) List(ctx context.Context, ownerID string, filter models.ClassFilter) ([]models.Class, int, error) {
	return s.repo.List(ctx, ownerID, filter)
}

// StudentService exposes read access to the student directory.
type StudentService struct {
	repo   StudentStore
	logger *zap.Logger
}

// NewStudentService constructs a student service.
func NewStudentService(repo StudentStore, logger *zap.Logger) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, logger: logger}
}

// Get returns one student scoped to its owner.
func (s *StudentService) Get(ctx context.Context, ownerID, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return student, nil
}

// List returns students matching the filter plus the total count.
func (s *StudentService) List(ctx context.Context, ownerID string, filter models.StudentFilter) ([]models.Student, int, error) {
	return s.repo.List(ctx, ownerID, filter)
}
