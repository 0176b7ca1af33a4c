package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edupanel/edupanel-api/internal/dto"
	"github.com/edupanel/edupanel-api/internal/models"
	"github.com/edupanel/edupanel-api/internal/repository"
	appErrors "github.com/edupanel/edupanel-api/pkg/errors"
	"github.com/edupanel/edupanel-api/pkg/export"
	"github.com/edupanel/edupanel-api/pkg/jobs"
	"github.com/edupanel/edupanel-api/pkg/storage"
)

// ExportJobStore describes the persistence layer required by ExportService.
type ExportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error)
}

// reportBuilder is the slice of ReportService the export pipeline renders from.
type reportBuilder interface {
	ClassWise(ctx context.Context, ownerID, classID string) (*dto.ClassWiseReport, error)
	Performance(ctx context.Context, ownerID, classID string) (*dto.PerformanceReport, error)
}

// ExportServiceConfig tunes the background export pipeline.
type ExportServiceConfig struct {
	Workers    int
	MaxRetries int
	FileTTL    time.Duration
}

// ExportService renders reports to CSV or PDF in the background. Files land in
// local storage and are handed out through signed, expiring download tokens.
type ExportService struct {
	repo     ExportJobStore
	reports  reportBuilder
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	storage  *storage.LocalStorage
	signer   *storage.SignedURLSigner
	queue    *jobs.Queue
	metrics  *MetricsService
	validate *validator.Validate
	logger   *zap.Logger
	fileTTL  time.Duration
}

type exportPayload struct {
	JobID   string
	OwnerID string
	Request dto.ExportRequest
}

// NewExportService constructs an export service with its worker queue.
func NewExportService(repo ExportJobStore, reports reportBuilder, store *storage.LocalStorage, signer *storage.SignedURLSigner, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg ExportServiceConfig) *ExportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FileTTL <= 0 {
		cfg.FileTTL = 24 * time.Hour
	}

	s := &ExportService{
		repo:     repo,
		reports:  reports,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		storage:  store,
		signer:   signer,
		metrics:  metrics,
		validate: validate,
		logger:   logger,
		fileTTL:  cfg.FileTTL,
	}
	s.queue = jobs.NewQueue("exports", s.process, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the background workers.
func (s *ExportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the worker pool.
func (s *ExportService) Stop() {
	s.queue.Stop()
}

// Queue validates the request, persists a queued job and schedules it.
func (s *ExportService) Queue(ctx context.Context, ownerID string, req dto.ExportRequest) (*dto.ExportJobResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	job := &models.ExportJob{
		OwnerID: ownerID,
		Type:    req.Type,
		Params:  models.ExportJobParams{ClassID: req.ClassID, Format: req.Format},
		Status:  models.ExportStatusQueued,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create export job: %w", err)
	}

	if err := s.queue.Enqueue(jobs.Job{
		ID:      job.ID,
		Type:    string(req.Type),
		Payload: exportPayload{JobID: job.ID, OwnerID: ownerID, Request: req},
	}); err != nil {
		s.markFailed(ctx, job.ID, err)
		return nil, fmt.Errorf("enqueue export job: %w", err)
	}

	s.logger.Info("export queued",
		zap.String("job_id", job.ID),
		zap.String("type", string(req.Type)),
		zap.String("format", string(req.Format)))
	return &dto.ExportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// Status returns the current state of an owner's export job.
func (s *ExportService) Status(ctx context.Context, ownerID, jobID string) (*dto.ExportStatusResponse, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, fmt.Errorf("load export job: %w", err)
	}
	if job.OwnerID != ownerID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	return &dto.ExportStatusResponse{
		ID:           job.ID,
		Type:         job.Type,
		Status:       job.Status,
		Progress:     job.Progress,
		ResultURL:    job.ResultURL,
		CreatedAt:    job.CreatedAt,
		FinishedAt:   job.FinishedAt,
		ErrorMessage: job.ErrorMessage,
	}, nil
}

// ResolveDownload verifies a signed token and returns the stored file path.
func (s *ExportService) ResolveDownload(token string) (string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}
	return s.storage.Path(relPath), nil
}

// CleanupExpired removes export files older than the configured TTL.
func (s *ExportService) CleanupExpired(ctx context.Context) error {
	removed, err := s.storage.CleanupOlderThan(s.fileTTL)
	if err != nil {
		return fmt.Errorf("cleanup export files: %w", err)
	}
	if len(removed) > 0 {
		s.logger.Info("expired export files removed", zap.Int("count", len(removed)))
	}

	cutoff := time.Now().UTC().Add(-s.fileTTL)
	expired, err := s.repo.ListFinishedBefore(ctx, cutoff, 100)
	if err != nil {
		return err
	}
	for _, job := range expired {
		if err := s.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{ResultURL: ptr("")}); err != nil {
			s.logger.Warn("clear expired result url", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	return nil
}

func (s *ExportService) process(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(exportPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}

	processing := models.ExportStatusProcessing
	if err := s.repo.Update(ctx, payload.JobID, repository.UpdateExportJobParams{Status: &processing, Progress: ptrInt(10)}); err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}

	data, title, err := s.buildDataset(ctx, payload.OwnerID, payload.Request)
	if err != nil {
		s.markFailed(ctx, payload.JobID, err)
		return err
	}
	_ = s.repo.Update(ctx, payload.JobID, repository.UpdateExportJobParams{Progress: ptrInt(60)})

	var rendered []byte
	var ext string
	switch payload.Request.Format {
	case models.ExportFormatPDF:
		rendered, err = s.pdf.Render(data, title)
		ext = "pdf"
	default:
		rendered, err = s.csv.Render(data)
		ext = "csv"
	}
	if err != nil {
		s.markFailed(ctx, payload.JobID, err)
		return err
	}

	filename := fmt.Sprintf("%s_%s_%s.%s", payload.Request.Type, payload.Request.ClassID, payload.JobID[:8], ext)
	relPath, err := s.storage.Save(filename, rendered)
	if err != nil {
		s.markFailed(ctx, payload.JobID, err)
		return err
	}

	url, _, err := s.signer.Generate(payload.JobID, relPath)
	if err != nil {
		s.markFailed(ctx, payload.JobID, err)
		return err
	}

	finished := models.ExportStatusFinished
	now := time.Now().UTC()
	if err := s.repo.Update(ctx, payload.JobID, repository.UpdateExportJobParams{
		Status:     &finished,
		Progress:   ptrInt(100),
		ResultURL:  &url,
		FinishedAt: &now,
	}); err != nil {
		return fmt.Errorf("mark job finished: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordExportJob(string(models.ExportStatusFinished))
	}
	s.logger.Info("export finished", zap.String("job_id", payload.JobID), zap.String("file", filename))
	return nil
}

func (s *ExportService) buildDataset(ctx context.Context, ownerID string, req dto.ExportRequest) (export.Dataset, string, error) {
	switch req.Type {
	case models.ExportTypePerformance:
		report, err := s.reports.Performance(ctx, ownerID, req.ClassID)
		if err != nil {
			return export.Dataset{}, "", err
		}
		return performanceDataset(report), "Class Performance Report", nil
	case models.ExportTypeClassSummary:
		report, err := s.reports.ClassWise(ctx, ownerID, req.ClassID)
		if err != nil {
			return export.Dataset{}, "", err
		}
		return classSummaryDataset(report), "Class Summary Report", nil
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported export type %q", req.Type)
	}
}

func performanceDataset(report *dto.PerformanceReport) export.Dataset {
	data := export.Dataset{
		Headers: []string{"Rank", "Student", "Roll No", "Tests Taken", "Total Obtained", "Total Possible", "Average %", "Grade", "Status"},
	}
	for _, row := range report.TopPerformers {
		data.Rows = append(data.Rows, []string{
			strconv.Itoa(row.Rank),
			row.StudentName,
			row.RollNo,
			strconv.Itoa(row.TestsTaken),
			formatFloat(row.TotalObtained),
			formatFloat(row.TotalPossible),
			formatFloat(row.AveragePercentage),
			row.Grade,
			row.Status,
		})
	}
	return data
}

func classSummaryDataset(report *dto.ClassWiseReport) export.Dataset {
	data := export.Dataset{
		Headers: []string{"Subject", "Tests", "Average Score", "Highest Average", "Lowest Average"},
	}
	for _, subject := range report.Subjects {
		data.Rows = append(data.Rows, []string{
			subject.SubjectName,
			strconv.Itoa(subject.TotalTests),
			formatFloat(subject.AverageScore),
			formatFloat(subject.HighestAverage),
			formatFloat(subject.LowestAverage),
		})
	}
	return data
}

func (s *ExportService) markFailed(ctx context.Context, jobID string, cause error) {
	failed := models.ExportStatusFailed
	now := time.Now().UTC()
	msg := cause.Error()
	if err := s.repo.Update(ctx, jobID, repository.UpdateExportJobParams{
		Status:       &failed,
		FinishedAt:   &now,
		ErrorMessage: &msg,
	}); err != nil {
		s.logger.Warn("mark export failed", zap.String("job_id", jobID), zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.RecordExportJob(string(models.ExportStatusFailed))
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func ptr(v string) *string {
	return &v
}

func ptrInt(v int) *int {
	return &v
}
