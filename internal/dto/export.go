package dto

import (
	"time"

	"github.com/edupanel/edupanel-api/internal/models"
)

// ExportRequest queues an asynchronous report export.
type ExportRequest struct {
	Type    models.ExportType   `json:"type" validate:"required,oneof=performance class_summary"`
	ClassID string              `json:"class_id" validate:"required"`
	Format  models.ExportFormat `json:"format" validate:"required,oneof=csv pdf"`
}

// ExportJobResponse is returned after queuing an export.
type ExportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ExportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ExportStatusResponse reports job progress and the signed download URL once
// the export has finished.
type ExportStatusResponse struct {
	ID           string              `json:"id"`
	Type         models.ExportType   `json:"type"`
	Status       models.ExportStatus `json:"status"`
	Progress     int                 `json:"progress"`
	ResultURL    *string             `json:"result_url,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	FinishedAt   *time.Time          `json:"finished_at,omitempty"`
	ErrorMessage *string             `json:"error_message,omitempty"`
}
