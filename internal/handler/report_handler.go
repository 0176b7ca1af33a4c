package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/edupanel/edupanel-api/internal/dto"
	"github.com/edupanel/edupanel-api/internal/service"
	appErrors "github.com/edupanel/edupanel-api/pkg/errors"
	"github.com/edupanel/edupanel-api/pkg/response"
)

// ReportHandler exposes the read-side report endpoints.
type ReportHandler struct {
	reports *service.ReportService
}

// NewReportHandler constructs handler.
func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// ClassWise godoc
// @Summary Class-wise report with subject rollups
// @Tags Reports
// @Produce json
// @Param classId path string true "Class id"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /reports/class/{classId} [get]
func (h *ReportHandler) ClassWise(c *gin.Context) {
	report, err := h.reports.ClassWise(c.Request.Context(), ownerFromContext(c), c.Param("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "class-wise report", report)
}

// ClassSubject godoc
// @Summary Ranked students for a class within one subject
// @Tags Reports
// @Produce json
// @Param classId path string true "Class id"
// @Param subjectName path string true "Subject name"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /reports/class/{classId}/subject/{subjectName} [get]
func (h *ReportHandler) ClassSubject(c *gin.Context) {
	report, err := h.reports.ClassSubject(c.Request.Context(), ownerFromContext(c), c.Param("classId"), c.Param("subjectName"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "class subject report", report)
}

// StudentSubject godoc
// @Summary A student's published marks grouped by subject
// @Tags Reports
// @Produce json
// @Param studentId path string true "Student id"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /reports/student/{studentId} [get]
func (h *ReportHandler) StudentSubject(c *gin.Context) {
	report, err := h.reports.StudentSubject(c.Request.Context(), ownerFromContext(c), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "student subject report", report)
}

// DateRange godoc
// @Summary Tests within an inclusive date window with weekly trend
// @Tags Reports
// @Produce json
// @Param start_date query string true "Window start (YYYY-MM-DD)"
// @Param end_date query string true "Window end (YYYY-MM-DD)"
// @Param class_id query string false "Filter by class"
// @Param subject_name query string false "Filter by subject"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /reports/date-range [get]
func (h *ReportHandler) DateRange(c *gin.Context) {
	var req dto.DateRangeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	report, err := h.reports.DateRange(c.Request.Context(), ownerFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "date range report", report)
}

// Performance godoc
// @Summary Full class performance view with rankings and grade distribution
// @Tags Reports
// @Produce json
// @Param classId path string true "Class id"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /reports/performance/{classId} [get]
func (h *ReportHandler) Performance(c *gin.Context) {
	report, err := h.reports.Performance(c.Request.Context(), ownerFromContext(c), c.Param("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "performance report", report)
}
