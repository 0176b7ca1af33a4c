package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edupanel/edupanel-api/internal/models"
	"github.com/edupanel/edupanel-api/internal/service"
	appErrors "github.com/edupanel/edupanel-api/pkg/errors"
	"github.com/edupanel/edupanel-api/pkg/response"
)

// GradingScaleHandler exposes grade band configuration endpoints.
type GradingScaleHandler struct {
	scales *service.GradingScaleService
}

// NewGradingScaleHandler constructs handler.
func NewGradingScaleHandler(scales *service.GradingScaleService) *GradingScaleHandler {
	return &GradingScaleHandler{scales: scales}
}

type gradingScaleRequest struct {
	Bands models.GradeBands `json:"bands"`
}

// Get godoc
// @Summary Get the effective grading scale
// @Tags GradingScale
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /settings/grading-scale [get]
func (h *GradingScaleHandler) Get(c *gin.Context) {
	scale, err := h.scales.Get(c.Request.Context(), ownerFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "grading scale", scale)
}

// Set godoc
// @Summary Replace the grading scale
// @Tags GradingScale
// @Accept json
// @Produce json
// @Param payload body gradingScaleRequest true "Grade bands"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /settings/grading-scale [put]
func (h *GradingScaleHandler) Set(c *gin.Context) {
	var req gradingScaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	scale, err := h.scales.Set(c.Request.Context(), ownerFromContext(c), req.Bands)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "grading scale updated", scale)
}

// Reset godoc
// @Summary Revert to the default grading scale
// @Tags GradingScale
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /settings/grading-scale [delete]
func (h *GradingScaleHandler) Reset(c *gin.Context) {
	if err := h.scales.Reset(c.Request.Context(), ownerFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "grading scale reset", models.DefaultGradeBands)
}
