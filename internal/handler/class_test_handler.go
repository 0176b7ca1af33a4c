package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edupanel/edupanel-api/internal/dto"
	"github.com/edupanel/edupanel-api/internal/models"
	"github.com/edupanel/edupanel-api/internal/service"
	appErrors "github.com/edupanel/edupanel-api/pkg/errors"
	"github.com/edupanel/edupanel-api/pkg/response"
)

// ClassTestHandler exposes class test CRUD and lifecycle endpoints.
type ClassTestHandler struct {
	tests *service.ClassTestService
}

// NewClassTestHandler constructs handler.
func NewClassTestHandler(tests *service.ClassTestService) *ClassTestHandler {
	return &ClassTestHandler{tests: tests}
}

// Create godoc
// @Summary Create a class test with its mark roster
// @Tags ClassTests
// @Accept json
// @Produce json
// @Param payload body dto.CreateClassTestRequest true "Class test payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /class-tests [post]
func (h *ClassTestHandler) Create(c *gin.Context) {
	var req dto.CreateClassTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	test, err := h.tests.Create(c.Request.Context(), ownerFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "class test created", test)
}

// List godoc
// @Summary List class tests
// @Tags ClassTests
// @Produce json
// @Param class_id query string false "Filter by class"
// @Param subject_name query string false "Filter by subject"
// @Param test_type query string false "Filter by type"
// @Param status query string false "Filter by status"
// @Param search query string false "Search by test name"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /class-tests [get]
func (h *ClassTestHandler) List(c *gin.Context) {
	filter := models.ClassTestFilter{
		ClassID:     c.Query("class_id"),
		SubjectName: c.Query("subject_name"),
		TestType:    c.Query("test_type"),
		Status:      c.Query("status"),
		Search:      c.Query("search"),
		Page:        queryInt(c, "page", 1),
		PageSize:    queryInt(c, "page_size", 20),
		SortBy:      c.Query("sort_by"),
		SortOrder:   c.Query("sort_order"),
	}
	if raw := c.Query("date_from"); raw != "" {
		if ts, err := time.ParseInLocation("2006-01-02", raw, time.UTC); err == nil {
			filter.DateFrom = &ts
		}
	}
	if raw := c.Query("date_to"); raw != "" {
		if ts, err := time.ParseInLocation("2006-01-02", raw, time.UTC); err == nil {
			filter.DateTo = &ts
		}
	}

	tests, total, err := h.tests.List(c.Request.Context(), ownerFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, "class tests", tests, paginationMeta(filter.Page, filter.PageSize, total))
}

// Get godoc
// @Summary Get one class test
// @Tags ClassTests
// @Produce json
// @Param id path string true "Test id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /class-tests/{id} [get]
func (h *ClassTestHandler) Get(c *gin.Context) {
	test, err := h.tests.Get(c.Request.Context(), ownerFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "class test", test)
}

// Update godoc
// @Summary Partially update a class test
// @Tags ClassTests
// @Accept json
// @Produce json
// @Param id path string true "Test id"
// @Param payload body dto.UpdateClassTestRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /class-tests/{id} [put]
func (h *ClassTestHandler) Update(c *gin.Context) {
	var req dto.UpdateClassTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	test, err := h.tests.Update(c.Request.Context(), ownerFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "class test updated", test)
}

// Publish godoc
// @Summary Publish a class test
// @Tags ClassTests
// @Produce json
// @Param id path string true "Test id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /class-tests/{id}/publish [patch]
func (h *ClassTestHandler) Publish(c *gin.Context) {
	test, err := h.tests.Publish(c.Request.Context(), ownerFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "class test published", test)
}

// Delete godoc
// @Summary Delete a class test
// @Tags ClassTests
// @Produce json
// @Param id path string true "Test id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /class-tests/{id} [delete]
func (h *ClassTestHandler) Delete(c *gin.Context) {
	if err := h.tests.Delete(c.Request.Context(), ownerFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, "class test deleted", gin.H{"id": c.Param("id")})
}
