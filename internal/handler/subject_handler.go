package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/smart-edu-api/internal/models"
	"github.com/noah-isme/smart-edu-api/internal/service"
	appErrors "github.com/noah-isme/smart-edu-api/pkg/errors"
	"github.com/noah-isme/smart-edu-api/pkg/response"
)

// SubjectHandler exposes the subject registry.
type SubjectHandler struct {
	subjects *service.SubjectService
}

// NewSubjectHandler creates a new handler.
func NewSubjectHandler(subjects *service.SubjectService) *SubjectHandler {
	return &SubjectHandler{subjects: subjects}
}

// List godoc
// @Summary List subjects
// @Tags Subjects
// @Produce json
// @Param class_id query string false "Filter by attached class"
// @Param search query string false "Search by name"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size (max 100)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /subjects [get]
func (h *SubjectHandler) List(c *gin.Context) {
	filter := models.SubjectFilter{
		ClassID:   c.Query("class_id"),
		Search:    c.Query("search"),
		Page:      intQuery(c, "page", 1),
		PageSize:  intQuery(c, "page_size", 20),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	subjects, total, err := h.subjects.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subjects, paginationMeta(filter.Page, filter.PageSize, total))
}

// Get godoc
// @Summary Get subject
// @Tags Subjects
// @Produce json
// @Param id path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /subjects/{id} [get]
func (h *SubjectHandler) Get(c *gin.Context) {
	detail, err := h.subjects.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Create godoc
// @Summary Create subject
// @Tags Subjects
// @Accept json
// @Produce json
// @Param payload body service.SubjectRequest true "Subject payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /subjects [post]
func (h *SubjectHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.SubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid subject payload"))
		return
	}

	subject, err := h.subjects.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, subject)
}

// Update godoc
// @Summary Update subject
// @Tags Subjects
// @Accept json
// @Produce json
// @Param id path string true "Subject ID"
// @Param payload body service.SubjectRequest true "Subject payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /subjects/{id} [put]
func (h *SubjectHandler) Update(c *gin.Context) {
	var req service.SubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid subject payload"))
		return
	}

	subject, err := h.subjects.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subject, nil)
}

// Delete godoc
// @Summary Delete subject
// @Tags Subjects
// @Produce json
// @Param id path string true "Subject ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /subjects/{id} [delete]
func (h *SubjectHandler) Delete(c *gin.Context) {
	if err := h.subjects.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MySubjects godoc
// @Summary List the teacher's subjects
// @Tags Teacher
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /teacher/subjects [get]
func (h *SubjectHandler) MySubjects(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	subjects, err := h.subjects.ListForTeacher(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subjects, nil)
}

// SetMySubjects godoc
// @Summary Replace the teacher's subjects
// @Tags Teacher
// @Accept json
// @Produce json
// @Param payload body map[string][]string true "Subject IDs"
// @Success 204 {object} response.Envelope
// @Security BearerAuth
// @Router /teacher/subjects [put]
func (h *SubjectHandler) SetMySubjects(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		SubjectIDs []string `json:"subject_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "subject_ids required"))
		return
	}

	if err := h.subjects.SetForTeacher(c.Request.Context(), claims.UserID, payload.SubjectIDs); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
