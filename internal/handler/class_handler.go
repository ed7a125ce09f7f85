package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/smart-edu-api/internal/models"
	"github.com/noah-isme/smart-edu-api/internal/service"
	appErrors "github.com/noah-isme/smart-edu-api/pkg/errors"
	"github.com/noah-isme/smart-edu-api/pkg/response"
)

// ClassHandler exposes the class registry.
type ClassHandler struct {
	classes *service.ClassService
}

// NewClassHandler creates a new handler.
func NewClassHandler(classes *service.ClassService) *ClassHandler {
	return &ClassHandler{classes: classes}
}

// List godoc
// @Summary List classes
// @Tags Classes
// @Produce json
// @Param search query string false "Search by name"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size (max 100)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /classes [get]
func (h *ClassHandler) List(c *gin.Context) {
	filter := models.ClassFilter{
		Search:    c.Query("search"),
		Page:      intQuery(c, "page", 1),
		PageSize:  intQuery(c, "page_size", 20),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	classes, total, err := h.classes.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, paginationMeta(filter.Page, filter.PageSize, total))
}

// Get godoc
// @Summary Get class
// @Description Fetch one class with member counts
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /classes/{id} [get]
func (h *ClassHandler) Get(c *gin.Context) {
	detail, err := h.classes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Create godoc
// @Summary Create class
// @Tags Classes
// @Accept json
// @Produce json
// @Param payload body service.ClassRequest true "Class payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /classes [post]
func (h *ClassHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid class payload"))
		return
	}

	class, err := h.classes.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, class)
}

// Update godoc
// @Summary Update class
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body service.ClassRequest true "Class payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /classes/{id} [put]
func (h *ClassHandler) Update(c *gin.Context) {
	var req service.ClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid class payload"))
		return
	}

	class, err := h.classes.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// MyClasses godoc
// @Summary List the teacher's classes
// @Tags Teacher
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /teacher/classes [get]
func (h *ClassHandler) MyClasses(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	classes, err := h.classes.ListForTeacher(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, nil)
}

// Delete godoc
// @Summary Delete class
// @Description Remove a class that has no enrolled students
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /classes/{id} [delete]
func (h *ClassHandler) Delete(c *gin.Context) {
	if err := h.classes.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
