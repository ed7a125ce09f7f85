package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/smart-edu-api/internal/models"
	"github.com/noah-isme/smart-edu-api/internal/service"
	appErrors "github.com/noah-isme/smart-edu-api/pkg/errors"
	"github.com/noah-isme/smart-edu-api/pkg/response"
)

// UserHandler exposes the admin user registry.
type UserHandler struct {
	users *service.UserService
	stats *service.StatsService
}

// NewUserHandler creates a new handler.
func NewUserHandler(users *service.UserService, stats *service.StatsService) *UserHandler {
	return &UserHandler{users: users, stats: stats}
}

// List godoc
// @Summary List users
// @Description List all accounts with optional role filter and search
// @Tags Admin
// @Produce json
// @Param role query string false "Filter by role (ADMIN, TEACHER, STUDENT)"
// @Param search query string false "Search by name or email"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size (max 100)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/users [get]
func (h *UserHandler) List(c *gin.Context) {
	filter := models.UserFilter{
		Search:    c.Query("search"),
		Page:      intQuery(c, "page", 1),
		PageSize:  intQuery(c, "page_size", 20),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if raw := c.Query("role"); raw != "" {
		role := models.UserRole(raw)
		filter.Role = &role
	}

	users, total, err := h.users.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, users, paginationMeta(filter.Page, filter.PageSize, total))
}

// Get godoc
// @Summary Get user
// @Description Fetch a single account by ID
// @Tags Admin
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/users/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// Create godoc
// @Summary Create user
// @Description Provision an account of any role
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body service.CreateUserRequest true "User payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/users [post]
func (h *UserHandler) Create(c *gin.Context) {
	var req service.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid user payload"))
		return
	}

	user, err := h.users.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.stats.Invalidate(c.Request.Context())
	response.Created(c, user)
}

// Update godoc
// @Summary Update user
// @Description Edit an account's profile; the role never changes
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body service.UpdateUserRequest true "User payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/users/{id} [put]
func (h *UserHandler) Update(c *gin.Context) {
	var req service.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid user payload"))
		return
	}

	user, err := h.users.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.stats.Invalidate(c.Request.Context())
	response.JSON(c, http.StatusOK, user, nil)
}

// Delete godoc
// @Summary Delete user
// @Description Remove an account and everything attached to it
// @Tags Admin
// @Produce json
// @Param id path string true "User ID"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/users/{id} [delete]
func (h *UserHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.users.Delete(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}

	h.stats.Invalidate(c.Request.Context())
	response.NoContent(c)
}

// ExportCSV godoc
// @Summary Export users as CSV
// @Description Download the full user registry as a CSV file
// @Tags Admin
// @Produce text/csv
// @Success 200 {file} file
// @Security BearerAuth
// @Router /admin/export/users [get]
func (h *UserHandler) ExportCSV(c *gin.Context) {
	data, filename, err := h.users.ExportCSV(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, "text/csv", data)
}

// Stats godoc
// @Summary System statistics
// @Description Dashboard counters for the admin overview
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/stats [get]
func (h *UserHandler) Stats(c *gin.Context) {
	stats, err := h.stats.System(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
