package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/smart-edu-api/internal/service"
	appErrors "github.com/noah-isme/smart-edu-api/pkg/errors"
	"github.com/noah-isme/smart-edu-api/pkg/response"
)

// NotificationHandler exposes per-user notifications and admin
// announcements.
type NotificationHandler struct {
	notifications *service.NotificationService
}

// NewNotificationHandler creates a new handler.
func NewNotificationHandler(notifications *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List godoc
// @Summary List own notifications
// @Description Unread notifications by default; expired ones never appear
// @Tags Notifications
// @Produce json
// @Param include_read query bool false "Include already-read notifications"
// @Param limit query int false "Maximum rows"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	includeRead := c.Query("include_read") == "true"
	notifications, err := h.notifications.List(c.Request.Context(), claims.UserID, includeRead, intQuery(c, "limit", 10))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notifications, nil)
}

// UnreadCount godoc
// @Summary Count unread notifications
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /notifications/unread-count [get]
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	count, err := h.notifications.UnreadCount(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"unread_count": count}, nil)
}

// MarkRead godoc
// @Summary Mark one notification as read
// @Tags Notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.notifications.MarkRead(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MarkAllRead godoc
// @Summary Mark all notifications as read
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /notifications/read-all [post]
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	count, err := h.notifications.MarkAllRead(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"marked_read": count}, nil)
}

// Create godoc
// @Summary Create a notification for oneself
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body service.CreateNotificationRequest true "Notification payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /notifications [post]
func (h *NotificationHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid notification payload"))
		return
	}

	notification, err := h.notifications.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, notification)
}

// Broadcast godoc
// @Summary Send a system announcement
// @Description Fan a notification out to all users, teachers, or students
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body service.SystemNotificationRequest true "Announcement payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/notifications [post]
func (h *NotificationHandler) Broadcast(c *gin.Context) {
	var req service.SystemNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid announcement payload"))
		return
	}

	recipients, err := h.notifications.Broadcast(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"recipients": recipients}, nil)
}
