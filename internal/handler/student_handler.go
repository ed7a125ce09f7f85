package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/smart-edu-api/internal/service"
	appErrors "github.com/noah-isme/smart-edu-api/pkg/errors"
	"github.com/noah-isme/smart-edu-api/pkg/response"
)

// StudentHandler exposes the student's assignment views.
type StudentHandler struct {
	assignments *service.AssignmentService
	submissions *service.SubmissionService
	stats       *service.StatsService
}

// NewStudentHandler creates a new handler.
func NewStudentHandler(assignments *service.AssignmentService, submissions *service.SubmissionService, stats *service.StatsService) *StudentHandler {
	return &StudentHandler{assignments: assignments, submissions: submissions, stats: stats}
}

// ListAssignments godoc
// @Summary List own assignments
// @Description Assignments ordered by priority rank, then nearest deadline
// @Tags Student
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /student/assignments [get]
func (h *StudentHandler) ListAssignments(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	assignments, err := h.assignments.ListForStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}

// GetAssignment godoc
// @Summary Get one assignment
// @Tags Student
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /student/assignments/{id} [get]
func (h *StudentHandler) GetAssignment(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	assignment, err := h.assignments.Get(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// StartAssignment godoc
// @Summary Start working on an assignment
// @Description Move a pending assignment to in_progress
// @Tags Student
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /student/assignments/{id}/start [post]
func (h *StudentHandler) StartAssignment(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.assignments.Start(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Submit godoc
// @Summary Submit work for an assignment
// @Description Hand in text content and an optional file; one submission per assignment
// @Tags Student
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Assignment ID"
// @Param content formData string false "Answer text"
// @Param file formData file false "Upload (max 10MB)"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /student/assignments/{id}/submit [post]
func (h *StudentHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := c.Request.ParseMultipartForm(16 << 20); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid multipart form"))
		return
	}

	req := service.SubmitRequest{Content: c.PostForm("content")}
	if file, err := c.FormFile("file"); err == nil {
		req.File = file
	}

	submission, err := h.submissions.Submit(c.Request.Context(), c.Param("id"), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.stats.Invalidate(c.Request.Context())
	response.Created(c, submission)
}

// DownloadTaskFile godoc
// @Summary Download the attachment of an assigned task
// @Tags Student
// @Produce application/octet-stream
// @Param id path string true "Task ID"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /student/tasks/{id}/file [get]
func (h *StudentHandler) DownloadTaskFile(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	path, original, err := h.assignments.TaskFilePath(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.FileAttachment(path, original)
}

// Progress godoc
// @Summary Own completion counters
// @Tags Student
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /student/progress [get]
func (h *StudentHandler) Progress(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	progress, err := h.stats.StudentProgress(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}
