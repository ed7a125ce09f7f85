package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/smart-edu-api/internal/models"
	"github.com/noah-isme/smart-edu-api/internal/service"
	appErrors "github.com/noah-isme/smart-edu-api/pkg/errors"
	"github.com/noah-isme/smart-edu-api/pkg/response"
	"github.com/noah-isme/smart-edu-api/pkg/storage"
)

// TaskHandler exposes the teacher's task lifecycle endpoints.
type TaskHandler struct {
	tasks       *service.TaskService
	submissions *service.SubmissionService
	stats       *service.StatsService
}

// NewTaskHandler creates a new handler.
func NewTaskHandler(tasks *service.TaskService, submissions *service.SubmissionService, stats *service.StatsService) *TaskHandler {
	return &TaskHandler{tasks: tasks, submissions: submissions, stats: stats}
}

var deadlineFormats = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"}

func parseDeadline(raw string) (time.Time, error) {
	for _, layout := range deadlineFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized deadline %q", raw)
}

func (h *TaskHandler) bindTaskForm(c *gin.Context) (service.CreateTaskRequest, error) {
	var req service.CreateTaskRequest
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		return req, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid multipart form")
	}

	req.Title = c.PostForm("title")
	req.Description = c.PostForm("description")
	req.Priority = c.PostForm("priority")
	req.Instructions = c.PostForm("instructions")
	req.ClassIDs = c.PostFormArray("class_ids")

	deadline, err := parseDeadline(c.PostForm("deadline"))
	if err != nil {
		return req, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "deadline must be a valid timestamp")
	}
	req.Deadline = deadline

	if file, err := c.FormFile("file"); err == nil {
		req.File = file
	}
	return req, nil
}

// List godoc
// @Summary List own tasks
// @Tags Tasks
// @Produce json
// @Param search query string false "Search by title"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size (max 100)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /teacher/tasks [get]
func (h *TaskHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.TaskFilter{
		Search:    c.Query("search"),
		Page:      intQuery(c, "page", 1),
		PageSize:  intQuery(c, "page_size", 20),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	tasks, total, err := h.tasks.List(c.Request.Context(), claims.UserID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tasks, paginationMeta(filter.Page, filter.PageSize, total))
}

// Get godoc
// @Summary Get own task
// @Tags Tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /teacher/tasks/{id} [get]
func (h *TaskHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	task, err := h.tasks.Get(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, task, nil)
}

// Create godoc
// @Summary Create task
// @Description Create a task and assign it to every student of the target classes
// @Tags Tasks
// @Accept multipart/form-data
// @Produce json
// @Param title formData string true "Title"
// @Param description formData string false "Description"
// @Param deadline formData string true "Deadline (RFC3339)"
// @Param priority formData string false "Priority label; predicted from the description when empty"
// @Param instructions formData string false "Instructions"
// @Param class_ids formData []string true "Target class IDs"
// @Param file formData file false "Attachment (max 20MB)"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /teacher/tasks [post]
func (h *TaskHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	req, err := h.bindTaskForm(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	task, err := h.tasks.Create(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.stats.Invalidate(c.Request.Context())
	response.Created(c, task)
}

// Update godoc
// @Summary Update task
// @Description Edit a task; assignments are rebuilt and students re-notified
// @Tags Tasks
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /teacher/tasks/{id} [put]
func (h *TaskHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	form, err := h.bindTaskForm(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	req := service.UpdateTaskRequest{
		Title:        form.Title,
		Description:  form.Description,
		Deadline:     form.Deadline,
		Priority:     form.Priority,
		Instructions: form.Instructions,
		ClassIDs:     form.ClassIDs,
		File:         form.File,
	}

	task, err := h.tasks.Update(c.Request.Context(), c.Param("id"), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.stats.Invalidate(c.Request.Context())
	response.JSON(c, http.StatusOK, task, nil)
}

// Delete godoc
// @Summary Delete task
// @Description Remove a task with its assignments, submissions and files
// @Tags Tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /teacher/tasks/{id} [delete]
func (h *TaskHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.tasks.Delete(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}

	h.stats.Invalidate(c.Request.Context())
	response.NoContent(c)
}

// AdminList godoc
// @Summary List all tasks
// @Description Every teacher's tasks, for the admin registry
// @Tags Admin
// @Produce json
// @Param search query string false "Search by title"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size (max 100)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/tasks [get]
func (h *TaskHandler) AdminList(c *gin.Context) {
	filter := models.TaskFilter{
		Search:    c.Query("search"),
		Page:      intQuery(c, "page", 1),
		PageSize:  intQuery(c, "page_size", 20),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	tasks, total, err := h.tasks.ListAll(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tasks, paginationMeta(filter.Page, filter.PageSize, total))
}

// AdminDelete godoc
// @Summary Delete any task
// @Description Remove any teacher's task with its assignments, submissions and files
// @Tags Admin
// @Produce json
// @Param id path string true "Task ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/tasks/{id} [delete]
func (h *TaskHandler) AdminDelete(c *gin.Context) {
	if err := h.tasks.DeleteAny(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	h.stats.Invalidate(c.Request.Context())
	response.NoContent(c)
}

// Progress godoc
// @Summary Task progress
// @Description Per-student completion report with derived statuses
// @Tags Tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /teacher/tasks/{id}/progress [get]
func (h *TaskHandler) Progress(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	progress, err := h.tasks.Progress(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}

// ProgressPDF godoc
// @Summary Export task progress as PDF
// @Tags Tasks
// @Produce application/pdf
// @Param id path string true "Task ID"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /teacher/tasks/{id}/progress/export [get]
func (h *TaskHandler) ProgressPDF(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	data, filename, err := h.tasks.ProgressPDF(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, "application/pdf", data)
}

// Grade godoc
// @Summary Grade an assignment
// @Description Record score and feedback; creates an empty submission when none exists
// @Tags Tasks
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body service.GradeRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /teacher/assignments/{id}/grade [post]
func (h *TaskHandler) Grade(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.GradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid grade payload"))
		return
	}

	submission, err := h.submissions.Grade(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// GetSubmission godoc
// @Summary View an assignment's submission
// @Tags Tasks
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /teacher/assignments/{id}/submission [get]
func (h *TaskHandler) GetSubmission(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	submission, err := h.submissions.ForAssignment(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// Dashboard godoc
// @Summary Teacher dashboard
// @Description Own tasks plus per-student completion rollups
// @Tags Tasks
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /teacher/dashboard [get]
func (h *TaskHandler) Dashboard(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	dashboard, err := h.stats.TeacherDashboard(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dashboard, nil)
}

// DownloadTaskFile godoc
// @Summary Download own task attachment
// @Tags Tasks
// @Produce application/octet-stream
// @Param id path string true "Task ID"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /teacher/tasks/{id}/file [get]
func (h *TaskHandler) DownloadTaskFile(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	task, path, err := h.tasks.TaskFile(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if task.CreatedBy != claims.UserID {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "task belongs to another teacher"))
		return
	}

	c.FileAttachment(path, storage.OriginalName(*task.FilePath))
}

// DownloadSubmissionFile godoc
// @Summary Download a submission upload
// @Tags Tasks
// @Produce application/octet-stream
// @Param id path string true "Submission ID"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /submissions/{id}/file [get]
func (h *TaskHandler) DownloadSubmissionFile(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	path, original, err := h.submissions.SubmissionFilePath(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.FileAttachment(path, original)
}
