package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"mime/multipart"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/smart-edu-api/internal/models"
	"github.com/noah-isme/smart-edu-api/internal/priority"
	appErrors "github.com/noah-isme/smart-edu-api/pkg/errors"
	"github.com/noah-isme/smart-edu-api/pkg/export"
	"github.com/noah-isme/smart-edu-api/pkg/storage"
)

type taskRepository interface {
	FindByID(ctx context.Context, id string) (*models.Task, error)
	ListByCreator(ctx context.Context, filter models.TaskFilter) ([]models.Task, int, error)
	ListAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, int, error)
	CreateWithFanOut(ctx context.Context, task *models.Task, studentIDs []string, notifications []models.Notification) error
	UpdateWithFanOut(ctx context.Context, task *models.Task, studentIDs []string, notifications []models.Notification) ([]string, error)
	DeleteCascade(ctx context.Context, taskID string) ([]string, error)
}

type taskAssignmentRepository interface {
	ListByTask(ctx context.Context, taskID string) ([]models.AssignmentDetail, error)
}

type taskClassRepository interface {
	ExistAll(ctx context.Context, ids []string) (bool, error)
	TeacherTeaches(ctx context.Context, teacherID string, classIDs []string) (bool, error)
}

type taskStudentLister interface {
	ListStudentsByClasses(ctx context.Context, classIDs []string) ([]models.User, error)
}

type fanOutRecorder interface {
	RecordFanOut(students int)
}

// CreateTaskRequest is the multipart payload for creating a task.
type CreateTaskRequest struct {
	Title        string `validate:"required,max=200"`
	Description  string
	Deadline     time.Time `validate:"required"`
	Priority     string
	Instructions string
	ClassIDs     []string `validate:"required,min=1,dive,required"`
	File         *multipart.FileHeader
}

// UpdateTaskRequest mirrors CreateTaskRequest for edits.
type UpdateTaskRequest struct {
	Title        string `validate:"required,max=200"`
	Description  string
	Deadline     time.Time `validate:"required"`
	Priority     string
	Instructions string
	ClassIDs     []string `validate:"required,min=1,dive,required"`
	File         *multipart.FileHeader
}

// TaskProgress is the per-task completion report for its creator.
type TaskProgress struct {
	Task        models.Task             `json:"task"`
	Assignments []AssignmentStatusEntry `json:"assignments"`
	Summary     TaskProgressSummary     `json:"summary"`
}

// AssignmentStatusEntry is one student's row in a progress report, with
// the effective status derived against the deadline.
type AssignmentStatusEntry struct {
	AssignmentID string                  `json:"assignment_id"`
	StudentID    string                  `json:"student_id"`
	StudentName  string                  `json:"student_name"`
	Status       models.AssignmentStatus `json:"status"`
	SubmittedAt  *time.Time              `json:"submitted_at,omitempty"`
}

// TaskProgressSummary aggregates a progress report.
type TaskProgressSummary struct {
	Total      int     `json:"total"`
	Completed  int     `json:"completed"`
	InProgress int     `json:"in_progress"`
	Pending    int     `json:"pending"`
	Overdue    int     `json:"overdue"`
	Rate       float64 `json:"completion_rate"`
}

// TaskService owns the task lifecycle: creation with per-student
// fan-out, edits that rebuild the fan-out, cascade deletion, and
// progress reporting. Upload files are written before the transaction
// and removed again if it fails; files orphaned by a cascade are
// removed only after commit.
type TaskService struct {
	tasks       taskRepository
	assignments taskAssignmentRepository
	classes     taskClassRepository
	students    taskStudentLister
	uploads     *storage.UploadStore
	pdf         *export.PDFExporter
	validator   *validator.Validate
	logger      *zap.Logger
	metrics     fanOutRecorder
	maxUpload   int64
	allowedExts []string
}

// NewTaskService constructs a TaskService instance.
func NewTaskService(
	tasks taskRepository,
	assignments taskAssignmentRepository,
	classes taskClassRepository,
	students taskStudentLister,
	uploads *storage.UploadStore,
	pdf *export.PDFExporter,
	validate *validator.Validate,
	logger *zap.Logger,
	maxUpload int64,
	allowedExts []string,
) *TaskService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &TaskService{
		tasks:       tasks,
		assignments: assignments,
		classes:     classes,
		students:    students,
		uploads:     uploads,
		pdf:         pdf,
		validator:   validate,
		logger:      logger,
		maxUpload:   maxUpload,
		allowedExts: allowedExts,
	}
}

// SetMetrics attaches an optional fan-out size recorder.
func (s *TaskService) SetMetrics(m fanOutRecorder) {
	s.metrics = m
}

// List returns the tasks created by a teacher.
func (s *TaskService) List(ctx context.Context, teacherID string, filter models.TaskFilter) ([]models.Task, int, error) {
	filter.CreatedBy = teacherID
	tasks, total, err := s.tasks.ListByCreator(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tasks")
	}
	return tasks, total, nil
}

// ListAll returns every teacher's tasks. Admin only.
func (s *TaskService) ListAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, int, error) {
	tasks, total, err := s.tasks.ListAll(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tasks")
	}
	return tasks, total, nil
}

// Get returns a task, restricted to its creator.
func (s *TaskService) Get(ctx context.Context, taskID, teacherID string) (*models.Task, error) {
	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}
	if task.CreatedBy != teacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "task belongs to another teacher")
	}
	return task, nil
}

// Create stores a task and fans it out to every student of the target
// classes. A blank priority is predicted from the description.
func (s *TaskService) Create(ctx context.Context, teacher *models.JWTClaims, req CreateTaskRequest) (*models.Task, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid task payload")
	}

	label, err := s.resolvePriority(req.Priority, req.Description)
	if err != nil {
		return nil, err
	}
	studentIDs, students, err := s.resolveAudience(ctx, teacher.UserID, req.ClassIDs)
	if err != nil {
		return nil, err
	}

	var filePath *string
	if req.File != nil {
		stored, err := s.saveUpload(req.File)
		if err != nil {
			return nil, err
		}
		filePath = &stored
	}

	task := &models.Task{
		Title:        req.Title,
		Description:  req.Description,
		Deadline:     req.Deadline,
		Priority:     label,
		Instructions: req.Instructions,
		FilePath:     filePath,
		CreatedBy:    teacher.UserID,
	}

	notifications := make([]models.Notification, 0, len(students))
	for _, student := range students {
		notifications = append(notifications, TaskAssignedNotification(student.ID, task.Title, teacher.Name))
	}

	if err := s.tasks.CreateWithFanOut(ctx, task, studentIDs, notifications); err != nil {
		s.removeFile(filePath)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create task")
	}

	if s.metrics != nil {
		s.metrics.RecordFanOut(len(studentIDs))
	}
	s.logger.Info("task created",
		zap.String("task_id", task.ID),
		zap.String("teacher_id", teacher.UserID),
		zap.Int("students", len(studentIDs)))
	return task, nil
}

// Update edits a task and rebuilds its fan-out. Submissions tied to the
// previous fan-out are removed, their files unlinked after commit.
func (s *TaskService) Update(ctx context.Context, taskID string, teacher *models.JWTClaims, req UpdateTaskRequest) (*models.Task, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid task payload")
	}

	task, err := s.Get(ctx, taskID, teacher.UserID)
	if err != nil {
		return nil, err
	}

	label, err := s.resolvePriority(req.Priority, req.Description)
	if err != nil {
		return nil, err
	}
	studentIDs, students, err := s.resolveAudience(ctx, teacher.UserID, req.ClassIDs)
	if err != nil {
		return nil, err
	}

	oldFile := task.FilePath
	var newFile *string
	if req.File != nil {
		stored, err := s.saveUpload(req.File)
		if err != nil {
			return nil, err
		}
		newFile = &stored
		task.FilePath = newFile
	}

	task.Title = req.Title
	task.Description = req.Description
	task.Deadline = req.Deadline
	task.Priority = label
	task.Instructions = req.Instructions

	notifications := make([]models.Notification, 0, len(students))
	for _, student := range students {
		notifications = append(notifications, TaskUpdatedNotification(student.ID, task.Title, teacher.Name))
	}

	orphaned, err := s.tasks.UpdateWithFanOut(ctx, task, studentIDs, notifications)
	if err != nil {
		s.removeFile(newFile)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update task")
	}

	if newFile != nil && oldFile != nil {
		orphaned = append(orphaned, *oldFile)
	}
	s.removeFiles(orphaned)
	return task, nil
}

// Delete removes a task, its assignments and submissions, then their
// files from disk.
func (s *TaskService) Delete(ctx context.Context, taskID, teacherID string) error {
	if _, err := s.Get(ctx, taskID, teacherID); err != nil {
		return err
	}

	files, err := s.tasks.DeleteCascade(ctx, taskID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete task")
	}
	s.removeFiles(files)

	s.logger.Info("task deleted", zap.String("task_id", taskID), zap.Int("files_removed", len(files)))
	return nil
}

// DeleteAny removes any teacher's task regardless of ownership. Admin
// only; the same cascade and file cleanup as Delete.
func (s *TaskService) DeleteAny(ctx context.Context, taskID string) error {
	if _, err := s.tasks.FindByID(ctx, taskID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}

	files, err := s.tasks.DeleteCascade(ctx, taskID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete task")
	}
	s.removeFiles(files)

	s.logger.Info("task deleted by admin", zap.String("task_id", taskID), zap.Int("files_removed", len(files)))
	return nil
}

// Progress builds the creator's completion report with derived statuses.
func (s *TaskService) Progress(ctx context.Context, taskID, teacherID string) (*TaskProgress, error) {
	task, err := s.Get(ctx, taskID, teacherID)
	if err != nil {
		return nil, err
	}

	details, err := s.assignments.ListByTask(ctx, taskID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignments")
	}

	now := time.Now().UTC()
	progress := &TaskProgress{Task: *task, Assignments: make([]AssignmentStatusEntry, 0, len(details))}
	for _, d := range details {
		status := d.EffectiveStatus(now, task.Deadline)
		progress.Assignments = append(progress.Assignments, AssignmentStatusEntry{
			AssignmentID: d.ID,
			StudentID:    d.StudentID,
			StudentName:  d.StudentName,
			Status:       status,
			SubmittedAt:  d.SubmittedAt,
		})
		progress.Summary.Total++
		switch status {
		case models.AssignmentCompleted:
			progress.Summary.Completed++
		case models.AssignmentInProgress:
			progress.Summary.InProgress++
		case models.AssignmentOverdue:
			progress.Summary.Overdue++
		default:
			progress.Summary.Pending++
		}
	}
	if progress.Summary.Total > 0 {
		progress.Summary.Rate = float64(progress.Summary.Completed) / float64(progress.Summary.Total) * 100
	}
	return progress, nil
}

// ProgressPDF renders the progress report as a PDF document.
func (s *TaskService) ProgressPDF(ctx context.Context, taskID, teacherID string) ([]byte, string, error) {
	progress, err := s.Progress(ctx, taskID, teacherID)
	if err != nil {
		return nil, "", err
	}

	data := export.Dataset{
		Columns: []string{"Student", "Status", "Submitted At"},
	}
	for _, entry := range progress.Assignments {
		submitted := "-"
		if entry.SubmittedAt != nil {
			submitted = entry.SubmittedAt.Format("2006-01-02 15:04")
		}
		data.Rows = append(data.Rows, map[string]string{
			"Student":      entry.StudentName,
			"Status":       string(entry.Status),
			"Submitted At": submitted,
		})
	}

	pdf, err := s.pdf.Render(data, fmt.Sprintf("Task Progress: %s", progress.Task.Title))
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render progress report")
	}
	filename := fmt.Sprintf("task_progress_%s.pdf", taskID)
	return pdf, filename, nil
}

// TaskFile opens a task attachment for its creator or an assigned
// student. The caller closes the file.
func (s *TaskService) TaskFile(ctx context.Context, taskID string) (*models.Task, string, error) {
	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}
	if task.FilePath == nil || !s.uploads.Exists(*task.FilePath) {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "task has no attachment")
	}
	return task, s.uploads.Path(*task.FilePath), nil
}

func (s *TaskService) resolvePriority(raw, description string) (models.PriorityLabel, error) {
	if raw == "" {
		return priority.Predict(description), nil
	}
	label := models.PriorityLabel(raw)
	if !label.Valid() {
		return "", appErrors.Clone(appErrors.ErrValidation, "unknown priority label")
	}
	return label, nil
}

func (s *TaskService) resolveAudience(ctx context.Context, teacherID string, classIDs []string) ([]string, []models.User, error) {
	ok, err := s.classes.ExistAll(ctx, classIDs)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify classes")
	}
	if !ok {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "one or more classes do not exist")
	}

	teaches, err := s.classes.TeacherTeaches(ctx, teacherID, classIDs)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify class membership")
	}
	if !teaches {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "teacher is not attached to all target classes")
	}

	students, err := s.students.ListStudentsByClasses(ctx, classIDs)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve students")
	}

	ids := make([]string, 0, len(students))
	for _, student := range students {
		ids = append(ids, student.ID)
	}
	return ids, students, nil
}

func (s *TaskService) saveUpload(file *multipart.FileHeader) (string, error) {
	stored, err := s.uploads.Save(file, s.maxUpload, s.allowedExts)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return "", appErr
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store upload")
	}
	return stored, nil
}

func (s *TaskService) removeFile(stored *string) {
	if stored == nil {
		return
	}
	s.removeFiles([]string{*stored})
}

func (s *TaskService) removeFiles(files []string) {
	for _, f := range files {
		if err := s.uploads.Delete(f); err != nil {
			s.logger.Warn("failed to remove upload", zap.String("file", f), zap.Error(err))
		}
	}
}
