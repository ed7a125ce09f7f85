package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/smart-edu-api/internal/models"
	"github.com/noah-isme/smart-edu-api/internal/priority"
	appErrors "github.com/noah-isme/smart-edu-api/pkg/errors"
	"github.com/noah-isme/smart-edu-api/pkg/storage"
)

type assignmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	FindDetailByID(ctx context.Context, id string) (*models.AssignmentDetail, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.AssignmentDetail, error)
	FindByTaskAndStudent(ctx context.Context, taskID, studentID string) (*models.Assignment, error)
	UpdateStatus(ctx context.Context, id string, status models.AssignmentStatus, submittedAt *time.Time) error
}

type assignmentTaskLookup interface {
	FindByID(ctx context.Context, id string) (*models.Task, error)
}

// StudentAssignment is one row of a student's task list with the
// effective status and submission state attached.
type StudentAssignment struct {
	models.AssignmentDetail
	EffectiveStatus models.AssignmentStatus `json:"effective_status"`
	Submission      *models.Submission      `json:"submission,omitempty"`
}

// AssignmentService covers the student's view of assigned tasks:
// listing them by priority, starting work, and reading attachments.
type AssignmentService struct {
	assignments assignmentRepository
	tasks       assignmentTaskLookup
	submissions submissionRepository
	uploads     *storage.UploadStore
	logger      *zap.Logger
}

// NewAssignmentService constructs an AssignmentService instance.
func NewAssignmentService(assignments assignmentRepository, tasks assignmentTaskLookup, submissions submissionRepository, uploads *storage.UploadStore, logger *zap.Logger) *AssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		assignments: assignments,
		tasks:       tasks,
		submissions: submissions,
		uploads:     uploads,
		logger:      logger,
	}
}

// ListForStudent returns a student's assignments ordered by priority
// rank, then by nearest deadline within the same rank.
func (s *AssignmentService) ListForStudent(ctx context.Context, studentID string) ([]StudentAssignment, error) {
	details, err := s.assignments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}

	now := time.Now().UTC()
	result := make([]StudentAssignment, 0, len(details))
	for _, d := range details {
		entry := StudentAssignment{
			AssignmentDetail: d,
			EffectiveStatus:  d.EffectiveStatus(now, d.TaskDeadline),
		}
		submission, err := s.submissions.FindByAssignment(ctx, d.ID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
		}
		if err == nil {
			entry.Submission = submission
		}
		result = append(result, entry)
	}

	sort.SliceStable(result, func(i, j int) bool {
		ri, rj := priority.Rank(result[i].TaskPriority), priority.Rank(result[j].TaskPriority)
		if ri != rj {
			return ri < rj
		}
		return result[i].TaskDeadline.Before(result[j].TaskDeadline)
	})
	return result, nil
}

// Get returns one assignment with derived status, restricted to its student.
func (s *AssignmentService) Get(ctx context.Context, assignmentID, studentID string) (*StudentAssignment, error) {
	detail, err := s.findOwned(ctx, assignmentID, studentID)
	if err != nil {
		return nil, err
	}

	entry := &StudentAssignment{
		AssignmentDetail: *detail,
		EffectiveStatus:  detail.EffectiveStatus(time.Now().UTC(), detail.TaskDeadline),
	}
	submission, err := s.submissions.FindByAssignment(ctx, detail.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	if err == nil {
		entry.Submission = submission
	}
	return entry, nil
}

// Start moves a pending assignment to in_progress. Completed
// assignments cannot be reopened.
func (s *AssignmentService) Start(ctx context.Context, assignmentID, studentID string) error {
	detail, err := s.findOwned(ctx, assignmentID, studentID)
	if err != nil {
		return err
	}
	if detail.Status == models.AssignmentCompleted {
		return appErrors.Clone(appErrors.ErrConflict, "assignment is already completed")
	}
	if detail.Status == models.AssignmentInProgress {
		return nil
	}

	if err := s.assignments.UpdateStatus(ctx, assignmentID, models.AssignmentInProgress, nil); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start assignment")
	}
	return nil
}

// TaskFilePath resolves the task attachment for an assigned student.
// Students can only read files of tasks assigned to them.
func (s *AssignmentService) TaskFilePath(ctx context.Context, taskID, studentID string) (string, string, error) {
	if _, err := s.assignments.FindByTaskAndStudent(ctx, taskID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", appErrors.Clone(appErrors.ErrForbidden, "task is not assigned to you")
		}
		return "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check assignment")
	}

	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}
	if task.FilePath == nil || !s.uploads.Exists(*task.FilePath) {
		return "", "", appErrors.Clone(appErrors.ErrNotFound, "task has no attachment")
	}
	return s.uploads.Path(*task.FilePath), storage.OriginalName(*task.FilePath), nil
}

func (s *AssignmentService) findOwned(ctx context.Context, assignmentID, studentID string) (*models.AssignmentDetail, error) {
	detail, err := s.assignments.FindDetailByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if detail.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "assignment belongs to another student")
	}
	return detail, nil
}
