package service

import (
	"context"
	"database/sql"
	"errors"
	"mime/multipart"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/smart-edu-api/internal/models"
	"github.com/noah-isme/smart-edu-api/internal/repository"
	appErrors "github.com/noah-isme/smart-edu-api/pkg/errors"
	"github.com/noah-isme/smart-edu-api/pkg/storage"
)

type submissionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	FindByAssignment(ctx context.Context, assignmentID string) (*models.Submission, error)
	Create(ctx context.Context, submission *models.Submission) error
	UpdateGrade(ctx context.Context, id string, score int, feedback string, gradedBy string, at time.Time) error
}

type submissionNotifier interface {
	NotifySubmissionReceived(ctx context.Context, teacherID, studentName, taskTitle string) error
	NotifyFeedbackReceived(ctx context.Context, studentID, taskTitle string, score *int) error
}

// SubmitRequest is the multipart payload for handing in work.
type SubmitRequest struct {
	Content string `validate:"required_without=File"`
	File    *multipart.FileHeader
}

// GradeRequest carries a teacher's score and feedback. The score is a
// pointer so a missing field is rejected instead of reading as zero.
type GradeRequest struct {
	Score    *int   `json:"score" validate:"required,min=0,max=100"`
	Feedback string `json:"feedback"`
}

// SubmissionService covers handing in work and grading it. An
// assignment takes exactly one submission; grading without a prior
// submission creates an empty one so feedback is never lost.
type SubmissionService struct {
	submissions submissionRepository
	assignments assignmentRepository
	tasks       assignmentTaskLookup
	notifier    submissionNotifier
	uploads     *storage.UploadStore
	validator   *validator.Validate
	logger      *zap.Logger
	maxUpload   int64
	allowedExts []string
}

// NewSubmissionService constructs a SubmissionService instance.
func NewSubmissionService(
	submissions submissionRepository,
	assignments assignmentRepository,
	tasks assignmentTaskLookup,
	notifier submissionNotifier,
	uploads *storage.UploadStore,
	validate *validator.Validate,
	logger *zap.Logger,
	maxUpload int64,
	allowedExts []string,
) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SubmissionService{
		submissions: submissions,
		assignments: assignments,
		tasks:       tasks,
		notifier:    notifier,
		uploads:     uploads,
		validator:   validate,
		logger:      logger,
		maxUpload:   maxUpload,
		allowedExts: allowedExts,
	}
}

// Submit stores a student's work for an assignment and notifies the
// task's creator. A second submission for the same assignment is
// rejected.
func (s *SubmissionService) Submit(ctx context.Context, assignmentID string, student *models.JWTClaims, req SubmitRequest) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	detail, err := s.assignments.FindDetailByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if detail.StudentID != student.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "assignment belongs to another student")
	}

	var filePath *string
	if req.File != nil {
		stored, err := s.uploads.Save(req.File, s.maxUpload, s.allowedExts)
		if err != nil {
			var appErr *appErrors.Error
			if errors.As(err, &appErr) {
				return nil, appErr
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store upload")
		}
		filePath = &stored
	}

	submission := &models.Submission{
		AssignmentID: assignmentID,
		Content:      req.Content,
		FilePath:     filePath,
		SubmittedAt:  time.Now().UTC(),
	}
	if err := s.submissions.Create(ctx, submission); err != nil {
		if filePath != nil {
			if rmErr := s.uploads.Delete(*filePath); rmErr != nil {
				s.logger.Warn("failed to remove upload", zap.String("file", *filePath), zap.Error(rmErr))
			}
		}
		if errors.Is(err, repository.ErrDuplicateSubmission) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "assignment already has a submission")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create submission")
	}

	task, err := s.tasks.FindByID(ctx, detail.TaskID)
	if err != nil {
		s.logger.Warn("failed to load task for submission notice", zap.Error(err))
		return submission, nil
	}
	if err := s.notifier.NotifySubmissionReceived(ctx, task.CreatedBy, student.Name, task.Title); err != nil {
		s.logger.Warn("failed to notify teacher", zap.Error(err))
	}

	s.logger.Info("submission received",
		zap.String("assignment_id", assignmentID),
		zap.String("student_id", student.UserID))
	return submission, nil
}

// ForAssignment returns the submission handed in for an assignment.
// Only the task's creator may view it.
func (s *SubmissionService) ForAssignment(ctx context.Context, assignmentID, teacherID string) (*models.Submission, error) {
	detail, err := s.assignments.FindDetailByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}

	task, err := s.tasks.FindByID(ctx, detail.TaskID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}
	if task.CreatedBy != teacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "assignment is for another teacher's task")
	}

	submission, err := s.submissions.FindByAssignment(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no submission yet")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return submission, nil
}

// Grade records score and feedback for an assignment's submission,
// creating an empty submission first when the student never handed
// anything in. Only the task's creator may grade.
func (s *SubmissionService) Grade(ctx context.Context, assignmentID, teacherID string, req GradeRequest) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "score is required and must be between 0 and 100")
	}

	detail, err := s.assignments.FindDetailByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}

	task, err := s.tasks.FindByID(ctx, detail.TaskID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}
	if task.CreatedBy != teacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the task creator can grade")
	}

	submission, err := s.submissions.FindByAssignment(ctx, assignmentID)
	if errors.Is(err, sql.ErrNoRows) {
		submission = &models.Submission{
			AssignmentID: assignmentID,
			SubmittedAt:  time.Now().UTC(),
		}
		if createErr := s.submissions.Create(ctx, submission); createErr != nil {
			return nil, appErrors.Wrap(createErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create submission record")
		}
	} else if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}

	now := time.Now().UTC()
	if err := s.submissions.UpdateGrade(ctx, submission.ID, *req.Score, req.Feedback, teacherID, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store grade")
	}

	score := *req.Score
	submission.Score = &score
	submission.Feedback = &req.Feedback
	submission.FeedbackProvidedAt = &now
	submission.GradedBy = &teacherID

	if err := s.notifier.NotifyFeedbackReceived(ctx, detail.StudentID, task.Title, submission.Score); err != nil {
		s.logger.Warn("failed to notify student", zap.Error(err))
	}
	return submission, nil
}

// SubmissionFilePath resolves a submission upload for download. Access
// is limited to the submitting student and the task's creator.
func (s *SubmissionService) SubmissionFilePath(ctx context.Context, submissionID string, claims *models.JWTClaims) (string, string, error) {
	submission, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}

	detail, err := s.assignments.FindDetailByID(ctx, submission.AssignmentID)
	if err != nil {
		return "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}

	switch claims.Role {
	case models.RoleStudent:
		if detail.StudentID != claims.UserID {
			return "", "", appErrors.Clone(appErrors.ErrForbidden, "submission belongs to another student")
		}
	case models.RoleTeacher:
		task, err := s.tasks.FindByID(ctx, detail.TaskID)
		if err != nil {
			return "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
		}
		if task.CreatedBy != claims.UserID {
			return "", "", appErrors.Clone(appErrors.ErrForbidden, "submission is for another teacher's task")
		}
	case models.RoleAdmin:
		// admins may inspect any submission
	default:
		return "", "", appErrors.Clone(appErrors.ErrForbidden, "access denied")
	}

	if submission.FilePath == nil || !s.uploads.Exists(*submission.FilePath) {
		return "", "", appErrors.Clone(appErrors.ErrNotFound, "submission has no file")
	}
	return s.uploads.Path(*submission.FilePath), storage.OriginalName(*submission.FilePath), nil
}
