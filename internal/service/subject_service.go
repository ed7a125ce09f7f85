package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/smart-edu-api/internal/models"
	appErrors "github.com/noah-isme/smart-edu-api/pkg/errors"
)

type subjectRepository interface {
	List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error)
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	Create(ctx context.Context, subject *models.Subject, classIDs []string) error
	Update(ctx context.Context, subject *models.Subject, classIDs []string) error
	Delete(ctx context.Context, id string) error
	CountClasses(ctx context.Context, subjectID string) (int, error)
	ClassIDs(ctx context.Context, subjectID string) ([]string, error)
	ListForClasses(ctx context.Context, classIDs []string) ([]models.Subject, error)
	ListTeacherSubjects(ctx context.Context, teacherID string) ([]models.Subject, error)
	ReplaceTeacherSubjects(ctx context.Context, teacherID string, subjectIDs []string) error
}

type subjectClassRepository interface {
	ExistAll(ctx context.Context, ids []string) (bool, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.Class, error)
}

// SubjectRequest is the payload for creating or updating a subject.
type SubjectRequest struct {
	Name        string   `json:"name" validate:"required,min=2,max=100"`
	Description string   `json:"description"`
	ClassIDs    []string `json:"class_ids"`
}

// SubjectService manages subjects and their class attachments.
type SubjectService struct {
	subjects  subjectRepository
	classes   subjectClassRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubjectService constructs a SubjectService instance.
func NewSubjectService(subjects subjectRepository, classes subjectClassRepository, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SubjectService{subjects: subjects, classes: classes, validator: validate, logger: logger}
}

// List returns subjects matching the filter.
func (s *SubjectService) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	subjects, total, err := s.subjects.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	return subjects, total, nil
}

// Get returns a subject with its attached classes.
func (s *SubjectService) Get(ctx context.Context, id string) (*models.SubjectDetail, error) {
	subject, err := s.subjects.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	classIDs, err := s.subjects.ClassIDs(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class attachments")
	}
	return &models.SubjectDetail{Subject: *subject, ClassIDs: classIDs}, nil
}

// Create stores a subject, optionally attached to classes.
func (s *SubjectService) Create(ctx context.Context, createdBy string, req SubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	if err := s.verifyClasses(ctx, req.ClassIDs); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	subject := &models.Subject{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.subjects.Create(ctx, subject, req.ClassIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}
	return subject, nil
}

// Update edits a subject and replaces its class attachments.
func (s *SubjectService) Update(ctx context.Context, id string, req SubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}

	subject, err := s.subjects.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if err := s.verifyClasses(ctx, req.ClassIDs); err != nil {
		return nil, err
	}

	subject.Name = req.Name
	subject.Description = req.Description
	subject.UpdatedAt = time.Now().UTC()
	if err := s.subjects.Update(ctx, subject, req.ClassIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subject")
	}
	return subject, nil
}

// Delete removes a subject. Subjects still attached to a class stay.
func (s *SubjectService) Delete(ctx context.Context, id string) error {
	if _, err := s.subjects.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	attached, err := s.subjects.CountClasses(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count class attachments")
	}
	if attached > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "subject is still attached to classes")
	}

	if err := s.subjects.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subject")
	}
	return nil
}

// ListForTeacher returns the subjects a teacher declared they teach.
func (s *SubjectService) ListForTeacher(ctx context.Context, teacherID string) ([]models.Subject, error) {
	subjects, err := s.subjects.ListTeacherSubjects(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teacher subjects")
	}
	return subjects, nil
}

// SetForTeacher replaces the subjects a teacher teaches. Only subjects
// attached to one of the teacher's classes can be selected.
func (s *SubjectService) SetForTeacher(ctx context.Context, teacherID string, subjectIDs []string) error {
	classes, err := s.classes.ListByTeacher(ctx, teacherID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	classIDs := make([]string, 0, len(classes))
	for _, class := range classes {
		classIDs = append(classIDs, class.ID)
	}

	available, err := s.subjects.ListForClasses(ctx, classIDs)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list available subjects")
	}
	allowed := make(map[string]bool, len(available))
	for _, subject := range available {
		allowed[subject.ID] = true
	}
	for _, id := range subjectIDs {
		if !allowed[id] {
			return appErrors.Clone(appErrors.ErrValidation, "subject is not available in your classes")
		}
	}

	if err := s.subjects.ReplaceTeacherSubjects(ctx, teacherID, subjectIDs); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher subjects")
	}
	return nil
}

func (s *SubjectService) verifyClasses(ctx context.Context, classIDs []string) error {
	if len(classIDs) == 0 {
		return nil
	}
	ok, err := s.classes.ExistAll(ctx, classIDs)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify classes")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrValidation, "one or more classes do not exist")
	}
	return nil
}
