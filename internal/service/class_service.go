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

type classRepository interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error)
	FindByID(ctx context.Context, id string) (*models.Class, error)
	FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error)
	ExistsByName(ctx context.Context, name string, excludeID string) (bool, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
	Delete(ctx context.Context, id string) error
	ListByTeacher(ctx context.Context, teacherID string) ([]models.Class, error)
}

// ClassRequest is the payload for creating or updating a class.
type ClassRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=100"`
	Description string `json:"description"`
}

// ClassService manages the class registry. Class names are unique and
// classes with enrolled students cannot be removed.
type ClassService struct {
	classes   classRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs a ClassService instance.
func NewClassService(classes classRepository, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ClassService{classes: classes, validator: validate, logger: logger}
}

// List returns classes matching the filter.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error) {
	classes, total, err := s.classes.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	return classes, total, nil
}

// Get returns a class with its member counts.
func (s *ClassService) Get(ctx context.Context, id string) (*models.ClassDetail, error) {
	detail, err := s.classes.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return detail, nil
}

// ListForTeacher returns the classes a teacher is attached to.
func (s *ClassService) ListForTeacher(ctx context.Context, teacherID string) ([]models.Class, error) {
	classes, err := s.classes.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	return classes, nil
}

// Create stores a new class with a unique name.
func (s *ClassService) Create(ctx context.Context, createdBy string, req ClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	exists, err := s.classes.ExistsByName(ctx, req.Name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "class name already exists")
	}

	now := time.Now().UTC()
	class := &models.Class{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.classes.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	return class, nil
}

// Update edits a class, keeping the name unique.
func (s *ClassService) Update(ctx context.Context, id string, req ClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	class, err := s.classes.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	exists, err := s.classes.ExistsByName(ctx, req.Name, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "class name already exists")
	}

	class.Name = req.Name
	class.Description = req.Description
	class.UpdatedAt = time.Now().UTC()
	if err := s.classes.Update(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	return class, nil
}

// Delete removes an empty class and its associations.
func (s *ClassService) Delete(ctx context.Context, id string) error {
	detail, err := s.classes.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if detail.StudentCount > 0 || detail.TeacherCount > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "class still has students or teachers attached")
	}

	if err := s.classes.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class")
	}
	return nil
}
