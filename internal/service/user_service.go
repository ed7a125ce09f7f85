package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/smart-edu-api/internal/models"
	"github.com/noah-isme/smart-edu-api/internal/repository"
	appErrors "github.com/noah-isme/smart-edu-api/pkg/errors"
	"github.com/noah-isme/smart-edu-api/pkg/export"
	"github.com/noah-isme/smart-edu-api/pkg/storage"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	ListAll(ctx context.Context) ([]models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	DeleteCascade(ctx context.Context, userID string) ([]string, error)
	SetTeacherClasses(ctx context.Context, teacherID string, classIDs []string) error
}

// UpdateUserRequest is the admin payload for editing a user. Role is
// absent on purpose; accounts never change role after creation.
type UpdateUserRequest struct {
	Name     string   `json:"name" validate:"required,min=2,max=100"`
	Email    string   `json:"email" validate:"required,email"`
	Password string   `json:"password" validate:"omitempty,min=6"`
	Subject  string   `json:"subject"`
	ClassID  string   `json:"class_id"`
	ClassIDs []string `json:"class_ids"`
}

// CreateUserRequest is the admin payload for provisioning an account.
type CreateUserRequest struct {
	Name     string          `json:"name" validate:"required,min=2,max=100"`
	Email    string          `json:"email" validate:"required,email"`
	Password string          `json:"password" validate:"required,min=6"`
	Role     models.UserRole `json:"role" validate:"required,oneof=ADMIN TEACHER STUDENT"`
	Subject  string          `json:"subject"`
	ClassID  string          `json:"class_id"`
	ClassIDs []string        `json:"class_ids"`
}

// UserService covers the admin user registry: listing, editing,
// cascade deletion, and the CSV export.
type UserService struct {
	users     userRepository
	uploads   *storage.UploadStore
	csv       *export.CSVExporter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs a UserService instance.
func NewUserService(users userRepository, uploads *storage.UploadStore, csv *export.CSVExporter, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{users: users, uploads: uploads, csv: csv, validator: validate, logger: logger}
}

// List returns users matching the filter with a total count.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, total, nil
}

// Get returns one user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create provisions an account of any role on behalf of an admin. The
// role is fixed at creation.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	exists, err := s.users.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         req.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	switch req.Role {
	case models.RoleTeacher:
		if req.Subject != "" {
			user.Subject = &req.Subject
		}
	case models.RoleStudent:
		if req.ClassID != "" {
			user.ClassID = &req.ClassID
		}
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}
	if req.Role == models.RoleTeacher && len(req.ClassIDs) > 0 {
		if err := s.users.SetTeacherClasses(ctx, user.ID, req.ClassIDs); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to attach classes")
		}
	}

	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// Update edits a user's profile. The role never changes; teacher class
// attachments are replaced when class_ids is provided.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Email != user.Email {
		exists, err := s.users.ExistsByEmail(ctx, req.Email)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
		}
	}

	user.Name = req.Name
	user.Email = req.Email
	user.UpdatedAt = time.Now().UTC()

	switch user.Role {
	case models.RoleTeacher:
		if req.Subject != "" {
			user.Subject = &req.Subject
		}
	case models.RoleStudent:
		if req.ClassID != "" {
			user.ClassID = &req.ClassID
		}
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		if err := s.users.UpdatePassword(ctx, id, string(hash), user.UpdatedAt); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
		}
	}

	if user.Role == models.RoleTeacher && len(req.ClassIDs) > 0 {
		if err := s.users.SetTeacherClasses(ctx, id, req.ClassIDs); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class attachments")
		}
	}
	return user, nil
}

// Delete removes a user and everything hanging off the account: for
// teachers their tasks with assignments and submissions, for students
// their assignments and submissions. Upload files are unlinked after
// the transaction commits.
func (s *UserService) Delete(ctx context.Context, id, requestedBy string) error {
	if id == requestedBy {
		return appErrors.Clone(appErrors.ErrValidation, "cannot delete your own account")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	files, err := s.users.DeleteCascade(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserOwnsRegistry) {
			return appErrors.Clone(appErrors.ErrConflict, "reassign the user's classes and subjects before deleting")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}
	for _, f := range files {
		if err := s.uploads.Delete(f); err != nil {
			s.logger.Warn("failed to remove upload", zap.String("file", f), zap.Error(err))
		}
	}

	s.logger.Info("user deleted",
		zap.String("user_id", id),
		zap.String("deleted_by", requestedBy),
		zap.Int("files_removed", len(files)))
	return nil
}

// ExportCSV renders the full user registry as CSV.
func (s *UserService) ExportCSV(ctx context.Context) ([]byte, string, error) {
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load users")
	}

	data := export.Dataset{
		Columns: []string{"ID", "Name", "Email", "User Type", "Subject/Class", "Created At"},
	}
	for _, user := range users {
		extra := ""
		switch {
		case user.Subject != nil:
			extra = *user.Subject
		case user.ClassName != nil:
			extra = *user.ClassName
		}
		data.Rows = append(data.Rows, map[string]string{
			"ID":            user.ID,
			"Name":          user.Name,
			"Email":         user.Email,
			"User Type":     string(user.Role),
			"Subject/Class": extra,
			"Created At":    user.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	out, err := s.csv.Render(data)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return out, "users_export.csv", nil
}
