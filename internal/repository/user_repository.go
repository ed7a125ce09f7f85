package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/smart-edu-api/internal/models"
)

// ErrUserOwnsRegistry is returned when a user still owns classes or
// subjects; those reference the creator and must be reassigned first.
var ErrUserOwnsRegistry = errors.New("user still owns classes or subjects")

// UserRepository manages persistence for users, their association rows
// and refresh token sessions.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs a new user repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = "id, name, email, password_hash, role, subject, class_id, created_at, updated_at"

// List returns users matching filter criteria.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	base := "FROM users WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(email) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"name":       true,
		"email":      true,
		"role":       true,
		"created_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", userColumns, base, sortBy, order, size, offset)
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	return users, total, nil
}

// ListAll returns every user ordered by creation time, for exports.
// Students carry their class name resolved for display.
func (r *UserRepository) ListAll(ctx context.Context) ([]models.User, error) {
	const query = `SELECT u.id, u.name, u.email, u.password_hash, u.role, u.subject, u.class_id, c.name AS class_name, u.created_at, u.updated_at
FROM users u LEFT JOIN classes c ON c.id = u.class_id
ORDER BY u.created_at`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query); err != nil {
		return nil, fmt.Errorf("list all users: %w", err)
	}
	return users, nil
}

// ListByRole returns every user holding the given role.
func (r *UserRepository) ListByRole(ctx context.Context, role models.UserRole) ([]models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE role = $1 ORDER BY created_at", userColumns)
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, role); err != nil {
		return nil, fmt.Errorf("list users by role: %w", err)
	}
	return users, nil
}

// FindByID returns a user record by ID.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE id = $1", userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail returns a user record by email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE LOWER(email) = LOWER($1)", userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, err
	}
	return &user, nil
}

// ExistsByEmail checks whether the email is already registered.
func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists, "SELECT 1 FROM users WHERE LOWER(email) = LOWER($1) LIMIT 1", email)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check user email: %w", err)
	}
	return true, nil
}

// Create persists a user record.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	const query = `INSERT INTO users (id, name, email, password_hash, role, subject, class_id, created_at, updated_at)
VALUES (:id, :name, :email, :password_hash, :role, :subject, :class_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Update modifies a user record. The role column is deliberately not
// part of the statement: roles are immutable after registration.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	const query = `UPDATE users SET name = :name, email = :email, subject = :subject, class_id = :class_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`, passwordHash, updatedAt, id); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// DeleteCascade removes a user and every row hanging off them in one
// transaction: submissions for the student's assignments, the
// assignments themselves, tasks the user created (with their fan-out),
// notifications, association rows and refresh tokens. It returns the
// stored filenames of every removed upload so the caller can unlink
// them after the transaction commits.
func (r *UserRepository) DeleteCascade(ctx context.Context, userID string) ([]string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete user: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// Classes and subjects reference their creator; they outlive the
	// account and must be reassigned before the delete can proceed.
	var owned int
	if err := tx.GetContext(ctx, &owned,
		`SELECT (SELECT COUNT(*) FROM classes WHERE created_by = $1)
+ (SELECT COUNT(*) FROM subjects WHERE created_by = $1)`, userID); err != nil {
		return nil, fmt.Errorf("check owned registries: %w", err)
	}
	if owned > 0 {
		return nil, ErrUserOwnsRegistry
	}

	var files []string

	// Work submitted by the user as a student.
	var submissionFiles []string
	if err := tx.SelectContext(ctx, &submissionFiles,
		`SELECT s.file_path FROM submissions s
JOIN assignments a ON a.id = s.assignment_id
WHERE a.student_id = $1 AND s.file_path IS NOT NULL`, userID); err != nil {
		return nil, fmt.Errorf("collect submission files: %w", err)
	}
	files = append(files, submissionFiles...)

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM submissions WHERE assignment_id IN (SELECT id FROM assignments WHERE student_id = $1)`, userID); err != nil {
		return nil, fmt.Errorf("delete user submissions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM assignments WHERE student_id = $1`, userID); err != nil {
		return nil, fmt.Errorf("delete user assignments: %w", err)
	}

	// Tasks authored by the user as a teacher, including their fan-out.
	var taskFiles []string
	if err := tx.SelectContext(ctx, &taskFiles,
		`SELECT file_path FROM tasks WHERE created_by = $1 AND file_path IS NOT NULL`, userID); err != nil {
		return nil, fmt.Errorf("collect task files: %w", err)
	}
	files = append(files, taskFiles...)

	var taskSubmissionFiles []string
	if err := tx.SelectContext(ctx, &taskSubmissionFiles,
		`SELECT s.file_path FROM submissions s
JOIN assignments a ON a.id = s.assignment_id
JOIN tasks t ON t.id = a.task_id
WHERE t.created_by = $1 AND s.file_path IS NOT NULL`, userID); err != nil {
		return nil, fmt.Errorf("collect authored task submission files: %w", err)
	}
	files = append(files, taskSubmissionFiles...)

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM submissions WHERE assignment_id IN (
SELECT a.id FROM assignments a JOIN tasks t ON t.id = a.task_id WHERE t.created_by = $1)`, userID); err != nil {
		return nil, fmt.Errorf("delete authored task submissions: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM assignments WHERE task_id IN (SELECT id FROM tasks WHERE created_by = $1)`, userID); err != nil {
		return nil, fmt.Errorf("delete authored task assignments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE created_by = $1`, userID); err != nil {
		return nil, fmt.Errorf("delete authored tasks: %w", err)
	}

	for _, stmt := range []string{
		`DELETE FROM notifications WHERE user_id = $1`,
		`DELETE FROM teacher_classes WHERE teacher_id = $1`,
		`DELETE FROM teacher_subjects WHERE teacher_id = $1`,
		`DELETE FROM refresh_tokens WHERE user_id = $1`,
		`DELETE FROM users WHERE id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, userID); err != nil {
			return nil, fmt.Errorf("cascade delete user: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete user: %w", err)
	}
	return files, nil
}

// SetTeacherClasses replaces the classes a teacher teaches.
func (r *UserRepository) SetTeacherClasses(ctx context.Context, teacherID string, classIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set teacher classes: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM teacher_classes WHERE teacher_id = $1`, teacherID); err != nil {
		return fmt.Errorf("clear teacher classes: %w", err)
	}
	for _, classID := range classIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO teacher_classes (teacher_id, class_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			teacherID, classID); err != nil {
			return fmt.Errorf("attach teacher class: %w", err)
		}
	}
	return tx.Commit()
}

// ListStudentsByClasses returns the distinct students belonging to any
// of the provided classes.
func (r *UserRepository) ListStudentsByClasses(ctx context.Context, classIDs []string) ([]models.User, error) {
	if len(classIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT DISTINCT %s FROM users WHERE role = $1 AND class_id = ANY($2) ORDER BY created_at`, userColumns)
	var students []models.User
	if err := r.db.SelectContext(ctx, &students, query, models.RoleStudent, pq.Array(classIDs)); err != nil {
		return nil, fmt.Errorf("list students by classes: %w", err)
	}
	return students, nil
}

// CreateRefreshToken persists a refresh token session.
func (r *UserRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const query = `INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at, revoked, ip_address, user_agent)
VALUES (:id, :user_id, :token, :expires_at, :created_at, :revoked, :ip_address, :user_agent)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken looks up a refresh token by its opaque value.
func (r *UserRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent
FROM refresh_tokens WHERE token = $1`
	var stored models.RefreshToken
	if err := r.db.GetContext(ctx, &stored, query, token); err != nil {
		return nil, err
	}
	return &stored, nil
}

// RevokeRefreshToken marks a single token revoked.
func (r *UserRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $1 WHERE id = $2`, revokedAt, id); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeUserRefreshTokens revokes every live token for a user.
func (r *UserRepository) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = NOW() WHERE user_id = $1 AND NOT revoked`, userID); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}
