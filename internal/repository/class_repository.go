package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/smart-edu-api/internal/models"
)

// ClassRepository manages persistence for classes.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// List returns classes matching filter criteria.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error) {
	base := "FROM classes WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d)", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"name":       true,
		"created_at": true,
		"updated_at": true,
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

	query := fmt.Sprintf("SELECT id, name, description, created_by, created_at, updated_at %s ORDER BY %s %s LIMIT %d OFFSET %d", base, sortBy, order, size, offset)
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// FindByID returns a class record by ID.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	const query = `SELECT id, name, description, created_by, created_at, updated_at FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// FindDetailByID returns a class with its membership counts.
func (r *ClassRepository) FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error) {
	const query = `SELECT c.id, c.name, c.description, c.created_by, c.created_at, c.updated_at,
(SELECT COUNT(*) FROM users u WHERE u.class_id = c.id) AS student_count,
(SELECT COUNT(*) FROM teacher_classes tc WHERE tc.class_id = c.id) AS teacher_count
FROM classes c WHERE c.id = $1`
	var detail models.ClassDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsByName checks if a class with the same name already exists.
func (r *ClassRepository) ExistsByName(ctx context.Context, name string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM classes WHERE LOWER(name) = LOWER($1)"
	args := []interface{}{name}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check class name: %w", err)
	}
	return true, nil
}

// ExistAll reports whether every provided id matches a class row.
func (r *ClassRepository) ExistAll(ctx context.Context, ids []string) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}
	var count int
	if err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(DISTINCT id) FROM classes WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return false, fmt.Errorf("check class ids: %w", err)
	}
	distinct := map[string]struct{}{}
	for _, id := range ids {
		distinct[id] = struct{}{}
	}
	return count == len(distinct), nil
}

// Create persists a class record.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now

	const query = `INSERT INTO classes (id, name, description, created_by, created_at, updated_at)
VALUES (:id, :name, :description, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Update modifies a class record.
func (r *ClassRepository) Update(ctx context.Context, class *models.Class) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET name = :name, description = :description, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	return nil
}

// Delete removes a class record and its association rows.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete class: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range []string{
		`DELETE FROM class_subjects WHERE class_id = $1`,
		`DELETE FROM teacher_classes WHERE class_id = $1`,
		`DELETE FROM classes WHERE id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("delete class: %w", err)
		}
	}
	return tx.Commit()
}

// ListByTeacher returns the classes a teacher teaches.
func (r *ClassRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.Class, error) {
	const query = `SELECT c.id, c.name, c.description, c.created_by, c.created_at, c.updated_at
FROM classes c JOIN teacher_classes tc ON tc.class_id = c.id
WHERE tc.teacher_id = $1 ORDER BY c.name`
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, teacherID); err != nil {
		return nil, fmt.Errorf("list classes by teacher: %w", err)
	}
	return classes, nil
}

// TeacherTeaches reports whether the teacher is attached to every one of
// the provided classes.
func (r *ClassRepository) TeacherTeaches(ctx context.Context, teacherID string, classIDs []string) (bool, error) {
	if len(classIDs) == 0 {
		return true, nil
	}
	var count int
	if err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(DISTINCT class_id) FROM teacher_classes WHERE teacher_id = $1 AND class_id = ANY($2)`,
		teacherID, pq.Array(classIDs)); err != nil {
		return false, fmt.Errorf("check teacher classes: %w", err)
	}
	distinct := map[string]struct{}{}
	for _, id := range classIDs {
		distinct[id] = struct{}{}
	}
	return count == len(distinct), nil
}
