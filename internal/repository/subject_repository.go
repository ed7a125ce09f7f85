package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/smart-edu-api/internal/models"
)

// SubjectRepository manages persistence for subjects and their
// class/teacher associations.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository constructs a new subject repository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// List returns subjects matching filter criteria.
func (r *SubjectRepository) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	base := "FROM subjects s WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM class_subjects cs WHERE cs.subject_id = s.id AND cs.class_id = $%d)", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.name) LIKE $%d)", len(args)+1))
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

	query := fmt.Sprintf("SELECT s.id, s.name, s.description, s.created_by, s.created_at, s.updated_at %s ORDER BY s.%s %s LIMIT %d OFFSET %d", base, sortBy, order, size, offset)
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list subjects: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count subjects: %w", err)
	}
	return subjects, total, nil
}

// FindByID returns a subject record by ID.
func (r *SubjectRepository) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	const query = `SELECT id, name, description, created_by, created_at, updated_at FROM subjects WHERE id = $1`
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, query, id); err != nil {
		return nil, err
	}
	return &subject, nil
}

// Create persists a subject and optionally attaches it to classes in
// the same transaction.
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject, classIDs []string) error {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if subject.CreatedAt.IsZero() {
		subject.CreatedAt = now
	}
	subject.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create subject: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `INSERT INTO subjects (id, name, description, created_by, created_at, updated_at)
VALUES (:id, :name, :description, :created_by, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, subject); err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	for _, classID := range classIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO class_subjects (class_id, subject_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			classID, subject.ID); err != nil {
			return fmt.Errorf("attach subject class: %w", err)
		}
	}
	return tx.Commit()
}

// Update modifies a subject and replaces its class attachments.
func (r *SubjectRepository) Update(ctx context.Context, subject *models.Subject, classIDs []string) error {
	subject.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update subject: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `UPDATE subjects SET name = :name, description = :description, updated_at = :updated_at WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, query, subject); err != nil {
		return fmt.Errorf("update subject: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM class_subjects WHERE subject_id = $1`, subject.ID); err != nil {
		return fmt.Errorf("clear subject classes: %w", err)
	}
	for _, classID := range classIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO class_subjects (class_id, subject_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			classID, subject.ID); err != nil {
			return fmt.Errorf("attach subject class: %w", err)
		}
	}
	return tx.Commit()
}

// Delete removes a subject and its teacher selections.
func (r *SubjectRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete subject: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range []string{
		`DELETE FROM teacher_subjects WHERE subject_id = $1`,
		`DELETE FROM subjects WHERE id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("delete subject: %w", err)
		}
	}
	return tx.Commit()
}

// CountClasses returns how many classes the subject is attached to.
func (r *SubjectRepository) CountClasses(ctx context.Context, subjectID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM class_subjects WHERE subject_id = $1`, subjectID); err != nil {
		return 0, fmt.Errorf("count subject classes: %w", err)
	}
	return count, nil
}

// ClassIDs returns the ids of classes the subject is attached to.
func (r *SubjectRepository) ClassIDs(ctx context.Context, subjectID string) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT class_id FROM class_subjects WHERE subject_id = $1 ORDER BY class_id`, subjectID); err != nil {
		return nil, fmt.Errorf("list subject classes: %w", err)
	}
	return ids, nil
}

// ListForClasses returns the subjects attached to any of the classes.
func (r *SubjectRepository) ListForClasses(ctx context.Context, classIDs []string) ([]models.Subject, error) {
	if len(classIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT DISTINCT s.id, s.name, s.description, s.created_by, s.created_at, s.updated_at
FROM subjects s JOIN class_subjects cs ON cs.subject_id = s.id
WHERE cs.class_id = ANY($1) ORDER BY s.name`
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, pq.Array(classIDs)); err != nil {
		return nil, fmt.Errorf("list subjects for classes: %w", err)
	}
	return subjects, nil
}

// ListTeacherSubjects returns the subjects a teacher has selected.
func (r *SubjectRepository) ListTeacherSubjects(ctx context.Context, teacherID string) ([]models.Subject, error) {
	const query = `SELECT s.id, s.name, s.description, s.created_by, s.created_at, s.updated_at
FROM subjects s JOIN teacher_subjects ts ON ts.subject_id = s.id
WHERE ts.teacher_id = $1 ORDER BY s.name`
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher subjects: %w", err)
	}
	return subjects, nil
}

// ReplaceTeacherSubjects swaps the teacher's selected subjects.
func (r *SubjectRepository) ReplaceTeacherSubjects(ctx context.Context, teacherID string, subjectIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace teacher subjects: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM teacher_subjects WHERE teacher_id = $1`, teacherID); err != nil {
		return fmt.Errorf("clear teacher subjects: %w", err)
	}
	for _, subjectID := range subjectIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO teacher_subjects (teacher_id, subject_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			teacherID, subjectID); err != nil {
			return fmt.Errorf("attach teacher subject: %w", err)
		}
	}
	return tx.Commit()
}
