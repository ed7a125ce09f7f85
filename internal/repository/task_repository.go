package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/smart-edu-api/internal/models"
)

// TaskRepository manages persistence for tasks and the per-student
// fan-out they carry. Every multi-row lifecycle write runs inside a
// single transaction so a crash never leaves assignments without their
// notifications or half of a cascade delete applied.
type TaskRepository struct {
	db *sqlx.DB
}

// NewTaskRepository constructs a new task repository.
func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = "id, title, description, deadline, priority, instructions, file_path, created_by, created_at, updated_at"

// FindByID returns a task record by ID.
func (r *TaskRepository) FindByID(ctx context.Context, id string) (*models.Task, error) {
	query := fmt.Sprintf("SELECT %s FROM tasks WHERE id = $1", taskColumns)
	var task models.Task
	if err := r.db.GetContext(ctx, &task, query, id); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListByCreator returns the tasks a teacher created.
func (r *TaskRepository) ListByCreator(ctx context.Context, filter models.TaskFilter) ([]models.Task, int, error) {
	return r.list(ctx, "FROM tasks WHERE created_by = $1", []interface{}{filter.CreatedBy}, filter)
}

// ListAll returns every teacher's tasks, for the admin registry.
func (r *TaskRepository) ListAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, int, error) {
	return r.list(ctx, "FROM tasks WHERE TRUE", nil, filter)
}

func (r *TaskRepository) list(ctx context.Context, base string, args []interface{}, filter models.TaskFilter) ([]models.Task, int, error) {
	if filter.Search != "" {
		base += fmt.Sprintf(" AND (LOWER(title) LIKE $%d)", len(args)+1)
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"title":      true,
		"deadline":   true,
		"priority":   true,
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", taskColumns, base, sortBy, order, size, offset)
	var tasks []models.Task
	if err := r.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}
	return tasks, total, nil
}

// CreateWithFanOut inserts the task, one assignment per student and one
// notification per student in a single transaction. The unique
// (task_id, student_id) constraint plus ON CONFLICT keeps fan-out
// idempotent for students reached through several classes.
func (r *TaskRepository) CreateWithFanOut(ctx context.Context, task *models.Task, studentIDs []string, notifications []models.Notification) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create task: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insertTask = `INSERT INTO tasks (id, title, description, deadline, priority, instructions, file_path, created_by, created_at, updated_at)
VALUES (:id, :title, :description, :deadline, :priority, :instructions, :file_path, :created_by, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertTask, task); err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	if err := insertAssignments(ctx, tx, task.ID, studentIDs, now); err != nil {
		return err
	}
	if err := insertNotifications(ctx, tx, notifications); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateWithFanOut updates the task and recomputes its fan-out:
// existing assignments (and their submissions) are removed and fresh
// pending assignments are created for the provided students, all in one
// transaction. It returns the stored filenames of submissions removed
// by the re-fan-out so the caller can unlink them after commit.
func (r *TaskRepository) UpdateWithFanOut(ctx context.Context, task *models.Task, studentIDs []string, notifications []models.Notification) ([]string, error) {
	now := time.Now().UTC()
	task.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update task: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const updateTask = `UPDATE tasks SET title = :title, description = :description, deadline = :deadline, priority = :priority, instructions = :instructions, file_path = :file_path, updated_at = :updated_at WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, updateTask, task); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}

	var orphanedFiles []string
	if err := tx.SelectContext(ctx, &orphanedFiles,
		`SELECT s.file_path FROM submissions s
JOIN assignments a ON a.id = s.assignment_id
WHERE a.task_id = $1 AND s.file_path IS NOT NULL`, task.ID); err != nil {
		return nil, fmt.Errorf("collect orphaned submission files: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM submissions WHERE assignment_id IN (SELECT id FROM assignments WHERE task_id = $1)`, task.ID); err != nil {
		return nil, fmt.Errorf("delete task submissions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM assignments WHERE task_id = $1`, task.ID); err != nil {
		return nil, fmt.Errorf("delete task assignments: %w", err)
	}

	if err := insertAssignments(ctx, tx, task.ID, studentIDs, now); err != nil {
		return nil, err
	}
	if err := insertNotifications(ctx, tx, notifications); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update task: %w", err)
	}
	return orphanedFiles, nil
}

// DeleteCascade removes the task, its assignments and their submissions
// in one transaction, returning every stored filename (task attachment
// and submission uploads) for post-commit removal from disk.
func (r *TaskRepository) DeleteCascade(ctx context.Context, taskID string) ([]string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete task: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var files []string
	if err := tx.SelectContext(ctx, &files,
		`SELECT s.file_path FROM submissions s
JOIN assignments a ON a.id = s.assignment_id
WHERE a.task_id = $1 AND s.file_path IS NOT NULL`, taskID); err != nil {
		return nil, fmt.Errorf("collect submission files: %w", err)
	}

	var taskFile *string
	if err := tx.GetContext(ctx, &taskFile, `SELECT file_path FROM tasks WHERE id = $1`, taskID); err != nil {
		return nil, fmt.Errorf("load task file: %w", err)
	}
	if taskFile != nil {
		files = append(files, *taskFile)
	}

	for _, stmt := range []string{
		`DELETE FROM submissions WHERE assignment_id IN (SELECT id FROM assignments WHERE task_id = $1)`,
		`DELETE FROM assignments WHERE task_id = $1`,
		`DELETE FROM tasks WHERE id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, taskID); err != nil {
			return nil, fmt.Errorf("cascade delete task: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete task: %w", err)
	}
	return files, nil
}

func insertAssignments(ctx context.Context, tx *sqlx.Tx, taskID string, studentIDs []string, now time.Time) error {
	const stmt = `INSERT INTO assignments (id, task_id, student_id, status, assigned_at)
VALUES ($1, $2, $3, $4, $5) ON CONFLICT (task_id, student_id) DO NOTHING`
	for _, studentID := range studentIDs {
		if _, err := tx.ExecContext(ctx, stmt, uuid.NewString(), taskID, studentID, models.AssignmentPending, now); err != nil {
			return fmt.Errorf("create assignment: %w", err)
		}
	}
	return nil
}

func insertNotifications(ctx context.Context, tx *sqlx.Tx, notifications []models.Notification) error {
	const stmt = `INSERT INTO notifications (id, user_id, title, message, notification_type, is_read, created_at, expires_at)
VALUES (:id, :user_id, :title, :message, :notification_type, :is_read, :created_at, :expires_at)`
	for i := range notifications {
		n := &notifications[i]
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = time.Now().UTC()
		}
		if _, err := tx.NamedExecContext(ctx, stmt, n); err != nil {
			return fmt.Errorf("create notification: %w", err)
		}
	}
	return nil
}
