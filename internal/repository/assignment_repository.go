package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/smart-edu-api/internal/models"
)

// AssignmentRepository manages per-student task assignments.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs a new assignment repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

const assignmentColumns = "id, task_id, student_id, status, assigned_at, submitted_at"

// FindByID returns an assignment by ID.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	query := fmt.Sprintf("SELECT %s FROM assignments WHERE id = $1", assignmentColumns)
	var a models.Assignment
	if err := r.db.GetContext(ctx, &a, query, id); err != nil {
		return nil, err
	}
	return &a, nil
}

// FindDetailByID returns an assignment joined with its task metadata.
func (r *AssignmentRepository) FindDetailByID(ctx context.Context, id string) (*models.AssignmentDetail, error) {
	const query = `SELECT a.id, a.task_id, a.student_id, a.status, a.assigned_at, a.submitted_at,
t.title AS task_title, t.deadline AS task_deadline, t.priority AS task_priority,
u.name AS student_name
FROM assignments a
JOIN tasks t ON t.id = a.task_id
JOIN users u ON u.id = a.student_id
WHERE a.id = $1`
	var d models.AssignmentDetail
	if err := r.db.GetContext(ctx, &d, query, id); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListByStudent returns all assignments for a student with task details.
// Ordering by priority rank happens in the service layer because the
// rank is a domain rule, not a column.
func (r *AssignmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.AssignmentDetail, error) {
	const query = `SELECT a.id, a.task_id, a.student_id, a.status, a.assigned_at, a.submitted_at,
t.title AS task_title, t.deadline AS task_deadline, t.priority AS task_priority,
u.name AS student_name
FROM assignments a
JOIN tasks t ON t.id = a.task_id
JOIN users u ON u.id = a.student_id
WHERE a.student_id = $1
ORDER BY t.deadline ASC`
	var details []models.AssignmentDetail
	if err := r.db.SelectContext(ctx, &details, query, studentID); err != nil {
		return nil, fmt.Errorf("list student assignments: %w", err)
	}
	return details, nil
}

// ListByTask returns every assignment of a task with student names, for
// progress views.
func (r *AssignmentRepository) ListByTask(ctx context.Context, taskID string) ([]models.AssignmentDetail, error) {
	const query = `SELECT a.id, a.task_id, a.student_id, a.status, a.assigned_at, a.submitted_at,
t.title AS task_title, t.deadline AS task_deadline, t.priority AS task_priority,
u.name AS student_name
FROM assignments a
JOIN tasks t ON t.id = a.task_id
JOIN users u ON u.id = a.student_id
WHERE a.task_id = $1
ORDER BY u.name ASC`
	var details []models.AssignmentDetail
	if err := r.db.SelectContext(ctx, &details, query, taskID); err != nil {
		return nil, fmt.Errorf("list task assignments: %w", err)
	}
	return details, nil
}

// FindByTaskAndStudent returns the assignment linking a student to a
// task, if one exists.
func (r *AssignmentRepository) FindByTaskAndStudent(ctx context.Context, taskID, studentID string) (*models.Assignment, error) {
	query := fmt.Sprintf("SELECT %s FROM assignments WHERE task_id = $1 AND student_id = $2", assignmentColumns)
	var a models.Assignment
	if err := r.db.GetContext(ctx, &a, query, taskID, studentID); err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateStatus sets the stored workflow status of an assignment.
func (r *AssignmentRepository) UpdateStatus(ctx context.Context, id string, status models.AssignmentStatus, submittedAt *time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE assignments SET status = $1, submitted_at = $2 WHERE id = $3`,
		status, submittedAt, id)
	if err != nil {
		return fmt.Errorf("update assignment status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update assignment status: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("assignment %s not found", id)
	}
	return nil
}

// ListDueSoon returns incomplete assignments whose task deadline falls
// within the window, used by the reminder sweep.
func (r *AssignmentRepository) ListDueSoon(ctx context.Context, from, until time.Time) ([]models.AssignmentDetail, error) {
	const query = `SELECT a.id, a.task_id, a.student_id, a.status, a.assigned_at, a.submitted_at,
t.title AS task_title, t.deadline AS task_deadline, t.priority AS task_priority,
u.name AS student_name
FROM assignments a
JOIN tasks t ON t.id = a.task_id
JOIN users u ON u.id = a.student_id
WHERE a.status <> 'completed' AND t.deadline > $1 AND t.deadline <= $2
ORDER BY t.deadline ASC`
	var details []models.AssignmentDetail
	if err := r.db.SelectContext(ctx, &details, query, from, until); err != nil {
		return nil, fmt.Errorf("list due assignments: %w", err)
	}
	return details, nil
}
