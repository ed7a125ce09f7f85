package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/smart-edu-api/internal/models"
)

// StatsRepository aggregates system-wide counters for the admin
// dashboard and per-student progress rollups.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository constructs a new stats repository.
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// SystemStats computes the admin dashboard counters in one round trip.
// Overdue counts tasks past their deadline with at least one incomplete
// assignment, matching how status is derived elsewhere.
func (r *StatsRepository) SystemStats(ctx context.Context) (*models.SystemStats, error) {
	const query = `SELECT
(SELECT COUNT(*) FROM users) AS total_users,
(SELECT COUNT(*) FROM users WHERE role = 'TEACHER') AS total_teachers,
(SELECT COUNT(*) FROM users WHERE role = 'STUDENT') AS total_students,
(SELECT COUNT(*) FROM classes) AS total_classes,
(SELECT COUNT(*) FROM tasks) AS total_tasks,
(SELECT COUNT(*) FROM assignments) AS total_assignments,
(SELECT COUNT(*) FROM submissions) AS total_submissions,
(SELECT COUNT(*) FROM assignments WHERE status = 'completed') AS completed_assignments,
(SELECT COUNT(DISTINCT t.id) FROM tasks t
  JOIN assignments a ON a.task_id = t.id
  WHERE t.deadline < $1 AND a.status <> 'completed') AS overdue_tasks`
	var stats models.SystemStats
	if err := r.db.GetContext(ctx, &stats, query, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("system stats: %w", err)
	}
	return &stats, nil
}

// StudentProgress aggregates completion counters per student for a
// task's creator view.
func (r *StatsRepository) StudentProgress(ctx context.Context, studentID string) (*models.StudentProgress, error) {
	const query = `SELECT u.id AS student_id, u.name AS student_name,
COUNT(a.id) AS total_tasks,
COUNT(a.id) FILTER (WHERE a.status = 'completed') AS completed_tasks,
COUNT(a.id) FILTER (WHERE a.status = 'in_progress') AS in_progress_tasks,
COUNT(a.id) FILTER (WHERE a.status <> 'completed' AND t.deadline < $2) AS overdue_tasks
FROM users u
LEFT JOIN assignments a ON a.student_id = u.id
LEFT JOIN tasks t ON t.id = a.task_id
WHERE u.id = $1
GROUP BY u.id, u.name`
	var p models.StudentProgress
	if err := r.db.GetContext(ctx, &p, query, studentID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("student progress: %w", err)
	}
	if p.TotalTasks > 0 {
		p.CompletionRate = float64(p.CompletedTasks) / float64(p.TotalTasks) * 100
	}
	return &p, nil
}

// TeacherOverview rolls up per-student completion counters over the
// caller's tasks, covering every student in a class the teacher is
// attached to. Students in several of the teacher's classes appear once.
func (r *StatsRepository) TeacherOverview(ctx context.Context, teacherID string) ([]models.StudentProgress, error) {
	const query = `SELECT u.id AS student_id, u.name AS student_name,
COUNT(t.id) AS total_tasks,
COUNT(t.id) FILTER (WHERE a.status = 'completed') AS completed_tasks,
COUNT(t.id) FILTER (WHERE a.status = 'in_progress') AS in_progress_tasks,
COUNT(t.id) FILTER (WHERE a.status <> 'completed' AND t.deadline < $2) AS overdue_tasks
FROM users u
JOIN teacher_classes tc ON tc.class_id = u.class_id AND tc.teacher_id = $1
LEFT JOIN assignments a ON a.student_id = u.id
LEFT JOIN tasks t ON t.id = a.task_id AND t.created_by = $1
WHERE u.role = 'STUDENT'
GROUP BY u.id, u.name
ORDER BY u.name`
	var rows []models.StudentProgress
	if err := r.db.SelectContext(ctx, &rows, query, teacherID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("teacher overview: %w", err)
	}
	for i := range rows {
		if rows[i].TotalTasks > 0 {
			rows[i].CompletionRate = float64(rows[i].CompletedTasks) / float64(rows[i].TotalTasks) * 100
		}
	}
	return rows, nil
}
