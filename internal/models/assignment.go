package models

import "time"

// AssignmentStatus is the stored progress state of an assignment.
// Overdue is never stored; it is derived at read time.
type AssignmentStatus string

const (
	AssignmentPending    AssignmentStatus = "pending"
	AssignmentInProgress AssignmentStatus = "in_progress"
	AssignmentCompleted  AssignmentStatus = "completed"

	// AssignmentOverdue only ever appears as an effective status.
	AssignmentOverdue AssignmentStatus = "overdue"
)

// Assignment binds one task to one student. The pair is unique.
type Assignment struct {
	ID          string           `db:"id" json:"id"`
	TaskID      string           `db:"task_id" json:"task_id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	Status      AssignmentStatus `db:"status" json:"status"`
	AssignedAt  time.Time        `db:"assigned_at" json:"assigned_at"`
	SubmittedAt *time.Time       `db:"submitted_at" json:"submitted_at,omitempty"`
}

// EffectiveStatus derives the presented status: an uncompleted
// assignment past its task deadline reads as overdue everywhere,
// regardless of the stored value.
func (a Assignment) EffectiveStatus(now, deadline time.Time) AssignmentStatus {
	if a.Status != AssignmentCompleted && now.After(deadline) {
		return AssignmentOverdue
	}
	return a.Status
}

// AssignmentDetail joins the task fields needed for listings.
type AssignmentDetail struct {
	Assignment
	TaskTitle    string        `db:"task_title" json:"task_title"`
	TaskDeadline time.Time     `db:"task_deadline" json:"task_deadline"`
	TaskPriority PriorityLabel `db:"task_priority" json:"task_priority"`
	StudentName  string        `db:"student_name" json:"student_name"`
}
