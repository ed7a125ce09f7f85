package models

import "time"

// PriorityLabel is one of the ten fixed priority buckets a task can carry.
type PriorityLabel string

const (
	PriorityUrgentImportant       PriorityLabel = "urgent_important"
	PriorityImportantNotUrgent    PriorityLabel = "important_not_urgent"
	PriorityUrgentNotImportant    PriorityLabel = "urgent_not_important"
	PriorityNotImportantNotUrgent PriorityLabel = "not_important_not_urgent"
	PriorityHigh                  PriorityLabel = "high_priority"
	PriorityMedium                PriorityLabel = "medium_priority"
	PriorityLow                   PriorityLabel = "low_priority"
	PriorityOptional              PriorityLabel = "optional"
	PriorityLongTerm              PriorityLabel = "long_term"
	PriorityGroupTask             PriorityLabel = "group_task"
)

// PriorityLabels lists every valid label.
var PriorityLabels = []PriorityLabel{
	PriorityUrgentImportant,
	PriorityImportantNotUrgent,
	PriorityUrgentNotImportant,
	PriorityNotImportantNotUrgent,
	PriorityHigh,
	PriorityMedium,
	PriorityLow,
	PriorityOptional,
	PriorityLongTerm,
	PriorityGroupTask,
}

// Valid reports whether the label is one of the ten known buckets.
func (p PriorityLabel) Valid() bool {
	for _, label := range PriorityLabels {
		if p == label {
			return true
		}
	}
	return false
}

// Task is a unit of work created by a teacher with a deadline and a
// priority label. FilePath references an attachment in the upload store.
type Task struct {
	ID           string        `db:"id" json:"id"`
	Title        string        `db:"title" json:"title"`
	Description  string        `db:"description" json:"description"`
	Deadline     time.Time     `db:"deadline" json:"deadline"`
	Priority     PriorityLabel `db:"priority" json:"priority"`
	Instructions string        `db:"instructions" json:"instructions"`
	FilePath     *string       `db:"file_path" json:"file_path,omitempty"`
	CreatedBy    string        `db:"created_by" json:"created_by"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// IsOverdue reports whether the deadline has passed.
func (t Task) IsOverdue(now time.Time) bool {
	return now.After(t.Deadline)
}

// TaskFilter captures filtering criteria for listing tasks.
type TaskFilter struct {
	CreatedBy string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
