package models

import "time"

// Submission holds a student's delivered work for an assignment plus the
// grading fields a teacher fills in later. At most one submission exists
// per assignment.
type Submission struct {
	ID                 string     `db:"id" json:"id"`
	AssignmentID       string     `db:"assignment_id" json:"assignment_id"`
	Content            string     `db:"content" json:"content"`
	FilePath           *string    `db:"file_path" json:"file_path,omitempty"`
	SubmittedAt        time.Time  `db:"submitted_at" json:"submitted_at"`
	Score              *int       `db:"score" json:"score,omitempty"`
	Feedback           *string    `db:"feedback" json:"feedback,omitempty"`
	FeedbackProvidedAt *time.Time `db:"feedback_provided_at" json:"feedback_provided_at,omitempty"`
	GradedBy           *string    `db:"graded_by" json:"graded_by,omitempty"`
}

// IsGraded reports whether a teacher has attached a score.
func (s Submission) IsGraded() bool {
	return s.Score != nil
}
