package models

import "time"

// Subject represents an academic subject. Subjects attach to classes
// through the class_subjects association and to teachers through
// teacher_subjects ("selected subjects").
type Subject struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedBy   string    `db:"created_by" json:"created_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// SubjectDetail extends Subject with the classes it is attached to.
type SubjectDetail struct {
	Subject
	ClassIDs []string `json:"class_ids"`
}

// SubjectFilter captures supported filters for listing subjects.
type SubjectFilter struct {
	ClassID   string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
