package models

import "time"

// Class represents a school class. Students belong to a class through
// users.class_id; teachers are attached through the teacher_classes
// association.
type Class struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedBy   string    `db:"created_by" json:"created_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ClassDetail extends Class with membership counts for admin views.
type ClassDetail struct {
	Class
	StudentCount int `db:"student_count" json:"student_count"`
	TeacherCount int `db:"teacher_count" json:"teacher_count"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
