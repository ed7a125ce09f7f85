package models

import "time"

// NotificationType classifies a notification for display purposes.
type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
)

// Valid reports whether the type is one of the known values.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationInfo, NotificationSuccess, NotificationWarning, NotificationError:
		return true
	}
	return false
}

// NotificationTarget selects the audience of a system notification.
type NotificationTarget string

const (
	TargetAll      NotificationTarget = "all"
	TargetTeachers NotificationTarget = "teachers"
	TargetStudents NotificationTarget = "students"
)

// Notification is a user-scoped, optionally expiring message. Rows are
// immutable except for the read flag.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	Title     string           `db:"title" json:"title"`
	Message   string           `db:"message" json:"message"`
	Type      NotificationType `db:"notification_type" json:"type"`
	IsRead    bool             `db:"is_read" json:"is_read"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	ExpiresAt *time.Time       `db:"expires_at" json:"expires_at,omitempty"`
}

// IsExpired evaluates expiry against the provided clock. A nil
// ExpiresAt never expires.
func (n Notification) IsExpired(now time.Time) bool {
	if n.ExpiresAt == nil {
		return false
	}
	return now.After(*n.ExpiresAt)
}

// NotificationFilter controls notification listings.
type NotificationFilter struct {
	UserID      string
	IncludeRead bool
	Limit       int
}
