package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/smart-edu-api/internal/models"
)

// NotificationRepository manages per-user notifications. Expired rows
// are filtered out of every read path instead of being purged eagerly.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs a new notification repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = "id, user_id, title, message, notification_type, is_read, created_at, expires_at"

// Create inserts a single notification.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (id, user_id, title, message, notification_type, is_read, created_at, expires_at)
VALUES (:id, :user_id, :title, :message, :notification_type, :is_read, :created_at, :expires_at)`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// CreateBatch inserts a set of notifications in one transaction so a
// fan-out either reaches everyone or no one.
func (r *NotificationRepository) CreateBatch(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin notification batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := insertNotifications(ctx, tx, notifications); err != nil {
		return err
	}
	return tx.Commit()
}

// List returns a user's notifications, newest first, excluding expired
// ones and, unless IncludeRead is set, already-read ones.
func (r *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error) {
	query := fmt.Sprintf(`SELECT %s FROM notifications
WHERE user_id = $1 AND (expires_at IS NULL OR expires_at > $2)`, notificationColumns)
	args := []interface{}{filter.UserID, time.Now().UTC()}

	if !filter.IncludeRead {
		query += " AND is_read = FALSE"
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

// MarkRead marks one notification read. The user_id guard keeps users
// from acknowledging someone else's notification.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	return rows > 0, nil
}

// MarkAllRead marks every unread notification of a user as read and
// returns how many were affected.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return rows, nil
}

// CountUnread returns the number of unread, unexpired notifications.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE AND (expires_at IS NULL OR expires_at > $2)`,
		userID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}
