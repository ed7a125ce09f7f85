package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/smart-edu-api/internal/models"
	appErrors "github.com/noah-isme/smart-edu-api/pkg/errors"
)

type notificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	CreateBatch(ctx context.Context, notifications []models.Notification) error
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID string) (bool, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	CountUnread(ctx context.Context, userID string) (int, error)
}

type notificationUserRepository interface {
	ListAll(ctx context.Context) ([]models.User, error)
	ListByRole(ctx context.Context, role models.UserRole) ([]models.User, error)
}

// CreateNotificationRequest is the payload for manual notification creation.
type CreateNotificationRequest struct {
	Title          string `json:"title" validate:"required,max=200"`
	Message        string `json:"message" validate:"required"`
	Type           string `json:"type"`
	ExpiresInHours int    `json:"expires_in_hours" validate:"omitempty,min=1"`
}

// SystemNotificationRequest is the payload for admin announcements.
type SystemNotificationRequest struct {
	Title   string `json:"title" validate:"required,max=200"`
	Message string `json:"message" validate:"required"`
	Type    string `json:"type"`
	Target  string `json:"target" validate:"omitempty,oneof=all teachers students"`
}

// NotificationService manages per-user notifications and system
// announcements. Expiration is enforced on read, not by a purge job.
type NotificationService struct {
	repo      notificationRepository
	users     notificationUserRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewNotificationService constructs a NotificationService instance.
func NewNotificationService(repo notificationRepository, users notificationUserRepository, validate *validator.Validate, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &NotificationService{repo: repo, users: users, validator: validate, logger: logger}
}

// List returns active notifications for a user.
func (s *NotificationService) List(ctx context.Context, userID string, includeRead bool, limit int) ([]models.Notification, error) {
	notifications, err := s.repo.List(ctx, models.NotificationFilter{
		UserID:      userID,
		IncludeRead: includeRead,
		Limit:       limit,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notifications, nil
}

// UnreadCount returns the number of unread, unexpired notifications.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	return count, nil
}

// MarkRead marks one of the user's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	ok, err := s.repo.MarkRead(ctx, id, userID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	return nil
}

// MarkAllRead marks every unread notification of the user as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	count, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	return count, nil
}

// Create stores a notification addressed to the requesting user.
func (s *NotificationService) Create(ctx context.Context, userID string, req CreateNotificationRequest) (*models.Notification, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid notification payload")
	}

	nType := models.NotificationType(req.Type)
	if req.Type == "" {
		nType = models.NotificationInfo
	}
	if !nType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown notification type")
	}

	n := buildNotification(userID, req.Title, req.Message, nType, time.Duration(req.ExpiresInHours)*time.Hour)
	if err := s.repo.Create(ctx, &n); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create notification")
	}
	return &n, nil
}

// Broadcast fans a system announcement out to the target user group in
// one batch. Returns the number of recipients.
func (s *NotificationService) Broadcast(ctx context.Context, req SystemNotificationRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}

	nType := models.NotificationType(req.Type)
	if req.Type == "" {
		nType = models.NotificationInfo
	}
	if !nType.Valid() {
		return 0, appErrors.Clone(appErrors.ErrValidation, "unknown notification type")
	}

	var (
		recipients []models.User
		err        error
	)
	switch models.NotificationTarget(req.Target) {
	case models.TargetTeachers:
		recipients, err = s.users.ListByRole(ctx, models.RoleTeacher)
	case models.TargetStudents:
		recipients, err = s.users.ListByRole(ctx, models.RoleStudent)
	default:
		recipients, err = s.users.ListAll(ctx)
	}
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve recipients")
	}

	batch := make([]models.Notification, 0, len(recipients))
	for _, user := range recipients {
		batch = append(batch, buildNotification(user.ID, req.Title, req.Message, nType, 168*time.Hour))
	}
	if err := s.repo.CreateBatch(ctx, batch); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to broadcast announcement")
	}

	s.logger.Info("system announcement sent",
		zap.String("title", req.Title),
		zap.Int("recipients", len(batch)))
	return len(batch), nil
}

// NotifySubmissionReceived tells a teacher a student submitted work.
func (s *NotificationService) NotifySubmissionReceived(ctx context.Context, teacherID, studentName, taskTitle string) error {
	n := TaskSubmittedNotification(teacherID, studentName, taskTitle)
	if err := s.repo.Create(ctx, &n); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to notify teacher")
	}
	return nil
}

// NotifyFeedbackReceived tells a student their work was graded.
func (s *NotificationService) NotifyFeedbackReceived(ctx context.Context, studentID, taskTitle string, score *int) error {
	n := FeedbackNotification(studentID, taskTitle, score)
	if err := s.repo.Create(ctx, &n); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to notify student")
	}
	return nil
}

// TaskAssignedNotification composes the fan-out notification for a new
// task. The caller persists it inside the fan-out transaction.
func TaskAssignedNotification(studentID, taskTitle, teacherName string) models.Notification {
	return buildNotification(studentID, "New Task Assigned",
		fmt.Sprintf("Task '%s' has been assigned by %s", taskTitle, teacherName),
		models.NotificationInfo, 168*time.Hour)
}

// TaskUpdatedNotification composes the fan-out notification for an
// edited task.
func TaskUpdatedNotification(studentID, taskTitle, teacherName string) models.Notification {
	return buildNotification(studentID, "Task Updated",
		fmt.Sprintf("Task '%s' has been updated by %s", taskTitle, teacherName),
		models.NotificationInfo, 72*time.Hour)
}

// TaskSubmittedNotification composes the teacher-facing submission notice.
func TaskSubmittedNotification(teacherID, studentName, taskTitle string) models.Notification {
	return buildNotification(teacherID, "New Submission",
		fmt.Sprintf("%s has submitted work for '%s'", studentName, taskTitle),
		models.NotificationSuccess, 168*time.Hour)
}

// FeedbackNotification composes the student-facing grading notice.
func FeedbackNotification(studentID, taskTitle string, score *int) models.Notification {
	scoreText := "feedback"
	if score != nil {
		scoreText = fmt.Sprintf("score of %d/100", *score)
	}
	return buildNotification(studentID, "Feedback Received",
		fmt.Sprintf("Teacher has provided %s for task '%s'", scoreText, taskTitle),
		models.NotificationSuccess, 168*time.Hour)
}

// DeadlineReminderNotification composes the warning the reminder sweep
// sends for approaching or passed deadlines.
func DeadlineReminderNotification(studentID, taskTitle string, hoursLeft float64) models.Notification {
	var title, message string
	switch {
	case hoursLeft <= 0:
		title = "Task Deadline Passed"
		message = fmt.Sprintf("The deadline for task '%s' has passed. Please submit your work as soon as possible.", taskTitle)
	case hoursLeft < 1:
		title = "Task Deadline Reminder"
		message = fmt.Sprintf("Task '%s' is due in %d minutes!", taskTitle, int(hoursLeft*60))
	default:
		title = "Task Deadline Reminder"
		message = fmt.Sprintf("Task '%s' is due in %.1f hours!", taskTitle, hoursLeft)
	}
	return buildNotification(studentID, title, message, models.NotificationWarning, 24*time.Hour)
}

func buildNotification(userID, title, message string, nType models.NotificationType, ttl time.Duration) models.Notification {
	now := time.Now().UTC()
	n := models.Notification{
		UserID:    userID,
		Title:     title,
		Message:   message,
		Type:      nType,
		CreatedAt: now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		n.ExpiresAt = &expires
	}
	return n
}
