package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/smart-edu-api/internal/models"
	"github.com/noah-isme/smart-edu-api/pkg/jobs"
)

type reminderAssignmentLister interface {
	ListDueSoon(ctx context.Context, from, until time.Time) ([]models.AssignmentDetail, error)
}

type reminderDeduper interface {
	SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type reminderNotificationSink interface {
	Create(ctx context.Context, n *models.Notification) error
}

// ReminderConfig tunes the deadline reminder sweep.
type ReminderConfig struct {
	SweepInterval time.Duration
	Window        time.Duration
	Workers       int
}

type reminderPayload struct {
	AssignmentID string
	StudentID    string
	TaskTitle    string
	Deadline     time.Time
}

// ReminderService periodically sweeps for assignments approaching
// their deadline and warns the assigned students. A Redis marker per
// assignment per day keeps repeat sweeps from re-sending the same
// reminder.
type ReminderService struct {
	assignments   reminderAssignmentLister
	dedupe        reminderDeduper
	notifications reminderNotificationSink
	queue         *jobs.Queue
	logger        *zap.Logger
	config        ReminderConfig

	cancel context.CancelFunc
}

// NewReminderService constructs a ReminderService instance.
func NewReminderService(assignments reminderAssignmentLister, dedupe reminderDeduper, notifications reminderNotificationSink, logger *zap.Logger, config ReminderConfig) *ReminderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = time.Hour
	}
	if config.Window <= 0 {
		config.Window = 24 * time.Hour
	}
	s := &ReminderService{
		assignments:   assignments,
		dedupe:        dedupe,
		notifications: notifications,
		logger:        logger,
		config:        config,
	}
	s.queue = jobs.NewQueue("deadline-reminders", s.handleJob, jobs.QueueConfig{
		Workers: config.Workers,
		Logger:  logger,
	})
	return s
}

// Start launches the worker pool and the sweep ticker.
func (s *ReminderService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.queue.Start(ctx)

	go func() {
		ticker := time.NewTicker(s.config.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
	s.logger.Info("deadline reminder sweep started",
		zap.Duration("interval", s.config.SweepInterval),
		zap.Duration("window", s.config.Window))
}

// Stop halts the ticker and drains the queue.
func (s *ReminderService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.queue.Stop()
}

// Sweep enqueues one reminder job per incomplete assignment whose
// deadline falls inside the window. Exposed for manual triggering.
func (s *ReminderService) Sweep(ctx context.Context) {
	now := time.Now().UTC()
	details, err := s.assignments.ListDueSoon(ctx, now.Add(-s.config.Window), now.Add(s.config.Window))
	if err != nil {
		s.logger.Error("reminder sweep query failed", zap.Error(err))
		return
	}

	for _, d := range details {
		job := jobs.Job{
			ID:   uuid.NewString(),
			Type: "deadline_reminder",
			Payload: reminderPayload{
				AssignmentID: d.ID,
				StudentID:    d.StudentID,
				TaskTitle:    d.TaskTitle,
				Deadline:     d.TaskDeadline,
			},
			Enqueued: now,
		}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Warn("reminder enqueue failed", zap.String("assignment_id", d.ID), zap.Error(err))
		}
	}
	if len(details) > 0 {
		s.logger.Info("reminder sweep enqueued", zap.Int("assignments", len(details)))
	}
}

func (s *ReminderService) handleJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(reminderPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}

	now := time.Now().UTC()
	key := fmt.Sprintf("reminder:%s:%s", payload.AssignmentID, now.Format("2006-01-02"))
	claimed, err := s.dedupe.SetNX(ctx, key, 48*time.Hour)
	if err != nil {
		return fmt.Errorf("reminder dedupe: %w", err)
	}
	if !claimed {
		return nil
	}

	hoursLeft := payload.Deadline.Sub(now).Hours()
	n := DeadlineReminderNotification(payload.StudentID, payload.TaskTitle, hoursLeft)
	if err := s.notifications.Create(ctx, &n); err != nil {
		return fmt.Errorf("reminder notification: %w", err)
	}
	return nil
}
