package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/smart-edu-api/internal/models"
	appErrors "github.com/noah-isme/smart-edu-api/pkg/errors"
)

const statsCacheKey = "stats:system"

type statsRepository interface {
	SystemStats(ctx context.Context) (*models.SystemStats, error)
	StudentProgress(ctx context.Context, studentID string) (*models.StudentProgress, error)
	TeacherOverview(ctx context.Context, teacherID string) ([]models.StudentProgress, error)
}

type dashboardTaskLister interface {
	ListByCreator(ctx context.Context, filter models.TaskFilter) ([]models.Task, int, error)
}

type statsCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type cacheMetrics interface {
	RecordCacheHit()
	RecordCacheMiss()
}

// StatsService serves the admin dashboard counters behind a short
// Redis cache, falling back to the database when the cache is down.
type StatsService struct {
	repo    statsRepository
	tasks   dashboardTaskLister
	cache   statsCache
	metrics cacheMetrics
	logger  *zap.Logger
	ttl     time.Duration
}

// NewStatsService constructs a StatsService instance.
func NewStatsService(repo statsRepository, tasks dashboardTaskLister, cache statsCache, metrics cacheMetrics, logger *zap.Logger, ttl time.Duration) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsService{repo: repo, tasks: tasks, cache: cache, metrics: metrics, logger: logger, ttl: ttl}
}

// System returns the dashboard counters, cached.
func (s *StatsService) System(ctx context.Context) (*models.SystemStats, error) {
	if s.cache != nil {
		var cached models.SystemStats
		err := s.cache.GetJSON(ctx, statsCacheKey, &cached)
		if err == nil {
			if s.metrics != nil {
				s.metrics.RecordCacheHit()
			}
			return &cached, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("stats cache read failed", zap.Error(err))
		}
		if s.metrics != nil {
			s.metrics.RecordCacheMiss()
		}
	}

	stats, err := s.repo.SystemStats(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute stats")
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, statsCacheKey, stats, s.ttl); err != nil {
			s.logger.Warn("stats cache write failed", zap.Error(err))
		}
	}
	return stats, nil
}

// Invalidate drops the cached counters. Called after writes that move
// dashboard numbers.
func (s *StatsService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, statsCacheKey); err != nil {
		s.logger.Warn("stats cache invalidation failed", zap.Error(err))
	}
}

// TeacherDashboard returns the caller's tasks together with per-student
// completion rollups across the classes they teach.
func (s *StatsService) TeacherDashboard(ctx context.Context, teacherID string) (*models.TeacherDashboard, error) {
	tasks, _, err := s.tasks.ListByCreator(ctx, models.TaskFilter{
		CreatedBy: teacherID,
		Page:      1,
		PageSize:  100,
		SortBy:    "deadline",
		SortOrder: "asc",
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tasks")
	}

	students, err := s.repo.TeacherOverview(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute progress")
	}
	return &models.TeacherDashboard{Tasks: tasks, Students: students}, nil
}

// StudentProgress returns completion counters for one student.
func (s *StatsService) StudentProgress(ctx context.Context, studentID string) (*models.StudentProgress, error) {
	progress, err := s.repo.StudentProgress(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute progress")
	}
	return progress, nil
}
