package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/smart-edu-api/internal/models"
	appErrors "github.com/noah-isme/smart-edu-api/pkg/errors"
	"github.com/noah-isme/smart-edu-api/pkg/export"
	"github.com/noah-isme/smart-edu-api/pkg/storage"
)

type mockTaskRepo struct {
	tasks         map[string]*models.Task
	fanOutTargets []string
	notifications []models.Notification
	orphaned      []string
	cascadeFiles  []string
	deleted       []string
}

func newMockTaskRepo() *mockTaskRepo {
	return &mockTaskRepo{tasks: make(map[string]*models.Task)}
}

func (m *mockTaskRepo) FindByID(ctx context.Context, id string) (*models.Task, error) {
	task, ok := m.tasks[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return task, nil
}

func (m *mockTaskRepo) ListByCreator(ctx context.Context, filter models.TaskFilter) ([]models.Task, int, error) {
	var out []models.Task
	for _, task := range m.tasks {
		if task.CreatedBy == filter.CreatedBy {
			out = append(out, *task)
		}
	}
	return out, len(out), nil
}

func (m *mockTaskRepo) ListAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, int, error) {
	var out []models.Task
	for _, task := range m.tasks {
		out = append(out, *task)
	}
	return out, len(out), nil
}

func (m *mockTaskRepo) CreateWithFanOut(ctx context.Context, task *models.Task, studentIDs []string, notifications []models.Notification) error {
	if task.ID == "" {
		task.ID = "task-generated"
	}
	m.tasks[task.ID] = task
	m.fanOutTargets = studentIDs
	m.notifications = notifications
	return nil
}

func (m *mockTaskRepo) UpdateWithFanOut(ctx context.Context, task *models.Task, studentIDs []string, notifications []models.Notification) ([]string, error) {
	m.tasks[task.ID] = task
	m.fanOutTargets = studentIDs
	m.notifications = notifications
	return m.orphaned, nil
}

func (m *mockTaskRepo) DeleteCascade(ctx context.Context, taskID string) ([]string, error) {
	delete(m.tasks, taskID)
	m.deleted = append(m.deleted, taskID)
	return m.cascadeFiles, nil
}

type mockTaskAssignments struct {
	byTask []models.AssignmentDetail
}

func (m *mockTaskAssignments) ListByTask(ctx context.Context, taskID string) ([]models.AssignmentDetail, error) {
	return m.byTask, nil
}

type mockTaskClasses struct {
	missing  bool
	teaches  bool
	students []models.User
}

func (m *mockTaskClasses) ExistAll(ctx context.Context, ids []string) (bool, error) {
	return !m.missing, nil
}

func (m *mockTaskClasses) TeacherTeaches(ctx context.Context, teacherID string, classIDs []string) (bool, error) {
	return m.teaches, nil
}

func (m *mockTaskClasses) ListStudentsByClasses(ctx context.Context, classIDs []string) ([]models.User, error) {
	return m.students, nil
}

func newTestTaskService(t *testing.T, repo *mockTaskRepo, classes *mockTaskClasses, assignments *mockTaskAssignments) *TaskService {
	t.Helper()
	uploads, err := storage.NewUploadStore(t.TempDir())
	require.NoError(t, err)
	return NewTaskService(
		repo, assignments, classes, classes,
		uploads, export.NewPDFExporter(),
		validator.New(), zap.NewNop(),
		20<<20, []string{".pdf", ".txt"},
	)
}

func TestTaskServiceCreateFansOutToStudents(t *testing.T) {
	repo := newMockTaskRepo()
	classes := &mockTaskClasses{
		teaches: true,
		students: []models.User{
			{ID: "student-1", Name: "Ana"},
			{ID: "student-2", Name: "Ben"},
		},
	}
	svc := newTestTaskService(t, repo, classes, &mockTaskAssignments{})

	teacher := &models.JWTClaims{UserID: "teacher-1", Name: "Mr. Smith", Role: models.RoleTeacher}
	task, err := svc.Create(context.Background(), teacher, CreateTaskRequest{
		Title:       "Read chapter 4",
		Description: "regular homework",
		Deadline:    time.Now().Add(72 * time.Hour),
		ClassIDs:    []string{"class-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.PriorityMedium, task.Priority)
	assert.Equal(t, []string{"student-1", "student-2"}, repo.fanOutTargets)
	require.Len(t, repo.notifications, 2)
	assert.Equal(t, "New Task Assigned", repo.notifications[0].Title)
	assert.Contains(t, repo.notifications[0].Message, "Mr. Smith")
}

func TestTaskServiceCreatePredictsUrgentPriority(t *testing.T) {
	repo := newMockTaskRepo()
	classes := &mockTaskClasses{teaches: true, students: []models.User{{ID: "student-1"}}}
	svc := newTestTaskService(t, repo, classes, &mockTaskAssignments{})

	teacher := &models.JWTClaims{UserID: "teacher-1", Name: "Mr. Smith"}
	task, err := svc.Create(context.Background(), teacher, CreateTaskRequest{
		Title:       "Final exam prep",
		Description: "urgent revision before the exam",
		Deadline:    time.Now().Add(24 * time.Hour),
		ClassIDs:    []string{"class-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.PriorityUrgentImportant, task.Priority)
}

func TestTaskServiceCreateRejectsForeignClass(t *testing.T) {
	repo := newMockTaskRepo()
	classes := &mockTaskClasses{teaches: false}
	svc := newTestTaskService(t, repo, classes, &mockTaskAssignments{})

	teacher := &models.JWTClaims{UserID: "teacher-1", Name: "Mr. Smith"}
	_, err := svc.Create(context.Background(), teacher, CreateTaskRequest{
		Title:    "Essay",
		Deadline: time.Now().Add(24 * time.Hour),
		ClassIDs: []string{"class-1"},
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestTaskServiceUpdateSendsUpdateNotices(t *testing.T) {
	repo := newMockTaskRepo()
	repo.tasks["task-1"] = &models.Task{
		ID:        "task-1",
		Title:     "Essay",
		Deadline:  time.Now().Add(24 * time.Hour),
		Priority:  models.PriorityMedium,
		CreatedBy: "teacher-1",
	}
	classes := &mockTaskClasses{teaches: true, students: []models.User{{ID: "student-1"}}}
	svc := newTestTaskService(t, repo, classes, &mockTaskAssignments{})

	teacher := &models.JWTClaims{UserID: "teacher-1", Name: "Mr. Smith"}
	task, err := svc.Update(context.Background(), "task-1", teacher, UpdateTaskRequest{
		Title:    "Essay v2",
		Priority: string(models.PriorityHigh),
		Deadline: time.Now().Add(96 * time.Hour),
		ClassIDs: []string{"class-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.PriorityHigh, task.Priority)
	require.Len(t, repo.notifications, 1)
	assert.Equal(t, "Task Updated", repo.notifications[0].Title)
}

func TestTaskServiceUpdateForbiddenForOtherTeacher(t *testing.T) {
	repo := newMockTaskRepo()
	repo.tasks["task-1"] = &models.Task{ID: "task-1", CreatedBy: "teacher-1"}
	classes := &mockTaskClasses{teaches: true}
	svc := newTestTaskService(t, repo, classes, &mockTaskAssignments{})

	intruder := &models.JWTClaims{UserID: "teacher-2", Name: "Not The Owner"}
	_, err := svc.Update(context.Background(), "task-1", intruder, UpdateTaskRequest{
		Title:    "Hijack",
		Deadline: time.Now().Add(time.Hour),
		ClassIDs: []string{"class-1"},
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestTaskServiceProgressDerivesOverdue(t *testing.T) {
	repo := newMockTaskRepo()
	deadline := time.Now().Add(-time.Hour)
	repo.tasks["task-1"] = &models.Task{
		ID:        "task-1",
		Title:     "Essay",
		Deadline:  deadline,
		CreatedBy: "teacher-1",
	}
	submitted := time.Now().Add(-2 * time.Hour)
	assignments := &mockTaskAssignments{byTask: []models.AssignmentDetail{
		{
			Assignment:  models.Assignment{ID: "a-1", StudentID: "s-1", Status: models.AssignmentCompleted, SubmittedAt: &submitted},
			StudentName: "Ana",
		},
		{
			Assignment:  models.Assignment{ID: "a-2", StudentID: "s-2", Status: models.AssignmentPending},
			StudentName: "Ben",
		},
	}}
	svc := newTestTaskService(t, repo, &mockTaskClasses{teaches: true}, assignments)

	progress, err := svc.Progress(context.Background(), "task-1", "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, 2, progress.Summary.Total)
	assert.Equal(t, 1, progress.Summary.Completed)
	assert.Equal(t, 1, progress.Summary.Overdue)
	assert.Equal(t, models.AssignmentOverdue, progress.Assignments[1].Status)
	assert.InDelta(t, 50.0, progress.Summary.Rate, 0.01)
}

func TestTaskServiceDeleteRemovesTask(t *testing.T) {
	repo := newMockTaskRepo()
	repo.tasks["task-1"] = &models.Task{ID: "task-1", CreatedBy: "teacher-1"}
	svc := newTestTaskService(t, repo, &mockTaskClasses{teaches: true}, &mockTaskAssignments{})

	require.NoError(t, svc.Delete(context.Background(), "task-1", "teacher-1"))
	assert.Contains(t, repo.deleted, "task-1")
}

func TestTaskServiceListAllSpansTeachers(t *testing.T) {
	repo := newMockTaskRepo()
	repo.tasks["task-1"] = &models.Task{ID: "task-1", CreatedBy: "teacher-1"}
	repo.tasks["task-2"] = &models.Task{ID: "task-2", CreatedBy: "teacher-2"}
	svc := newTestTaskService(t, repo, &mockTaskClasses{teaches: true}, &mockTaskAssignments{})

	tasks, total, err := svc.ListAll(context.Background(), models.TaskFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, tasks, 2)
}

func TestTaskServiceDeleteAnyIgnoresOwnership(t *testing.T) {
	repo := newMockTaskRepo()
	repo.tasks["task-1"] = &models.Task{ID: "task-1", CreatedBy: "teacher-1"}
	svc := newTestTaskService(t, repo, &mockTaskClasses{teaches: true}, &mockTaskAssignments{})

	require.NoError(t, svc.DeleteAny(context.Background(), "task-1"))
	assert.Contains(t, repo.deleted, "task-1")
}

func TestTaskServiceDeleteAnyUnknownTask(t *testing.T) {
	repo := newMockTaskRepo()
	svc := newTestTaskService(t, repo, &mockTaskClasses{teaches: true}, &mockTaskAssignments{})

	err := svc.DeleteAny(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
