package handler

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/smart-edu-api/internal/middleware"
	"github.com/noah-isme/smart-edu-api/internal/models"
	"github.com/noah-isme/smart-edu-api/internal/service"
	appErrors "github.com/noah-isme/smart-edu-api/pkg/errors"
	"github.com/noah-isme/smart-edu-api/pkg/storage"
)

type fakeTaskRepo struct {
	tasks map[string]*models.Task
}

func (f *fakeTaskRepo) FindByID(ctx context.Context, id string) (*models.Task, error) {
	if t, ok := f.tasks[id]; ok {
		copied := *t
		return &copied, nil
	}
	return nil, errTaskMissing
}

func (f *fakeTaskRepo) ListByCreator(ctx context.Context, filter models.TaskFilter) ([]models.Task, int, error) {
	return nil, 0, nil
}

func (f *fakeTaskRepo) ListAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, int, error) {
	var out []models.Task
	for _, task := range f.tasks {
		out = append(out, *task)
	}
	return out, len(out), nil
}

func (f *fakeTaskRepo) CreateWithFanOut(ctx context.Context, task *models.Task, studentIDs []string, notifications []models.Notification) error {
	f.tasks[task.ID] = task
	return nil
}

func (f *fakeTaskRepo) UpdateWithFanOut(ctx context.Context, task *models.Task, studentIDs []string, notifications []models.Notification) ([]string, error) {
	f.tasks[task.ID] = task
	return nil, nil
}

func (f *fakeTaskRepo) DeleteCascade(ctx context.Context, taskID string) ([]string, error) {
	delete(f.tasks, taskID)
	return nil, nil
}

type fakeAssignmentLister struct{}

func (f *fakeAssignmentLister) ListByTask(ctx context.Context, taskID string) ([]models.AssignmentDetail, error) {
	return nil, nil
}

type fakeClassChecker struct{}

func (f *fakeClassChecker) ExistAll(ctx context.Context, ids []string) (bool, error) {
	return true, nil
}

func (f *fakeClassChecker) TeacherTeaches(ctx context.Context, teacherID string, classIDs []string) (bool, error) {
	return true, nil
}

type fakeStudentLister struct {
	students []models.User
}

func (f *fakeStudentLister) ListStudentsByClasses(ctx context.Context, classIDs []string) ([]models.User, error) {
	return f.students, nil
}

type recordingStatsCache struct {
	deleted []string
}

func (f *recordingStatsCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	return appErrors.ErrCacheMiss
}

func (f *recordingStatsCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}

func (f *recordingStatsCache) Delete(ctx context.Context, keys ...string) error {
	f.deleted = append(f.deleted, keys...)
	return nil
}

var errTaskMissing = appErrors.Clone(appErrors.ErrNotFound, "task not found")

func newTaskTestContext(t *testing.T, repo *fakeTaskRepo, cache *recordingStatsCache, claims *models.JWTClaims) (*TaskHandler, *httptest.ResponseRecorder, *gin.Context) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	uploads, err := storage.NewUploadStore(t.TempDir())
	require.NoError(t, err)

	tasks := service.NewTaskService(
		repo,
		&fakeAssignmentLister{},
		&fakeClassChecker{},
		&fakeStudentLister{students: []models.User{{ID: "s-1", Name: "Dewi", Role: models.RoleStudent}}},
		uploads, nil, nil, nil, 20<<20, []string{".pdf"},
	)
	stats := service.NewStatsService(nil, nil, cache, nil, nil, time.Minute)
	handler := NewTaskHandler(tasks, nil, stats)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return handler, rec, c
}

func taskForm(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, w.WriteField(key, value))
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestTaskHandlerUpdateInvalidatesStatsCache(t *testing.T) {
	repo := &fakeTaskRepo{tasks: map[string]*models.Task{
		"task-1": {ID: "task-1", Title: "Essay", Priority: models.PriorityMedium, CreatedBy: "teacher-1", Deadline: time.Now().Add(72 * time.Hour)},
	}}
	cache := &recordingStatsCache{}
	claims := &models.JWTClaims{UserID: "teacher-1", Name: "Pak Budi", Role: models.RoleTeacher}
	handler, rec, c := newTaskTestContext(t, repo, cache, claims)

	body, contentType := taskForm(t, map[string]string{
		"title":     "Essay revision",
		"deadline":  "2026-09-15T10:00",
		"priority":  "high_priority",
		"class_ids": "class-1",
	})
	c.Request = httptest.NewRequest(http.MethodPut, "/teacher/tasks/task-1", body)
	c.Request.Header.Set("Content-Type", contentType)
	c.Params = gin.Params{{Key: "id", Value: "task-1"}}

	handler.Update(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, cache.deleted, "editing a task must drop the cached dashboard counters")
	assert.Equal(t, "Essay revision", repo.tasks["task-1"].Title)
}

func TestTaskHandlerUpdateForbiddenLeavesCache(t *testing.T) {
	repo := &fakeTaskRepo{tasks: map[string]*models.Task{
		"task-1": {ID: "task-1", Title: "Essay", Priority: models.PriorityMedium, CreatedBy: "teacher-2", Deadline: time.Now().Add(72 * time.Hour)},
	}}
	cache := &recordingStatsCache{}
	claims := &models.JWTClaims{UserID: "teacher-1", Name: "Pak Budi", Role: models.RoleTeacher}
	handler, rec, c := newTaskTestContext(t, repo, cache, claims)

	body, contentType := taskForm(t, map[string]string{
		"title":     "Essay revision",
		"deadline":  "2026-09-15T10:00",
		"priority":  "high_priority",
		"class_ids": "class-1",
	})
	c.Request = httptest.NewRequest(http.MethodPut, "/teacher/tasks/task-1", body)
	c.Request.Header.Set("Content-Type", contentType)
	c.Params = gin.Params{{Key: "id", Value: "task-1"}}

	handler.Update(c)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, cache.deleted)
}
