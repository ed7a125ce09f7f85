package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/smart-edu-api/internal/middleware"
	"github.com/noah-isme/smart-edu-api/internal/models"
	"github.com/noah-isme/smart-edu-api/internal/service"
)

type fakeNotificationRepo struct {
	byUser  map[string][]models.Notification
	created []models.Notification
}

func (f *fakeNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	f.created = append(f.created, *n)
	return nil
}

func (f *fakeNotificationRepo) CreateBatch(ctx context.Context, notifications []models.Notification) error {
	f.created = append(f.created, notifications...)
	return nil
}

func (f *fakeNotificationRepo) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error) {
	return f.byUser[filter.UserID], nil
}

func (f *fakeNotificationRepo) MarkRead(ctx context.Context, id, userID string) (bool, error) {
	for _, n := range f.byUser[userID] {
		if n.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeNotificationRepo) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return int64(len(f.byUser[userID])), nil
}

func (f *fakeNotificationRepo) CountUnread(ctx context.Context, userID string) (int, error) {
	return len(f.byUser[userID]), nil
}

type fakeNotificationUsers struct {
	users []models.User
}

func (f *fakeNotificationUsers) ListAll(ctx context.Context) ([]models.User, error) {
	return f.users, nil
}

func (f *fakeNotificationUsers) ListByRole(ctx context.Context, role models.UserRole) ([]models.User, error) {
	var out []models.User
	for _, u := range f.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

func newNotificationTestContext(t *testing.T, repo *fakeNotificationRepo, users *fakeNotificationUsers, claims *models.JWTClaims) (*NotificationHandler, *httptest.ResponseRecorder, *gin.Context) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := service.NewNotificationService(repo, users, validator.New(), zap.NewNop())
	handler := NewNotificationHandler(svc)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return handler, rec, c
}

func TestNotificationHandlerListRequiresAuth(t *testing.T) {
	handler, rec, c := newNotificationTestContext(t, &fakeNotificationRepo{}, &fakeNotificationUsers{}, nil)
	c.Request = httptest.NewRequest(http.MethodGet, "/notifications", nil)

	handler.List(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNotificationHandlerListReturnsOwnRows(t *testing.T) {
	repo := &fakeNotificationRepo{byUser: map[string][]models.Notification{
		"user-1": {{ID: "n-1", UserID: "user-1", Title: "New Task Assigned", Type: models.NotificationInfo, CreatedAt: time.Now()}},
	}}
	claims := &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent}
	handler, rec, c := newNotificationTestContext(t, repo, &fakeNotificationUsers{}, claims)
	c.Request = httptest.NewRequest(http.MethodGet, "/notifications", nil)

	handler.List(c)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []models.Notification `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "n-1", body.Data[0].ID)
}

func TestNotificationHandlerMarkReadUnknownID(t *testing.T) {
	claims := &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent}
	handler, rec, c := newNotificationTestContext(t, &fakeNotificationRepo{}, &fakeNotificationUsers{}, claims)
	c.Request = httptest.NewRequest(http.MethodPost, "/notifications/ghost/read", nil)
	c.Params = gin.Params{{Key: "id", Value: "ghost"}}

	handler.MarkRead(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotificationHandlerBroadcastTargetsStudents(t *testing.T) {
	users := &fakeNotificationUsers{users: []models.User{
		{ID: "t-1", Role: models.RoleTeacher},
		{ID: "s-1", Role: models.RoleStudent},
		{ID: "s-2", Role: models.RoleStudent},
	}}
	repo := &fakeNotificationRepo{}
	claims := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	handler, rec, c := newNotificationTestContext(t, repo, users, claims)

	payload, _ := json.Marshal(service.SystemNotificationRequest{
		Title:   "Maintenance",
		Message: "System down tonight",
		Target:  "students",
	})
	c.Request = httptest.NewRequest(http.MethodPost, "/admin/notifications", bytes.NewReader(payload))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Broadcast(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, repo.created, 2)
	for _, n := range repo.created {
		assert.Equal(t, "Maintenance", n.Title)
	}
}
