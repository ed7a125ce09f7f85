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
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/smart-edu-api/internal/models"
	appErrors "github.com/noah-isme/smart-edu-api/pkg/errors"
)

type mockAuthRepo struct {
	usersByEmail   map[string]*models.User
	usersByID      map[string]*models.User
	refreshTokens  map[string]*models.RefreshToken
	created        []*models.User
	teacherClasses map[string][]string
	revokedAll     []string
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{
		usersByEmail:   make(map[string]*models.User),
		usersByID:      make(map[string]*models.User),
		refreshTokens:  make(map[string]*models.RefreshToken),
		teacherClasses: make(map[string][]string),
	}
}

func (m *mockAuthRepo) add(user *models.User) {
	m.usersByEmail[user.Email] = user
	m.usersByID[user.ID] = user
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user, ok := m.usersByEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := m.usersByID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (m *mockAuthRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, ok := m.usersByEmail[email]
	return ok, nil
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	m.add(user)
	m.created = append(m.created, user)
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if user, ok := m.usersByID[id]; ok {
		user.PasswordHash = passwordHash
	}
	return nil
}

func (m *mockAuthRepo) SetTeacherClasses(ctx context.Context, teacherID string, classIDs []string) error {
	m.teacherClasses[teacherID] = classIDs
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	rt, ok := m.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, rt := range m.refreshTokens {
		if rt.ID == id {
			rt.Revoked = true
			rt.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedAll = append(m.revokedAll, userID)
	return nil
}

type mockClassChecker struct {
	missing map[string]bool
}

func (m *mockClassChecker) ExistAll(ctx context.Context, ids []string) (bool, error) {
	for _, id := range ids {
		if m.missing[id] {
			return false, nil
		}
	}
	return true, nil
}

func newAuthService(repo *mockAuthRepo) *AuthService {
	return NewAuthService(repo, &mockClassChecker{}, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
	})
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	repo := newMockAuthRepo()
	repo.add(&models.User{
		ID:           "user-1",
		Name:         "Alice",
		Email:        "alice@example.com",
		PasswordHash: hashOf(t, "secret123"),
		Role:         models.RoleTeacher,
	})
	svc := newAuthService(repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "alice@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, models.RoleTeacher, resp.User.Role)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	repo := newMockAuthRepo()
	repo.add(&models.User{
		ID:           "user-1",
		Email:        "alice@example.com",
		PasswordHash: hashOf(t, "secret123"),
		Role:         models.RoleTeacher,
	})
	svc := newAuthService(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "alice@example.com",
		Password: "wrong",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
}

func TestAuthServiceLoginUnknownEmailSameError(t *testing.T) {
	svc := newAuthService(newMockAuthRepo())

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "ghost@example.com",
		Password: "whatever",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
}

func TestAuthServiceRefreshRotatesToken(t *testing.T) {
	repo := newMockAuthRepo()
	repo.add(&models.User{
		ID:           "user-1",
		Email:        "alice@example.com",
		PasswordHash: hashOf(t, "secret123"),
		Role:         models.RoleStudent,
	})
	svc := newAuthService(repo)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "alice@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	assert.True(t, repo.refreshTokens[login.RefreshToken].Revoked)

	// the used token is revoked, a second exchange must fail
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	require.Error(t, err)
}

func TestAuthServiceChangePasswordRevokesSessions(t *testing.T) {
	repo := newMockAuthRepo()
	repo.add(&models.User{
		ID:           "user-1",
		Email:        "alice@example.com",
		PasswordHash: hashOf(t, "oldpass1"),
		Role:         models.RoleStudent,
	})
	svc := newAuthService(repo)

	err := svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{
		OldPassword: "oldpass1",
		NewPassword: "newpass1",
	})
	require.NoError(t, err)
	assert.Contains(t, repo.revokedAll, "user-1")

	err = bcrypt.CompareHashAndPassword([]byte(repo.usersByID["user-1"].PasswordHash), []byte("newpass1"))
	assert.NoError(t, err)
}

func TestAuthServiceRegisterTeacherAttachesClasses(t *testing.T) {
	repo := newMockAuthRepo()
	svc := newAuthService(repo)

	user, err := svc.RegisterTeacher(context.Background(), models.RegisterTeacherRequest{
		Name:     "Bob Teacher",
		Email:    "bob@example.com",
		Password: "secret123",
		Subject:  "Math",
		ClassIDs: []string{"class-1", "class-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, user.Role)
	require.NotNil(t, user.Subject)
	assert.Equal(t, "Math", *user.Subject)
	assert.Equal(t, []string{"class-1", "class-2"}, repo.teacherClasses[user.ID])
}

func TestAuthServiceRegisterStudentDuplicateEmail(t *testing.T) {
	repo := newMockAuthRepo()
	repo.add(&models.User{ID: "user-1", Email: "taken@example.com", Role: models.RoleStudent})
	svc := newAuthService(repo)

	_, err := svc.RegisterStudent(context.Background(), models.RegisterStudentRequest{
		Name:     "Carol Student",
		Email:    "taken@example.com",
		Password: "secret123",
		ClassID:  "class-1",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestAuthServiceRegisterStudentUnknownClass(t *testing.T) {
	repo := newMockAuthRepo()
	svc := NewAuthService(repo, &mockClassChecker{missing: map[string]bool{"ghost": true}}, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
	})

	_, err := svc.RegisterStudent(context.Background(), models.RegisterStudentRequest{
		Name:     "Carol Student",
		Email:    "carol@example.com",
		Password: "secret123",
		ClassID:  "ghost",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}
