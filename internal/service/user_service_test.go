package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/smart-edu-api/internal/models"
	"github.com/noah-isme/smart-edu-api/internal/repository"
	appErrors "github.com/noah-isme/smart-edu-api/pkg/errors"
	"github.com/noah-isme/smart-edu-api/pkg/export"
	"github.com/noah-isme/smart-edu-api/pkg/storage"
)

type mockUserRepo struct {
	users      map[string]*models.User
	all        []models.User
	cascadeErr error
	deleted    []string
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	return m.all, len(m.all), nil
}

func (m *mockUserRepo) ListAll(ctx context.Context) ([]models.User, error) {
	return m.all, nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	for _, u := range m.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	return nil
}

func (m *mockUserRepo) DeleteCascade(ctx context.Context, userID string) ([]string, error) {
	if m.cascadeErr != nil {
		return nil, m.cascadeErr
	}
	m.deleted = append(m.deleted, userID)
	delete(m.users, userID)
	return nil, nil
}

func (m *mockUserRepo) SetTeacherClasses(ctx context.Context, teacherID string, classIDs []string) error {
	return nil
}

func userFixture(t *testing.T, repo *mockUserRepo) *UserService {
	t.Helper()
	uploads, err := storage.NewUploadStore(t.TempDir())
	require.NoError(t, err)
	return NewUserService(repo, uploads, export.NewCSVExporter(), nil, nil)
}

func TestExportCSVResolvesStudentClassName(t *testing.T) {
	subject := "Matematika"
	className := "X IPA 1"
	repo := &mockUserRepo{all: []models.User{
		{
			ID:        "t-1",
			Name:      "Pak Budi",
			Email:     "budi@sekolah.id",
			Role:      models.RoleTeacher,
			Subject:   &subject,
			CreatedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		},
		{
			ID:        "s-1",
			Name:      "Dewi",
			Email:     "dewi@sekolah.id",
			Role:      models.RoleStudent,
			ClassName: &className,
			CreatedAt: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		},
	}}
	svc := userFixture(t, repo)

	out, filename, err := svc.ExportCSV(context.Background())
	require.NoError(t, err)
	require.Equal(t, "users_export.csv", filename)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[1], "Matematika")
	require.Contains(t, lines[2], "X IPA 1")
	require.NotContains(t, string(out), "class_id")
}

func TestDeleteRefusesSelf(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{}}
	svc := userFixture(t, repo)

	err := svc.Delete(context.Background(), "admin-1", "admin-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestDeleteConflictsWhileUserOwnsRegistries(t *testing.T) {
	repo := &mockUserRepo{
		users: map[string]*models.User{
			"t-1": {ID: "t-1", Name: "Pak Budi", Email: "budi@sekolah.id", Role: models.RoleTeacher},
		},
		cascadeErr: repository.ErrUserOwnsRegistry,
	}
	svc := userFixture(t, repo)

	err := svc.Delete(context.Background(), "t-1", "admin-1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	require.Contains(t, repo.users, "t-1")
}

func TestDeleteRemovesUser(t *testing.T) {
	repo := &mockUserRepo{
		users: map[string]*models.User{
			"s-1": {ID: "s-1", Name: "Dewi", Email: "dewi@sekolah.id", Role: models.RoleStudent},
		},
	}
	svc := userFixture(t, repo)

	require.NoError(t, svc.Delete(context.Background(), "s-1", "admin-1"))
	require.Equal(t, []string{"s-1"}, repo.deleted)
}
