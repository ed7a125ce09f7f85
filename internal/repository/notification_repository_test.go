package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/smart-edu-api/internal/models"
)

func TestNotificationRepositoryCreateBatch(t *testing.T) {
	db, mock, cleanup := newTaskRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	batch := []models.Notification{
		{UserID: "student-1", Title: "New Task Assigned", Message: "Essay", Type: models.NotificationInfo},
		{UserID: "student-2", Title: "New Task Assigned", Message: "Essay", Type: models.NotificationInfo},
	}
	require.NoError(t, repo.CreateBatch(context.Background(), batch))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryCreateBatchEmptyIsNoop(t *testing.T) {
	db, mock, cleanup := newTaskRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)
	require.NoError(t, repo.CreateBatch(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryListExcludesExpired(t *testing.T) {
	db, mock, cleanup := newTaskRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)

	rows := sqlmock.NewRows([]string{"id", "user_id", "title", "message", "notification_type", "is_read", "created_at", "expires_at"}).
		AddRow("n-1", "student-1", "New Task Assigned", "Essay", "info", false, time.Now(), nil)
	mock.ExpectQuery("SELECT .* FROM notifications\nWHERE user_id .* AND \\(expires_at IS NULL OR expires_at > .*\\) AND is_read = FALSE ORDER BY created_at DESC").
		WillReturnRows(rows)

	got, err := repo.List(context.Background(), models.NotificationFilter{UserID: "student-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "n-1", got[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryMarkReadGuardsOwner(t *testing.T) {
	db, mock, cleanup := newTaskRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2")).
		WithArgs("n-1", "other-user").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.MarkRead(context.Background(), "n-1", "other-user")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryMarkAllRead(t *testing.T) {
	db, mock, cleanup := newTaskRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE")).
		WithArgs("student-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.MarkAllRead(context.Background(), "student-1")
	require.NoError(t, err)
	require.Equal(t, int64(3), count)
	require.NoError(t, mock.ExpectationsWereMet())
}
