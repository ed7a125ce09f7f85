package repository

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/smart-edu-api/internal/models"
)

func newTaskRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestTaskRepositoryCreateWithFanOut(t *testing.T) {
	db, mock, cleanup := newTaskRepoMock(t)
	defer cleanup()

	repo := NewTaskRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tasks")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO assignments")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO assignments")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	task := &models.Task{
		Title:     "Essay",
		Deadline:  time.Now().Add(72 * time.Hour),
		Priority:  models.PriorityMedium,
		CreatedBy: "teacher-1",
	}
	notifications := []models.Notification{
		{UserID: "student-1", Title: "New Task Assigned", Message: "Essay", Type: models.NotificationInfo},
	}
	err := repo.CreateWithFanOut(context.Background(), task, []string{"student-1", "student-2"}, notifications)
	require.NoError(t, err)
	require.NotEmpty(t, task.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepositoryUpdateWithFanOutCollectsOrphans(t *testing.T) {
	db, mock, cleanup := newTaskRepoMock(t)
	defer cleanup()

	repo := NewTaskRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tasks SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT s.file_path FROM submissions")).
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"file_path"}).AddRow("abc_old.pdf"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM submissions")).
		WithArgs("task-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM assignments")).
		WithArgs("task-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO assignments")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	task := &models.Task{
		ID:       "task-1",
		Title:    "Essay v2",
		Deadline: time.Now().Add(96 * time.Hour),
		Priority: models.PriorityHigh,
	}
	removed, err := repo.UpdateWithFanOut(context.Background(), task, []string{"student-1"}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"abc_old.pdf"}, removed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepositoryDeleteCascadeReturnsFiles(t *testing.T) {
	db, mock, cleanup := newTaskRepoMock(t)
	defer cleanup()

	repo := NewTaskRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT s.file_path FROM submissions")).
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"file_path"}).AddRow("sub1.pdf").AddRow("sub2.docx"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT file_path FROM tasks")).
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"file_path"}).AddRow("brief.pdf"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM submissions")).
		WithArgs("task-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM assignments")).
		WithArgs("task-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM tasks")).
		WithArgs("task-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	files, err := repo.DeleteCascade(context.Background(), "task-1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"sub1.pdf", "sub2.docx", "brief.pdf"}, files)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepositoryListByCreatorRejectsUnknownSort(t *testing.T) {
	db, mock, cleanup := newTaskRepoMock(t)
	defer cleanup()

	repo := NewTaskRepository(db)

	rows := sqlmock.NewRows([]string{"id", "title", "description", "deadline", "priority", "instructions", "file_path", "created_by", "created_at", "updated_at"}).
		AddRow("task-1", "Essay", "", time.Now(), "medium_priority", "", nil, "teacher-1", time.Now(), time.Now())
	mock.ExpectQuery("SELECT .* FROM tasks WHERE created_by .* ORDER BY created_at DESC").
		WithArgs("teacher-1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM tasks")).
		WithArgs("teacher-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	tasks, total, err := repo.ListByCreator(context.Background(), models.TaskFilter{
		CreatedBy: "teacher-1",
		SortBy:    "; DROP TABLE tasks",
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, tasks, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskSchemaAcceptsEveryPriorityLabel(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("..", "..", "migrations", "0001_init.sql"))
	require.NoError(t, err)
	schema := string(raw)

	start := strings.Index(schema, "CREATE TABLE IF NOT EXISTS tasks")
	require.GreaterOrEqual(t, start, 0)
	block := schema[start:]
	if end := strings.Index(block, ");"); end >= 0 {
		block = block[:end]
	}

	m := regexp.MustCompile(`priority\s+VARCHAR\((\d+)\)`).FindStringSubmatch(block)
	require.Len(t, m, 2)
	width, err := strconv.Atoi(m[1])
	require.NoError(t, err)

	for _, label := range models.PriorityLabels {
		require.Contains(t, block, "'"+string(label)+"'", "label %s missing from the priority constraint", label)
		require.LessOrEqual(t, len(label), width, "label %s does not fit the priority column", label)
	}
}
