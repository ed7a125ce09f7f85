package repository

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestUserDeleteCascadeRefusesRegistryOwner(t *testing.T) {
	db, mock, cleanup := newTaskRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \(SELECT COUNT\(\*\) FROM classes WHERE created_by`).
		WithArgs("teacher-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	_, err := repo.DeleteCascade(context.Background(), "teacher-1")
	require.ErrorIs(t, err, ErrUserOwnsRegistry)
	require.NoError(t, mock.ExpectationsWereMet())
}
