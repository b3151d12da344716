package users

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPGRepoGetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := &PGRepo{DB: db}

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, email`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "full_name", "given_name", "family_name", "picture_url", "created_at", "updated_at"}).
			AddRow("u1", "owner@example.com", "", "Ada", "Lovelace", "", created, created))
	mock.ExpectQuery(`SELECT id, email`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	user, err := repo.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", user.DisplayName())
	assert.Equal(t, created, user.CreatedAt)

	_, err = repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepoUpsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs("u1", "owner@example.com", "Ada", "", "", "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = (&PGRepo{DB: db}).Upsert(context.Background(), User{ID: "u1", Email: "owner@example.com", FullName: "Ada"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
