package usage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accountCols = []string{"user_id", "plan", "subscription_id", "subscription_status", "customer_id", "free_remaining", "updated_at"}

func TestPGStoreTrackConsumesFreeSignature(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	now := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO usage_accounts`).WithArgs("owner", 5).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM usage_accounts WHERE user_id = \$1 FOR UPDATE`).WithArgs("owner").
		WillReturnRows(sqlmock.NewRows(accountCols).AddRow("owner", "free", nil, nil, nil, 3, now))
	mock.ExpectQuery(`FROM usage_records`).WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"signature_id", "user_id", "document_id", "billed", "created_at"}))
	mock.ExpectExec(`UPDATE usage_accounts`).
		WithArgs("owner", "free", nil, nil, nil, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO usage_records`).
		WithArgs("s1", "owner", "doc", false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	svc := NewService(NewPGStore(sqlDB, 5), nil)
	res, err := svc.RecordCompletion(context.Background(), "owner", "doc", "s1")
	require.NoError(t, err)
	assert.True(t, res.Recorded)
	assert.False(t, res.Billed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreTrackDuplicateWritesNothing(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	now := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO usage_accounts`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("owner").
		WillReturnRows(sqlmock.NewRows(accountCols).AddRow("owner", "metered", "sub_1", "active", "cus_1", 0, now))
	mock.ExpectQuery(`FROM usage_records`).WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"signature_id", "user_id", "document_id", "billed", "created_at"}).
			AddRow("s1", "owner", "doc", true, now))
	mock.ExpectCommit()

	svc := NewService(NewPGStore(sqlDB, 5), nil)
	res, err := svc.RecordCompletion(context.Background(), "owner", "doc", "s1")
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.True(t, res.Billed)
	require.NoError(t, mock.ExpectationsWereMet())
}
