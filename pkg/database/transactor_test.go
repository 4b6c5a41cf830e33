package database

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestRunAtomicCommits(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO lessons")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := NewTransactor(db, TransactorConfig{}).RunAtomic(context.Background(), func(ctx context.Context, tx sqlx.ExtContext) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO lessons (id) VALUES ($1)", "l1")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunAtomicRetriesSerializationFailure(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedule_entries")).WillReturnError(&pq.Error{Code: "40001"})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedule_entries")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var retries []int
	attempts := 0
	transactor := NewTransactor(db, TransactorConfig{
		MaxAttempts: 3,
		OnRetry:     func(attempt int, err error) { retries = append(retries, attempt) },
	})
	err := transactor.RunAtomic(context.Background(), func(ctx context.Context, tx sqlx.ExtContext) error {
		attempts++
		_, err := tx.ExecContext(ctx, "UPDATE schedule_entries SET start_at = $1", "x")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []int{1}, retries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunAtomicGivesUpAfterMaxAttempts(t *testing.T) {
	db, mock := newMockDB(t)
	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock")).WillReturnError(&pq.Error{Code: "40P01"})
		mock.ExpectRollback()
	}

	err := NewTransactor(db, TransactorConfig{MaxAttempts: 2}).RunAtomic(context.Background(), func(ctx context.Context, tx sqlx.ExtContext) error {
		return AdvisoryLocker{}.Lock(ctx, tx, OwnerLockKey("tutor-1"))
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transaction failed after 2 attempts")
	assert.True(t, IsTransient(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunAtomicDoesNotRetryBusinessErrors(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	business := errors.New("slot taken")
	attempts := 0
	err := NewTransactor(db, TransactorConfig{MaxAttempts: 3}).RunAtomic(context.Background(), func(ctx context.Context, tx sqlx.ExtContext) error {
		attempts++
		return business
	})
	assert.ErrorIs(t, err, business)
	assert.Equal(t, 1, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAtomicReturnsCommittedValue(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	got, err := Atomic(context.Background(), NewTransactor(db, TransactorConfig{}), func(ctx context.Context, tx sqlx.ExtContext) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
