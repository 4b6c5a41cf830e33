package database

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvisoryLockSortsAndDeduplicatesKeys(t *testing.T) {
	db, mock := newMockDB(t)
	query := regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")
	mock.ExpectExec(query).WithArgs("schedule-owner:a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(query).WithArgs("schedule-owner:b").WillReturnResult(sqlmock.NewResult(0, 0))

	err := AdvisoryLocker{}.Lock(context.Background(), db, OwnerLockKey("b"), OwnerLockKey("a"), OwnerLockKey("b"), "")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvisoryLockRequiresExecutor(t *testing.T) {
	assert.Error(t, AdvisoryLocker{}.Lock(context.Background(), nil, "k"))
}
