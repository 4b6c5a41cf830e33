package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var entryRowColumns = []string{"id", "owner_id", "start_at", "end_at", "kind", "lesson_ref", "block_ref", "created_at", "updated_at", "deleted_at"}

func TestScheduleEntryRepositoryInsertBatch(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleEntryRepository(db)

	lessonID := "lesson-1"
	blockID := "block-1"
	start := time.Date(2024, 3, 4, 11, 0, 0, 0, time.UTC)
	entries := []models.ScheduleEntry{
		{OwnerID: "tutor-1", StartAt: start, EndAt: start.Add(time.Hour), Kind: models.EntryKindLesson, LessonRef: &lessonID},
		{OwnerID: "tutor-1", StartAt: start.Add(2 * time.Hour), EndAt: start.Add(3 * time.Hour), Kind: models.EntryKindBlock, BlockRef: &blockID},
	}

	mock.ExpectExec("INSERT INTO schedule_entries").
		WithArgs(sqlmock.AnyArg(), "tutor-1", sqlmock.AnyArg(), sqlmock.AnyArg(), "LESSON", "lesson-1", nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO schedule_entries").
		WithArgs(sqlmock.AnyArg(), "tutor-1", sqlmock.AnyArg(), sqlmock.AnyArg(), "BLOCK", nil, "block-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.InsertBatch(context.Background(), nil, entries))
	for _, entry := range entries {
		assert.NotEmpty(t, entry.ID)
		assert.False(t, entry.CreatedAt.IsZero())
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleEntryRepositoryListOverlapping(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleEntryRepository(db)

	from := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	rows := sqlmock.NewRows(entryRowColumns).
		AddRow("entry-1", "tutor-1", from.Add(18*time.Hour), from.Add(19*time.Hour), "BLOCK", nil, "block-1", from, from, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM schedule_entries WHERE owner_id = $1 AND deleted_at IS NULL AND start_at < $3 AND end_at > $2")).
		WithArgs("tutor-1", from, to).
		WillReturnRows(rows)

	entries, err := repo.ListOverlapping(context.Background(), nil, "tutor-1", models.Interval{Start: from, End: to})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.EntryKindBlock, entries[0].Kind)
	require.NotNil(t, entries[0].BlockRef)
	assert.Equal(t, "block-1", *entries[0].BlockRef)
	assert.Nil(t, entries[0].LessonRef)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleEntryRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleEntryRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM schedule_entries WHERE id = $1 AND deleted_at IS NULL")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), nil, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleEntryRepositoryUpdateIntervalMissingEntry(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleEntryRepository(db)

	start := time.Date(2024, 3, 4, 11, 30, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedule_entries SET start_at = $1, end_at = $2")).
		WithArgs(start, start.Add(time.Hour), sqlmock.AnyArg(), "entry-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateInterval(context.Background(), nil, "entry-1", models.Interval{Start: start, End: start.Add(time.Hour)})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleEntryRepositorySoftDeleteByBlock(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleEntryRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE block_ref = $2 AND deleted_at IS NULL")).
		WithArgs(sqlmock.AnyArg(), "block-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	affected, err := repo.SoftDeleteByBlock(context.Background(), nil, "block-1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleEntryRepositoryUsesProvidedTransaction(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleEntryRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = ANY($2) AND deleted_at IS NULL")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)
	affected, err := repo.SoftDelete(context.Background(), tx, []string{"entry-1", "entry-2"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.EqualValues(t, 2, affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}
