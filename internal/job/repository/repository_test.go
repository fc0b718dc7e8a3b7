package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/propflow/internal/job/domain"
)

var jobColumnNames = []string{
	"id", "type", "payload", "scheduled_for", "priority", "attempts", "max_retries", "status",
	"last_error", "locked_by", "locked_until", "completed_at", "created_at", "updated_at",
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func mustBinary(t *testing.T, id uuid.UUID) []byte {
	t.Helper()
	b, err := id.MarshalBinary()
	require.NoError(t, err)
	return b
}

func newTestJob(now time.Time) *domain.Job {
	return &domain.Job{
		ID:           uuid.Must(uuid.NewV7()),
		Type:         domain.JobTypeSendReminder,
		Payload:      []byte(`{"title":"Rent due"}`),
		ScheduledFor: now,
		Priority:     domain.PriorityNormal,
		MaxRetries:   domain.DefaultMaxRetries,
		Status:       domain.JobStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestPostgreSQLJobRepository_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgreSQLJobRepository(db)
	now := time.Now().UTC()
	job := newTestJob(now)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO jobs")).
		WithArgs(job.ID, "send_reminder", sqlmock.AnyArg(), now, 5, 0, 3, "pending", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), job))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLJobRepository_ClaimDue(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgreSQLJobRepository(db)
	now := time.Now().UTC()
	leaseUntil := now.Add(2 * time.Minute)
	id := uuid.Must(uuid.NewV7())

	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WithArgs(now, 10, "worker-1", leaseUntil).
		WillReturnRows(sqlmock.NewRows(jobColumnNames).AddRow(
			id.String(), "cleanup", []byte(`{}`), now, 1, 0, 3, "processing",
			nil, "worker-1", leaseUntil, nil, now, now,
		))

	jobs, err := repo.ClaimDue(context.Background(), now, 10, "worker-1", leaseUntil)

	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, id, jobs[0].ID)
	assert.Equal(t, domain.JobTypeCleanup, jobs[0].Type)
	assert.Equal(t, domain.JobStatusProcessing, jobs[0].Status)
	require.NotNil(t, jobs[0].LockedBy)
	assert.Equal(t, "worker-1", *jobs[0].LockedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLJobRepository_Update(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewPostgreSQLJobRepository(db)
		job := newTestJob(time.Now().UTC())

		mock.ExpectExec(regexp.QuoteMeta("UPDATE jobs")).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Update(context.Background(), job))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewPostgreSQLJobRepository(db)

		mock.ExpectExec(regexp.QuoteMeta("UPDATE jobs")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Update(context.Background(), newTestJob(time.Now().UTC()))
		assert.ErrorIs(t, err, domain.ErrJobNotFound)
	})
}

func TestPostgreSQLJobRepository_Get(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgreSQLJobRepository(db)
	id := uuid.Must(uuid.NewV7())

	mock.ExpectQuery(regexp.QuoteMeta("FROM jobs WHERE id = $1")).
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestPostgreSQLJobRepository_HasPending(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgreSQLJobRepository(db)

	current := uuid.Must(uuid.NewV7())

	mock.ExpectQuery(regexp.QuoteMeta("AND id <> $2")).
		WithArgs("cleanup", current.String()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.HasPending(context.Background(), domain.JobTypeCleanup, current)

	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMySQLJobRepository_HasPending(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMySQLJobRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("AND id <> ?")).
		WithArgs("cleanup", mustBinary(t, uuid.Nil)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	exists, err := repo.HasPending(context.Background(), domain.JobTypeCleanup, uuid.Nil)

	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLJobRepository_DeleteCompletedBefore(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgreSQLJobRepository(db)
	cutoff := time.Now().UTC().AddDate(0, 0, -90)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM jobs WHERE status = 'done' AND completed_at < $1")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	deleted, err := repo.DeleteCompletedBefore(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted)
}

func TestMySQLJobRepository_ClaimDue(t *testing.T) {
	t.Run("Success_LeasesSelectedRows", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewMySQLJobRepository(db)
		now := time.Now().UTC()
		leaseUntil := now.Add(2 * time.Minute)
		id := uuid.Must(uuid.NewV7())

		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
			WithArgs(now, now, 10).
			WillReturnRows(sqlmock.NewRows(jobColumnNames).AddRow(
				mustBinary(t, id), "send_reminder", []byte(`{}`), now, 5, 1, 3, "retrying",
				"boom", nil, nil, nil, now, now,
			))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE jobs SET status = 'processing'")).
			WithArgs("worker-1", leaseUntil, now, mustBinary(t, id)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		jobs, err := repo.ClaimDue(context.Background(), now, 10, "worker-1", leaseUntil)

		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, id, jobs[0].ID)
		assert.Equal(t, domain.JobStatusProcessing, jobs[0].Status)
		assert.Equal(t, 1, jobs[0].Attempts)
		require.NotNil(t, jobs[0].LockedUntil)
		assert.Equal(t, leaseUntil, *jobs[0].LockedUntil)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success_NothingDue", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewMySQLJobRepository(db)
		now := time.Now().UTC()

		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
			WithArgs(now, now, 10).
			WillReturnRows(sqlmock.NewRows(jobColumnNames))

		jobs, err := repo.ClaimDue(context.Background(), now, 10, "worker-1", now.Add(time.Minute))

		require.NoError(t, err)
		assert.Empty(t, jobs)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMySQLJobRepository_Get(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMySQLJobRepository(db)
	id := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM jobs WHERE id = ?")).
		WithArgs(mustBinary(t, id)).
		WillReturnRows(sqlmock.NewRows(jobColumnNames).AddRow(
			mustBinary(t, id), "cleanup", []byte(`{}`), now, 1, 3, 3, "failed",
			"disk full", nil, nil, nil, now, now,
		))

	job, err := repo.Get(context.Background(), id)

	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	require.NotNil(t, job.LastError)
	assert.Equal(t, "disk full", *job.LastError)
}
