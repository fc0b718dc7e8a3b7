// Package usecase implements the persisted job queue, its processing loop and the
// executors for each job type.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	deadLetterDomain "github.com/allisson/propflow/internal/deadletter/domain"
	"github.com/allisson/propflow/internal/job/domain"
)

// JobRepository persists jobs.
type JobRepository interface {
	Create(ctx context.Context, job *domain.Job) error
	// ClaimDue leases up to limit runnable jobs to owner until leaseUntil and returns
	// them with status processing. A job is runnable when it is pending or retrying,
	// or processing with an expired lease, with scheduled_for <= now and
	// attempts < max_retries.
	ClaimDue(ctx context.Context, now time.Time, limit int, owner string, leaseUntil time.Time) ([]*domain.Job, error)
	Update(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	// HasPending reports whether a job of jobType other than except is still
	// pending, retrying or processing.
	HasPending(ctx context.Context, jobType domain.JobType, except uuid.UUID) (bool, error)
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Executor runs one job. A returned error counts as a failed attempt.
type Executor interface {
	Execute(ctx context.Context, job *domain.Job) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, job *domain.Job) error

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, job *domain.Job) error {
	return f(ctx, job)
}

// DeadLetterRecorder receives jobs that exhausted their retries.
type DeadLetterRecorder interface {
	Record(ctx context.Context, deadLetter *deadLetterDomain.DeadLetter) error
}

// TickFunc is extra work run on every processing tick after due jobs.
type TickFunc func(ctx context.Context) error

// ScheduleInput describes a job to enqueue. A zero ScheduledFor means now, zero
// Priority means PriorityNormal and nil MaxRetries means the queue default.
type ScheduleInput struct {
	Type         domain.JobType
	Payload      any
	ScheduledFor time.Time
	Priority     int
	MaxRetries   *int
}

// ProcessResult summarizes one processing tick.
type ProcessResult struct {
	Claimed   int
	Succeeded int
	Retried   int
	Failed    int
}

// UseCase is the job queue.
type UseCase interface {
	Schedule(ctx context.Context, input ScheduleInput) (*domain.Job, error)
	ScheduleReminder(
		ctx context.Context,
		kind, recipientID string,
		when time.Time,
		payload domain.ReminderPayload,
	) (*domain.Job, error)
	// EnsureScheduled schedules input unless a job of the same type is already
	// waiting. It reports whether a job was created.
	EnsureScheduled(ctx context.Context, input ScheduleInput) (bool, error)
	ProcessDue(ctx context.Context) (ProcessResult, error)
	StartProcessing(interval time.Duration, extra ...TickFunc)
	StopProcessing()
	Requeue(ctx context.Context, id uuid.UUID) error
	Register(jobType domain.JobType, executor Executor)
}
