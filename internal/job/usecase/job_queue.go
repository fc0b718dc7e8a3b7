package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	"github.com/allisson/propflow/internal/backoff"
	"github.com/allisson/propflow/internal/clock"
	"github.com/allisson/propflow/internal/database"
	deadLetterDomain "github.com/allisson/propflow/internal/deadletter/domain"
	apperrors "github.com/allisson/propflow/internal/errors"
	"github.com/allisson/propflow/internal/job/domain"
	"github.com/allisson/propflow/internal/metrics"
	customValidation "github.com/allisson/propflow/internal/validation"
)

// DefaultPollInterval is the processing tick used when none is given.
const DefaultPollInterval = 30 * time.Second

// Config holds job queue configuration
type Config struct {
	WorkerID          string
	BatchSize         int
	LeaseDuration     time.Duration
	DefaultMaxRetries int
}

// JobQueue is a persisted priority queue of background jobs.
type JobQueue struct {
	config      Config
	txManager   database.TxManager
	repo        JobRepository
	deadLetters DeadLetterRecorder
	clock       clock.Clock
	metrics     metrics.BusinessMetrics
	logger      *slog.Logger

	mu        sync.RWMutex
	executors map[domain.JobType]Executor

	loopMu sync.Mutex
	stop   chan struct{}
	done   chan struct{}
}

// NewJobQueue creates a new JobQueue
func NewJobQueue(
	config Config,
	txManager database.TxManager,
	repo JobRepository,
	deadLetters DeadLetterRecorder,
	clk clock.Clock,
	businessMetrics metrics.BusinessMetrics,
	logger *slog.Logger,
) *JobQueue {
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.LeaseDuration <= 0 {
		config.LeaseDuration = 5 * time.Minute
	}
	if config.DefaultMaxRetries <= 0 {
		config.DefaultMaxRetries = domain.DefaultMaxRetries
	}
	if config.WorkerID == "" {
		config.WorkerID = "worker-" + uuid.NewString()[:8]
	}
	if businessMetrics == nil {
		businessMetrics = metrics.NewNoOpBusinessMetrics()
	}
	return &JobQueue{
		config:      config,
		txManager:   txManager,
		repo:        repo,
		deadLetters: deadLetters,
		clock:       clk,
		metrics:     businessMetrics,
		logger:      logger,
		executors:   make(map[domain.JobType]Executor),
	}
}

// Register sets the executor for jobType, replacing any previous one.
func (q *JobQueue) Register(jobType domain.JobType, executor Executor) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.executors[jobType] = executor
}

func (in ScheduleInput) validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Type, validation.Required, validation.By(func(value any) error {
			if !value.(domain.JobType).Valid() {
				return validation.NewError("validation_job_type", "must be a known job type")
			}
			return nil
		})),
		validation.Field(&in.Priority, validation.Min(0), validation.Max(100)),
		validation.Field(&in.MaxRetries, validation.NilOrNotEmpty, validation.Min(1), validation.Max(50)),
	)
}

// Schedule inserts a pending job. Nothing runs until a processing tick finds it due.
func (q *JobQueue) Schedule(ctx context.Context, input ScheduleInput) (*domain.Job, error) {
	if err := input.validate(); err != nil {
		return nil, customValidation.WrapValidationError(err)
	}

	raw, err := json.Marshal(input.Payload)
	if err != nil {
		return nil, apperrors.Wrapf(domain.ErrInvalidJobPayload, "%s: %v", input.Type, err)
	}

	now := q.clock.Now()
	job := &domain.Job{
		ID:           uuid.Must(uuid.NewV7()),
		Type:         input.Type,
		Payload:      raw,
		ScheduledFor: input.ScheduledFor,
		Priority:     input.Priority,
		MaxRetries:   q.config.DefaultMaxRetries,
		Status:       domain.JobStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if job.ScheduledFor.IsZero() || job.ScheduledFor.Before(now) {
		job.ScheduledFor = now
	}
	job.ScheduledFor = job.ScheduledFor.UTC()
	if job.Priority == 0 {
		job.Priority = domain.PriorityNormal
	}
	if input.MaxRetries != nil {
		job.MaxRetries = *input.MaxRetries
	}

	if err := q.repo.Create(ctx, job); err != nil {
		q.metrics.RecordOperation(ctx, "jobs", "schedule", metrics.StatusError)
		return nil, err
	}
	q.metrics.RecordOperation(ctx, "jobs", "schedule", metrics.StatusSuccess)

	if q.logger != nil {
		q.logger.Debug("job scheduled",
			slog.String("job_id", job.ID.String()),
			slog.String("job_type", string(job.Type)),
			slog.Time("scheduled_for", job.ScheduledFor),
			slog.Int("priority", job.Priority),
		)
	}
	return job, nil
}

// ScheduleReminder enqueues a send_reminder job for recipientID at when.
func (q *JobQueue) ScheduleReminder(
	ctx context.Context,
	kind, recipientID string,
	when time.Time,
	payload domain.ReminderPayload,
) (*domain.Job, error) {
	payload.Kind = kind
	payload.RecipientID = recipientID
	return q.Schedule(ctx, ScheduleInput{
		Type:         domain.JobTypeSendReminder,
		Payload:      payload,
		ScheduledFor: when,
		Priority:     domain.PriorityNormal,
	})
}

// EnsureScheduled schedules input unless a job of its type is still waiting to run.
func (q *JobQueue) EnsureScheduled(ctx context.Context, input ScheduleInput) (bool, error) {
	return q.ensureScheduled(ctx, input, uuid.Nil)
}

// ScheduleSuccessor schedules the next run of a recurring job from inside current.
// A re-executed current job finds the successor of its earlier run and adds nothing.
func (q *JobQueue) ScheduleSuccessor(ctx context.Context, current *domain.Job, input ScheduleInput) (bool, error) {
	return q.ensureScheduled(ctx, input, current.ID)
}

func (q *JobQueue) ensureScheduled(ctx context.Context, input ScheduleInput, except uuid.UUID) (bool, error) {
	pending, err := q.repo.HasPending(ctx, input.Type, except)
	if err != nil {
		return false, err
	}
	if pending {
		return false, nil
	}
	if _, err := q.Schedule(ctx, input); err != nil {
		return false, err
	}
	return true, nil
}

// ProcessDue claims a batch of due jobs and runs each one. Claiming happens in a
// transaction; execution does not, so a slow executor never holds row locks. The
// lease keeps other workers away until it expires.
func (q *JobQueue) ProcessDue(ctx context.Context) (ProcessResult, error) {
	start := time.Now()
	var result ProcessResult

	now := q.clock.Now()
	var jobs []*domain.Job
	err := q.txManager.WithTx(ctx, func(ctx context.Context) error {
		var err error
		jobs, err = q.repo.ClaimDue(ctx, now, q.config.BatchSize, q.config.WorkerID, now.Add(q.config.LeaseDuration))
		return err
	})
	if err != nil {
		q.metrics.RecordOperation(ctx, "jobs", "process_due", metrics.StatusError)
		return result, apperrors.Wrap(err, "failed to claim due jobs")
	}

	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].Priority != jobs[j].Priority {
			return jobs[i].Priority > jobs[j].Priority
		}
		return jobs[i].ScheduledFor.Before(jobs[j].ScheduledFor)
	})

	result.Claimed = len(jobs)
	q.metrics.RecordBatch(ctx, "jobs", len(jobs))

	var updateErrs []error
	for _, job := range jobs {
		status, err := q.run(ctx, job)
		if err != nil {
			updateErrs = append(updateErrs, err)
		}
		switch status {
		case domain.JobStatusDone:
			result.Succeeded++
		case domain.JobStatusRetrying:
			result.Retried++
		case domain.JobStatusFailed:
			result.Failed++
		}
	}

	err = apperrors.Join(updateErrs...)
	status := metrics.StatusOf(err)
	q.metrics.RecordOperation(ctx, "jobs", "process_due", status)
	q.metrics.RecordDuration(ctx, "jobs", "process_due", time.Since(start), status)

	if q.logger != nil && result.Claimed > 0 {
		q.logger.Info("processed due jobs",
			slog.Int("claimed", result.Claimed),
			slog.Int("succeeded", result.Succeeded),
			slog.Int("retried", result.Retried),
			slog.Int("failed", result.Failed),
		)
	}
	return result, err
}

// run executes one claimed job and stores its outcome. The returned status is the
// job's new status; the error is only set when the outcome could not be saved.
func (q *JobQueue) run(ctx context.Context, job *domain.Job) (domain.JobStatus, error) {
	q.mu.RLock()
	executor, ok := q.executors[job.Type]
	q.mu.RUnlock()

	var execErr error
	if !ok {
		execErr = fmt.Errorf("%w: %s", domain.ErrNoExecutor, job.Type)
	} else {
		execErr = q.execute(ctx, executor, job)
	}

	now := q.clock.Now()
	job.ClearLease()
	job.UpdatedAt = now

	if execErr == nil {
		job.Status = domain.JobStatusDone
		job.CompletedAt = &now
		job.LastError = nil
	} else {
		job.Attempts++
		msg := execErr.Error()
		job.LastError = &msg

		if job.Attempts >= job.MaxRetries {
			job.Status = domain.JobStatusFailed
		} else {
			job.Status = domain.JobStatusRetrying
			job.ScheduledFor = backoff.NextRetryAt(now, job.Attempts)
		}

		if q.logger != nil {
			q.logger.Error("job failed",
				slog.String("job_id", job.ID.String()),
				slog.String("job_type", string(job.Type)),
				slog.Int("attempts", job.Attempts),
				slog.Int("max_retries", job.MaxRetries),
				slog.String("status", string(job.Status)),
				slog.Any("error", execErr),
			)
		}
	}

	if err := q.repo.Update(ctx, job); err != nil {
		if q.logger != nil {
			q.logger.Error("failed to save job outcome",
				slog.String("job_id", job.ID.String()),
				slog.Any("error", err),
			)
		}
		return job.Status, apperrors.Wrapf(err, "failed to update job %s", job.ID)
	}

	if job.Status == domain.JobStatusFailed {
		q.deadLetter(ctx, job)
	}
	return job.Status, nil
}

func (q *JobQueue) execute(ctx context.Context, executor Executor, job *domain.Job) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v\n%s", r, debug.Stack())
		}
		status := metrics.StatusOf(err)
		q.metrics.RecordOperation(ctx, "jobs", string(job.Type), status)
		q.metrics.RecordDuration(ctx, "jobs", string(job.Type), time.Since(start), status)
	}()
	return executor.Execute(ctx, job)
}

func (q *JobQueue) deadLetter(ctx context.Context, job *domain.Job) {
	if q.deadLetters == nil {
		return
	}
	lastError := ""
	if job.LastError != nil {
		lastError = *job.LastError
	}
	err := q.deadLetters.Record(ctx, &deadLetterDomain.DeadLetter{
		Source:    deadLetterDomain.SourceJob,
		SourceID:  job.ID,
		Kind:      string(job.Type),
		Payload:   job.Payload,
		LastError: lastError,
		Attempts:  job.Attempts,
	})
	if err != nil && q.logger != nil {
		q.logger.Error("failed to dead-letter job",
			slog.String("job_id", job.ID.String()),
			slog.Any("error", err),
		)
	}
}

// Requeue returns a failed job to pending with a fresh attempt budget. It is the
// job queue's dead-letter requeuer.
func (q *JobQueue) Requeue(ctx context.Context, id uuid.UUID) error {
	return q.txManager.WithTx(ctx, func(ctx context.Context) error {
		job, err := q.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if job.Status != domain.JobStatusFailed {
			return domain.ErrJobNotFailed
		}

		now := q.clock.Now()
		job.Status = domain.JobStatusPending
		job.Attempts = 0
		job.ScheduledFor = now
		job.CompletedAt = nil
		job.ClearLease()
		job.UpdatedAt = now
		return q.repo.Update(ctx, job)
	})
}
