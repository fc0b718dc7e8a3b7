// Package domain defines the persisted background job and its payloads.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/propflow/internal/errors"
)

// JobType selects the executor that runs a job.
type JobType string

const (
	JobTypeSendReminder     JobType = "send_reminder"
	JobTypeSendNotification JobType = "send_notification"
	JobTypeReleaseBalance   JobType = "release_balance"
	JobTypeProcessLateFee   JobType = "process_late_fee"
	JobTypeCleanup          JobType = "cleanup"
	JobTypeProcessWebhook   JobType = "process_webhook"
)

// JobTypes lists every job type.
func JobTypes() []JobType {
	return []JobType{
		JobTypeSendReminder,
		JobTypeSendNotification,
		JobTypeReleaseBalance,
		JobTypeProcessLateFee,
		JobTypeCleanup,
		JobTypeProcessWebhook,
	}
}

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	for _, known := range JobTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusRetrying   JobStatus = "retrying"
	JobStatusDone       JobStatus = "done"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further execution happens in this status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

const (
	PriorityLow    = 1
	PriorityNormal = 5
	PriorityHigh   = 10

	// DefaultMaxRetries applies when a caller does not set MaxRetries.
	DefaultMaxRetries = 3
)

// Job is one deferred unit of background work.
//
// A job runs only when ScheduledFor <= now, its status is not terminal and
// Attempts < MaxRetries. LockedBy and LockedUntil hold the lease of the worker
// currently executing it.
type Job struct {
	ID           uuid.UUID
	Type         JobType
	Payload      json.RawMessage
	ScheduledFor time.Time
	Priority     int
	Attempts     int
	MaxRetries   int
	Status       JobStatus
	LastError    *string
	LockedBy     *string
	LockedUntil  *time.Time
	CompletedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return apperrors.Wrapf(ErrInvalidJobPayload, "%s %s: %v", j.Type, j.ID, err)
	}
	return nil
}

// ClearLease releases the worker lease.
func (j *Job) ClearLease() {
	j.LockedBy = nil
	j.LockedUntil = nil
}

var (
	ErrJobNotFound       = apperrors.Wrap(apperrors.ErrNotFound, "job not found")
	ErrInvalidJobType    = apperrors.Wrap(apperrors.ErrInvalidInput, "invalid job type")
	ErrInvalidJobPayload = apperrors.Wrap(apperrors.ErrInvalidInput, "invalid job payload")
	ErrJobNotFailed      = apperrors.Wrap(apperrors.ErrConflict, "only failed jobs can be requeued")
	ErrNoExecutor        = apperrors.New("no executor registered for job type")
)
