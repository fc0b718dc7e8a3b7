package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	deadLetterDomain "github.com/allisson/propflow/internal/deadletter/domain"
	"github.com/allisson/propflow/internal/job/domain"
)

type inlineTxManager struct{}

func (inlineTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// memJobRepository mirrors the SQL claim predicate and ordering in memory.
type memJobRepository struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]domain.Job
}

func newMemJobRepository() *memJobRepository {
	return &memJobRepository{jobs: make(map[uuid.UUID]domain.Job)}
}

func (r *memJobRepository) Create(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	return nil
}

func (r *memJobRepository) ClaimDue(
	_ context.Context,
	now time.Time,
	limit int,
	owner string,
	leaseUntil time.Time,
) ([]*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	due := make([]domain.Job, 0)
	for _, j := range r.jobs {
		runnable := j.Status == domain.JobStatusPending || j.Status == domain.JobStatusRetrying ||
			(j.Status == domain.JobStatusProcessing && j.LockedUntil != nil && j.LockedUntil.Before(now))
		if runnable && !j.ScheduledFor.After(now) && j.Attempts < j.MaxRetries {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(a, b int) bool {
		if due[a].Priority != due[b].Priority {
			return due[a].Priority > due[b].Priority
		}
		return due[a].ScheduledFor.Before(due[b].ScheduledFor)
	})
	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*domain.Job, 0, len(due))
	for _, j := range due {
		j.Status = domain.JobStatusProcessing
		j.LockedBy = &owner
		j.LockedUntil = &leaseUntil
		r.jobs[j.ID] = j
		claimed = append(claimed, &j)
	}
	return claimed, nil
}

func (r *memJobRepository) Update(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; !ok {
		return domain.ErrJobNotFound
	}
	r.jobs[job.ID] = *job
	return nil
}

func (r *memJobRepository) Get(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return &j, nil
}

func (r *memJobRepository) HasPending(_ context.Context, jobType domain.JobType, except uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.Type == jobType && j.ID != except && !j.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (r *memJobRepository) DeleteCompletedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, j := range r.jobs {
		if j.Status == domain.JobStatusDone && j.CompletedAt != nil && j.CompletedAt.Before(cutoff) {
			delete(r.jobs, id)
			n++
		}
	}
	return n, nil
}

func (r *memJobRepository) get(id uuid.UUID) domain.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id]
}

func (r *memJobRepository) byType(jobType domain.JobType) []domain.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]domain.Job, 0)
	for _, j := range r.jobs {
		if j.Type == jobType {
			result = append(result, j)
		}
	}
	return result
}

type recordingDeadLetters struct {
	mu      sync.Mutex
	letters []*deadLetterDomain.DeadLetter
}

func (r *recordingDeadLetters) Record(_ context.Context, dl *deadLetterDomain.DeadLetter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.letters = append(r.letters, dl)
	return nil
}
