package system

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/propflow/internal/event/domain"
	jobDomain "github.com/allisson/propflow/internal/job/domain"
	notificationDomain "github.com/allisson/propflow/internal/notification/domain"
	webhookDomain "github.com/allisson/propflow/internal/webhook/domain"
	webhookUsecase "github.com/allisson/propflow/internal/webhook/usecase"
)

type inlineTxManager struct{}

func (inlineTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memEventRepository struct {
	mu     sync.Mutex
	events map[uuid.UUID]*domain.Event
}

func newMemEventRepository(events ...*domain.Event) *memEventRepository {
	repo := &memEventRepository{events: make(map[uuid.UUID]*domain.Event)}
	for _, e := range events {
		repo.events[e.ID] = e
	}
	return repo
}

func (r *memEventRepository) Create(_ context.Context, event *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *event
	r.events[event.ID] = &stored
	return nil
}

func (r *memEventRepository) ListUnprocessed(_ context.Context, before time.Time, limit int) ([]*domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Event
	for _, e := range r.events {
		if !e.Processed && e.CreatedAt.Before(before) {
			copied := *e
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memEventRepository) MarkProcessed(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.events[id]; ok {
		e.Processed = true
		e.ProcessedAt = &at
	}
	return nil
}

func (r *memEventRepository) DeleteProcessedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (r *memEventRepository) processed(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	return ok && e.Processed
}

// memJobRepository keeps jobs in memory with the same claim rules as the SQL
// repositories.
type memJobRepository struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]jobDomain.Job
}

func newMemJobRepository() *memJobRepository {
	return &memJobRepository{jobs: make(map[uuid.UUID]jobDomain.Job)}
}

func (r *memJobRepository) Create(_ context.Context, job *jobDomain.Job) error {
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
) ([]*jobDomain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	due := make([]jobDomain.Job, 0)
	for _, j := range r.jobs {
		runnable := j.Status == jobDomain.JobStatusPending || j.Status == jobDomain.JobStatusRetrying
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

	claimed := make([]*jobDomain.Job, 0, len(due))
	for _, j := range due {
		j.Status = jobDomain.JobStatusProcessing
		j.LockedBy = &owner
		j.LockedUntil = &leaseUntil
		r.jobs[j.ID] = j
		claimed = append(claimed, &j)
	}
	return claimed, nil
}

func (r *memJobRepository) Update(_ context.Context, job *jobDomain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; !ok {
		return jobDomain.ErrJobNotFound
	}
	r.jobs[job.ID] = *job
	return nil
}

func (r *memJobRepository) Get(_ context.Context, id uuid.UUID) (*jobDomain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, jobDomain.ErrJobNotFound
	}
	return &j, nil
}

func (r *memJobRepository) HasPending(_ context.Context, jobType jobDomain.JobType, except uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.Type == jobType && j.ID != except && !j.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (r *memJobRepository) DeleteCompletedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (r *memJobRepository) byType(jobType jobDomain.JobType) []jobDomain.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []jobDomain.Job
	for _, j := range r.jobs {
		if j.Type == jobType {
			out = append(out, j)
		}
	}
	return out
}

type recordingNotifier struct {
	mu     sync.Mutex
	inputs []notificationDomain.CreateInput
}

func (n *recordingNotifier) CreateNotification(
	_ context.Context,
	input notificationDomain.CreateInput,
) (*notificationDomain.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.inputs = append(n.inputs, input)
	return &notificationDomain.Notification{
		ID:      uuid.Must(uuid.NewV7()),
		UserID:  input.UserID,
		Type:    input.Type,
		Title:   input.Title,
		Message: input.Message,
	}, nil
}

func (n *recordingNotifier) titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.inputs))
	for _, in := range n.inputs {
		out = append(out, in.UserID+":"+in.Title)
	}
	return out
}

type recordingBroadcaster struct {
	mu       sync.Mutex
	channels []string
}

func (b *recordingBroadcaster) BroadcastNewMessage(_ context.Context, channel string, _ any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels = append(b.channels, channel)
	return nil
}

func (b *recordingBroadcaster) all() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.channels...)
}

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Trigger(
	ctx context.Context,
	tenantID, eventType string,
	data any,
) ([]*webhookDomain.Delivery, error) {
	args := m.Called(ctx, tenantID, eventType, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*webhookDomain.Delivery), args.Error(1)
}

func (m *MockDispatcher) ProcessDeliveries(ctx context.Context) (webhookUsecase.ProcessResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(webhookUsecase.ProcessResult), args.Error(1)
}

func (m *MockDispatcher) RequeueDelivery(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDispatcher) Wait(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
