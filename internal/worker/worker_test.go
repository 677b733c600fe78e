package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blok13/clanportal/internal/models"
	"github.com/blok13/clanportal/internal/roster"
	"github.com/blok13/clanportal/internal/roster/memstore"
	"github.com/blok13/clanportal/pkg/queue"
)

type fakeSource struct {
	mu      sync.Mutex
	jobs    []*queue.Job
	retried []*queue.Job
	drained chan struct{}
}

func (f *fakeSource) Dequeue(ctx context.Context) (*queue.Job, error) {
	f.mu.Lock()
	if len(f.jobs) == 0 {
		if f.drained != nil {
			close(f.drained)
			f.drained = nil
		}
		f.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	job := f.jobs[0]
	f.jobs = f.jobs[1:]
	f.mu.Unlock()
	return job, nil
}

func (f *fakeSource) Retry(_ context.Context, job *queue.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job.Attempt++
	f.retried = append(f.retried, job)
	return nil
}

type exportFunc func(ctx context.Context, exportID, eventID uuid.UUID) error

func (f exportFunc) Run(ctx context.Context, exportID, eventID uuid.UUID) error {
	return f(ctx, exportID, eventID)
}

func mustJob(t *testing.T, jobType queue.JobType, payload any) *queue.Job {
	t.Helper()
	job, err := queue.NewJob(jobType, payload)
	require.NoError(t, err)
	return job
}

func seededStore(t *testing.T, capacity int, seated int) (*memstore.Store, *roster.Coordinator, uuid.UUID) {
	t.Helper()
	store := memstore.New()
	coord := roster.NewCoordinator(store, store, nil, nil, nil)
	ev := store.PutEvent(models.Event{Title: "Hunt", Capacity: capacity, CreatedAt: time.Now()})
	for i := 0; i < seated; i++ {
		uid := uuid.New()
		store.PutProfile(models.Profile{UID: uid, DisplayName: "p", Role: models.RoleMember})
		_, err := coord.AddParticipant(context.Background(), ev.ID, uid)
		require.NoError(t, err)
	}
	return store, coord, ev.ID
}

func TestRecountEventJobRepairsDrift(t *testing.T) {
	store, coord, eventID := seededStore(t, 10, 4)
	store.SetCount(eventID, 9)

	p := NewProcessor(&fakeSource{}, coord, store, nil, nil, nil)
	require.NoError(t, p.Process(context.Background(), mustJob(t, queue.JobTypeRecountEvent, queue.RecountPayload{EventID: eventID})))

	ev, err := store.GetByID(context.Background(), eventID)
	require.NoError(t, err)
	assert.Equal(t, 4, ev.ParticipantsCount)
}

func TestRecountOfDeletedEventIsDone(t *testing.T) {
	store, coord, _ := seededStore(t, 2, 0)
	p := NewProcessor(&fakeSource{}, coord, store, nil, nil, nil)
	err := p.Process(context.Background(), mustJob(t, queue.JobTypeRecountEvent, queue.RecountPayload{EventID: uuid.New()}))
	assert.NoError(t, err)
}

func TestRecountAllSweepsEveryEvent(t *testing.T) {
	store, coord, first := seededStore(t, 5, 2)
	second := store.PutEvent(models.Event{Title: "Duel", Capacity: 2, CreatedAt: time.Now().Add(time.Second)})
	store.SetCount(first, 0)
	store.SetCount(second.ID, 2)

	p := NewProcessor(&fakeSource{}, coord, store, nil, nil, nil)
	require.NoError(t, p.Process(context.Background(), mustJob(t, queue.JobTypeRecountAll, nil)))

	ev, _ := store.GetByID(context.Background(), first)
	assert.Equal(t, 2, ev.ParticipantsCount)
	ev, _ = store.GetByID(context.Background(), second.ID)
	assert.Equal(t, 0, ev.ParticipantsCount)
}

func TestExportJobDispatch(t *testing.T) {
	exportID, eventID := uuid.New(), uuid.New()
	var got [2]uuid.UUID
	p := NewProcessor(&fakeSource{}, nil, nil, exportFunc(func(_ context.Context, x, e uuid.UUID) error {
		got = [2]uuid.UUID{x, e}
		return nil
	}), nil, nil)
	require.NoError(t, p.Process(context.Background(), mustJob(t, queue.JobTypeRosterExport, queue.ExportPayload{ExportID: exportID, EventID: eventID})))
	assert.Equal(t, [2]uuid.UUID{exportID, eventID}, got)
}

func TestUnknownJobType(t *testing.T) {
	p := NewProcessor(&fakeSource{}, nil, nil, nil, nil, nil)
	assert.Error(t, p.Process(context.Background(), &queue.Job{ID: "x", Type: "send_fax"}))
}

func TestRunRetriesFailedJobs(t *testing.T) {
	failing := mustJob(t, queue.JobTypeRosterExport, queue.ExportPayload{ExportID: uuid.New(), EventID: uuid.New()})
	_, coord, eventID := seededStore(t, 3, 1)
	ok := mustJob(t, queue.JobTypeRecountEvent, queue.RecountPayload{EventID: eventID})

	src := &fakeSource{jobs: []*queue.Job{failing, ok}, drained: make(chan struct{})}
	drained := src.drained
	p := NewProcessor(src, coord, nil, exportFunc(func(context.Context, uuid.UUID, uuid.UUID) error {
		return errors.New("bucket missing")
	}), nil, nil)
	p.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not drain the queue")
	}
	cancel()
	<-done

	src.mu.Lock()
	defer src.mu.Unlock()
	require.Len(t, src.retried, 1)
	assert.Equal(t, failing.ID, src.retried[0].ID)
	assert.Equal(t, 1, src.retried[0].Attempt)
}

func TestScheduleEnqueuesUntilCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	calls := 0
	done := make(chan struct{})
	go func() {
		Schedule(ctx, 5*time.Millisecond, nil, func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls == 3 {
				cancel()
			}
			return nil
		})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("schedule did not stop")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, calls, 3)
}

func TestScheduleDisabled(t *testing.T) {
	Schedule(context.Background(), 0, nil, func(context.Context) error {
		t.Fatal("enqueue called")
		return nil
	})
}
