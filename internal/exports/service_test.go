package exports

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/blok13/clanportal/internal/models"
	"github.com/blok13/clanportal/pkg/queue"
)

type fakeStore struct {
	exports map[uuid.UUID]*models.RosterExport
}

func newFakeStore() *fakeStore {
	return &fakeStore{exports: map[uuid.UUID]*models.RosterExport{}}
}

func (f *fakeStore) CreateExport(_ context.Context, eventID, requestedBy uuid.UUID) (*models.RosterExport, error) {
	e := &models.RosterExport{ID: uuid.New(), EventID: eventID, RequestedBy: requestedBy, Status: models.ExportPending, CreatedAt: time.Now()}
	f.exports[e.ID] = e
	cp := *e
	return &cp, nil
}

func (f *fakeStore) GetExport(_ context.Context, id uuid.UUID) (*models.RosterExport, error) {
	e, ok := f.exports[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeStore) CompleteExport(_ context.Context, id uuid.UUID, key string) error {
	e := f.exports[id]
	e.Status, e.ObjectKey = models.ExportCompleted, key
	return nil
}

func (f *fakeStore) FailExport(_ context.Context, id uuid.UUID, reason string) error {
	e := f.exports[id]
	e.Status, e.Error = models.ExportFailed, reason
	return nil
}

type fakeFeeds map[uuid.UUID]*models.EventFeed

func (f fakeFeeds) Load(_ context.Context, eventID uuid.UUID) (*models.EventFeed, error) {
	feed, ok := f[eventID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return feed, nil
}

type fakeObjects struct {
	uploads map[string][]byte
	fail    error
}

func (f *fakeObjects) Upload(_ context.Context, key, _ string, body io.Reader, _ int64) error {
	if f.fail != nil {
		return f.fail
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.uploads[key] = b
	return nil
}

func (f *fakeObjects) PresignGet(_ context.Context, key string) (string, error) {
	return "https://signed.example/" + key, nil
}

type fakeJobs struct {
	enqueued []uuid.UUID
}

func (f *fakeJobs) EnqueueExport(_ context.Context, exportID, _ uuid.UUID) (*queue.Job, error) {
	f.enqueued = append(f.enqueued, exportID)
	return &queue.Job{ID: exportID.String(), Type: queue.JobTypeRosterExport}, nil
}

func sampleFeed(eventID uuid.UUID) *models.EventFeed {
	at := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	snap := func(name string, hp int) models.Snapshot {
		return models.Snapshot{Version: models.SnapshotVersion, DisplayName: name, Stats: models.StatBlock{HP: hp}}
	}
	return &models.EventFeed{
		Event: models.Event{ID: eventID, Title: "Siege", Capacity: 2},
		Participants: []models.Participant{
			{EventID: eventID, UserID: uuid.New(), Profile: snap("Ayla", 120), JoinedAt: at},
			{EventID: eventID, UserID: uuid.New(), Profile: snap("Bram", 90), JoinedAt: at.Add(time.Minute)},
		},
		Waitlist: []models.WaitlistEntry{
			{EventID: eventID, UserID: uuid.New(), Profile: snap("Cato", 70), Status: models.WaitlistStatusWaiting, CreatedAt: at},
		},
		Applications: []models.Application{
			{EventID: eventID, UserID: uuid.New(), Profile: snap("Dara", 60), Status: models.ApplicationPending, CreatedAt: at},
		},
	}
}

func TestBuildWorkbook(t *testing.T) {
	data, err := BuildWorkbook(sampleFeed(uuid.New()))
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetParticipants, SheetWaitlist, SheetApplications}, f.GetSheetList())

	rows, err := f.GetRows(SheetParticipants)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"#", "Display name", "User ID"}, rows[0][:3])
	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "Ayla", rows[1][1])
	assert.Equal(t, "120", rows[1][3])
	assert.Equal(t, "2", rows[2][0])
	assert.Equal(t, "2026-03-01 18:01:00", rows[2][len(rows[2])-1])

	rows, err = f.GetRows(SheetApplications)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Status", rows[0][len(rows[0])-1])
	assert.Equal(t, string(models.ApplicationPending), rows[1][len(rows[1])-1])
}

func TestBuildWorkbookEmptyFeed(t *testing.T) {
	data, err := BuildWorkbook(&models.EventFeed{})
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetWaitlist)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestExportLifecycle(t *testing.T) {
	ctx := context.Background()
	eventID := uuid.New()
	store := newFakeStore()
	objects := &fakeObjects{uploads: map[string][]byte{}}
	jobs := &fakeJobs{}
	svc := NewService(store, fakeFeeds{eventID: sampleFeed(eventID)}, objects, jobs, nil)

	exp, err := svc.Request(ctx, eventID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{exp.ID}, jobs.enqueued)

	st, err := svc.Status(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportPending, st.Status)
	assert.Empty(t, st.DownloadURL)

	require.NoError(t, svc.Run(ctx, exp.ID, eventID))
	key := "exports/" + eventID.String() + "/" + exp.ID.String() + ".xlsx"
	assert.Contains(t, objects.uploads, key)

	st, err = svc.Status(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportCompleted, st.Status)
	assert.Equal(t, "https://signed.example/"+key, st.DownloadURL)

	// A redelivered job does not upload again.
	delete(objects.uploads, key)
	require.NoError(t, svc.Run(ctx, exp.ID, eventID))
	assert.Empty(t, objects.uploads)
}

func TestRunMarksMissingEventFailed(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := NewService(store, fakeFeeds{}, &fakeObjects{uploads: map[string][]byte{}}, &fakeJobs{}, nil)
	eventID := uuid.New()
	exp, err := svc.Request(ctx, eventID, uuid.New())
	require.NoError(t, err)

	require.NoError(t, svc.Run(ctx, exp.ID, eventID))
	assert.Equal(t, models.ExportFailed, store.exports[exp.ID].Status)
	assert.Equal(t, "event not found", store.exports[exp.ID].Error)
}

func TestRunReturnsUploadErrorsForRetry(t *testing.T) {
	ctx := context.Background()
	eventID := uuid.New()
	store := newFakeStore()
	boom := errors.New("s3 unavailable")
	svc := NewService(store, fakeFeeds{eventID: sampleFeed(eventID)}, &fakeObjects{fail: boom}, &fakeJobs{}, nil)
	exp, err := svc.Request(ctx, eventID, uuid.New())
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Run(ctx, exp.ID, eventID), boom)
	assert.Equal(t, models.ExportPending, store.exports[exp.ID].Status)
}

func TestRunSkipsUnknownExport(t *testing.T) {
	svc := NewService(newFakeStore(), fakeFeeds{}, nil, nil, nil)
	assert.NoError(t, svc.Run(context.Background(), uuid.New(), uuid.New()))
}

func TestRunWithoutObjectStorageFailsExport(t *testing.T) {
	ctx := context.Background()
	eventID := uuid.New()
	store := newFakeStore()
	exp, err := store.CreateExport(ctx, eventID, uuid.New())
	require.NoError(t, err)

	svc := NewService(store, fakeFeeds{eventID: sampleFeed(eventID)}, nil, nil, nil)
	require.NoError(t, svc.Run(ctx, exp.ID, eventID), "not retried")
	assert.Equal(t, models.ExportFailed, store.exports[exp.ID].Status)
	assert.Equal(t, "object storage not configured", store.exports[exp.ID].Error)
}
