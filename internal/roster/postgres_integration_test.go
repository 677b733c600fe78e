package roster_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/blok13/clanportal/internal/events"
	"github.com/blok13/clanportal/internal/exports"
	"github.com/blok13/clanportal/internal/middleware"
	"github.com/blok13/clanportal/internal/models"
	"github.com/blok13/clanportal/internal/profiles"
	"github.com/blok13/clanportal/internal/roster"
	"github.com/blok13/clanportal/pkg/database"
)

// Run with INTEGRATION=1; needs a Docker daemon.
func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if os.Getenv("INTEGRATION") == "" {
		t.Skip("set INTEGRATION=1 to run Postgres integration tests")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("clanportal"),
		tcpostgres.WithUsername("clan"),
		tcpostgres.WithPassword("clan"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := database.NewPostgresPool(ctx, dsn, nil)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, database.Migrate(ctx, pool, nil))
	// Second run is a no-op.
	require.NoError(t, database.Migrate(ctx, pool, nil))
	return pool
}

func seedMember(t *testing.T, repo *profiles.Repository, hp int) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	uid := uuid.New()
	_, err := repo.Ensure(ctx, uid, gofakeit.Username(), models.RoleMember)
	require.NoError(t, err)
	_, err = repo.UpdateStats(ctx, uid, map[string]any{
		models.StatHP: hp, models.StatEnergy: 10, models.StatRespect: 10, models.StatEvasion: 10,
		models.StatArmor: 10, models.StatResistance: 10, models.StatBloodRes: 10, models.StatPoisonRes: 10,
	})
	require.NoError(t, err)
	return uid
}

func TestPostgresStoreSeatRaces(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()

	eventRepo := events.NewRepository(pool)
	profileRepo := profiles.NewRepository(pool)
	store := roster.NewPostgresStore(pool)
	coord := roster.NewCoordinator(store, profileRepo, nil, nil, nil)

	ev := &models.Event{
		Title:        gofakeit.Sentence(3),
		Capacity:     3,
		AutoApprove:  true,
		Requirements: models.StatBlock{HP: 50},
		CreatedBy:    uuid.New(),
	}
	require.NoError(t, eventRepo.Create(ctx, ev))

	weak := seedMember(t, profileRepo, 10)
	_, err := coord.JoinEventAuto(ctx, ev.ID, weak)
	var reqErr *models.RequirementsError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, []string{models.StatHP}, reqErr.Missing)

	members := make([]uuid.UUID, 10)
	for i := range members {
		members[i] = seedMember(t, profileRepo, 100)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		seated   int
		rejected int
	)
	for _, uid := range members {
		wg.Add(1)
		go func(uid uuid.UUID) {
			defer wg.Done()
			_, err := coord.JoinEventAuto(ctx, ev.ID, uid)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				seated++
			case errors.Is(err, models.ErrCapacityExceeded):
				rejected++
			default:
				t.Errorf("join %s: %v", uid, err)
			}
		}(uid)
	}
	wg.Wait()
	assert.Equal(t, 3, seated)
	assert.Equal(t, 7, rejected)

	got, err := eventRepo.GetByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ParticipantsCount)

	list, err := store.ListParticipants(ctx, ev.ID, 100)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for _, p := range list {
		assert.Equal(t, 100, p.Profile.Stats.HP)
	}

	// Concurrent leave and rejoin of the same seat never overbooks.
	leaver := list[0].UserID
	seatedIDs := map[uuid.UUID]bool{}
	for _, p := range list {
		seatedIDs[p.UserID] = true
	}
	var waiting uuid.UUID
	for _, uid := range members {
		if !seatedIDs[uid] {
			waiting = uid
			break
		}
	}
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := coord.RemoveParticipant(ctx, ev.ID, leaver, roster.RemoveOptions{CancelApplication: true})
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, _ = coord.JoinEventAuto(ctx, ev.ID, waiting)
	}()
	wg.Wait()

	got, err = eventRepo.GetByID(ctx, ev.ID)
	require.NoError(t, err)
	list, err = store.ListParticipants(ctx, ev.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, len(list), got.ParticipantsCount)
	assert.LessOrEqual(t, got.ParticipantsCount, got.Capacity)

	// Drift repair.
	_, err = pool.Exec(ctx, `UPDATE events SET participants_count = 0 WHERE id = $1`, ev.ID)
	require.NoError(t, err)
	rc, err := coord.Recount(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, roster.RecountResult{Before: 0, After: len(list)}, rc)

	ids, err := eventRepo.ListIDs(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, ev.ID)
}

func TestPostgresAdminSeatAndCascade(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()

	eventRepo := events.NewRepository(pool)
	profileRepo := profiles.NewRepository(pool)
	store := roster.NewPostgresStore(pool)
	coord := roster.NewCoordinator(store, profileRepo, nil, nil, nil)
	exportRepo := exports.NewRepository(pool)

	ev := &models.Event{Title: gofakeit.Sentence(2), Capacity: 1, IsClosed: true, CreatedBy: uuid.New()}
	require.NoError(t, eventRepo.Create(ctx, ev))

	first, second := seedMember(t, profileRepo, 1), seedMember(t, profileRepo, 1)
	res, err := coord.AddParticipant(ctx, ev.ID, first)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	res, err = coord.AddParticipant(ctx, ev.ID, first)
	require.NoError(t, err)
	assert.False(t, res.Changed, "re-adding is idempotent")

	_, err = coord.AddParticipant(ctx, ev.ID, second)
	assert.ErrorIs(t, err, models.ErrCapacityExceeded)

	_, err = coord.AddParticipant(ctx, uuid.New(), first)
	assert.True(t, models.IsNotFound(err))

	mine, err := profileRepo.ListMyEvents(ctx, first)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	exp, err := exportRepo.CreateExport(ctx, ev.ID, ev.CreatedBy)
	require.NoError(t, err)
	assert.Equal(t, models.ExportPending, exp.Status)
	require.NoError(t, exportRepo.CompleteExport(ctx, exp.ID, "exports/x.xlsx"))
	exp, err = exportRepo.GetExport(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportCompleted, exp.Status)
	assert.NotNil(t, exp.CompletedAt)

	_, err = exportRepo.CreateExport(ctx, uuid.New(), ev.CreatedBy)
	assert.True(t, models.IsNotFound(err))

	require.NoError(t, eventRepo.Delete(ctx, ev.ID))
	list, err := store.ListParticipants(ctx, ev.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
	_, err = exportRepo.GetExport(ctx, exp.ID)
	assert.True(t, models.IsNotFound(err))
	mine, err = profileRepo.ListMyEvents(ctx, first)
	require.NoError(t, err)
	assert.Empty(t, mine)
}

type deleteRecorder struct {
	refreshed, deleted []uuid.UUID
}

func (d *deleteRecorder) Refresh(_ context.Context, id uuid.UUID) { d.refreshed = append(d.refreshed, id) }
func (d *deleteRecorder) Deleted(id uuid.UUID)                    { d.deleted = append(d.deleted, id) }

func TestEventHandlersAgainstPostgres(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	gin.SetMode(gin.TestMode)

	eventRepo := events.NewRepository(pool)
	profileRepo := profiles.NewRepository(pool)
	coord := roster.NewCoordinator(roster.NewPostgresStore(pool), profileRepo, nil, nil, nil)
	notes := &deleteRecorder{}
	h := events.NewHandler(eventRepo, notes, events.Options{ListLimit: 50}, nil)

	adminID := uuid.New()
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, adminID)
		c.Set(middleware.ContextUserRole, string(models.RoleAdmin))
		c.Next()
	})
	r.GET("/events", h.List)
	r.POST("/events", h.Create)
	r.PATCH("/events/:id", h.Update)
	r.POST("/events/:id/close", h.Close)
	r.DELETE("/events/:id", h.Delete)

	do := func(method, path, body string) (*httptest.ResponseRecorder, envelope) {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		var env envelope
		if w.Body.Len() > 0 {
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
		}
		return w, env
	}

	w, env := do(http.MethodPost, "/events", `{"title":"Raid night","capacity":2,"auto_approve":true,"requirements":{"hp":5}}`)
	require.Equal(t, http.StatusCreated, w.Code, env.Error)
	var created events.EventView
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, events.StatusNoDate, created.Status)
	assert.Equal(t, 2, created.SeatsLeft)
	assert.Equal(t, adminID, created.CreatedBy)

	w, _ = do(http.MethodPost, "/events", `{"title":"Too big","capacity":501}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	for i := 0; i < 2; i++ {
		_, err := coord.JoinEventAuto(ctx, created.ID, seedMember(t, profileRepo, 10))
		require.NoError(t, err)
	}

	path := "/events/" + created.ID.String()
	w, _ = do(http.MethodPatch, path, `{"capacity":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "capacity below seats taken")

	w, env = do(http.MethodPatch, path, `{"capacity":4,"title":"Raid night II"}`)
	require.Equal(t, http.StatusOK, w.Code, env.Error)
	var updated events.EventView
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, 2, updated.SeatsLeft)

	w, _ = do(http.MethodPost, path+"/close", "")
	require.Equal(t, http.StatusOK, w.Code)
	got, err := eventRepo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, got.IsClosed)
	assert.Len(t, notes.refreshed, 2)

	w, env = do(http.MethodGet, "/events?free=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var listed []events.EventView
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "Raid night II", listed[0].Title)

	w, _ = do(http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []uuid.UUID{created.ID}, notes.deleted)
	w, _ = do(http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
