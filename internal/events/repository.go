package events

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blok13/clanportal/internal/models"
	"github.com/blok13/clanportal/pkg/database"
)

const eventColumns = `id, title, description, starts_at, ends_at, link, capacity, auto_approve, is_closed, archived,
	requirements, participants_count, created_by, created_at, updated_at`

// Repository handles event persistence. participants_count is never written here except
// through the capacity guard in Update; seat changes go through the roster coordinator.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an event repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanEvent(row pgx.Row) (*models.Event, error) {
	var e models.Event
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.StartsAt, &e.EndsAt, &e.Link, &e.Capacity, &e.AutoApprove,
		&e.IsClosed, &e.Archived, &e.Requirements, &e.ParticipantsCount, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create validates and inserts a new event with participants_count = 0.
func (r *Repository) Create(ctx context.Context, e *models.Event) error {
	if err := validateEvent(e); err != nil {
		return err
	}
	const q = `INSERT INTO events (title, description, starts_at, ends_at, link, capacity, auto_approve, is_closed, archived, requirements, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, participants_count, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, e.Title, e.Description, e.StartsAt, e.EndsAt, e.Link, e.Capacity, e.AutoApprove,
		e.IsClosed, e.Archived, e.Requirements, e.CreatedBy).
		Scan(&e.ID, &e.ParticipantsCount, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetByID returns an event by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	e, err := scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, fmt.Errorf("event %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// List returns the most recently created events, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+eventColumns+` FROM events ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var list []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *e)
	}
	return list, rows.Err()
}

// ListIDs returns every event ID (used by the recount sweep).
func (r *Repository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM events ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list event ids: %w", err)
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InvolvedEventIDs returns the events the user has an application, seat or waitlist entry for.
func (r *Repository) InvolvedEventIDs(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]bool, error) {
	const q = `SELECT event_id FROM applications WHERE user_id = $1
		UNION SELECT event_id FROM participants WHERE user_id = $1
		UNION SELECT event_id FROM waitlist WHERE user_id = $1`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("involved events: %w", err)
	}
	defer rows.Close()
	out := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// Update applies a partial patch. Touched constrained fields are re-validated and capacity may not
// drop below the current participants_count. The event row is locked so the check cannot race a seating.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, patch models.EventPatch) (*models.Event, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cur, err := scanEvent(tx.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, fmt.Errorf("event %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("lock event: %w", err)
	}
	if patch.Empty() {
		return cur, nil
	}

	merged := patch.Apply(*cur)
	if err := validatePatch(patch, &merged); err != nil {
		return nil, err
	}
	if merged.Capacity < cur.ParticipantsCount {
		return nil, models.NewValidationError("capacity",
			fmt.Sprintf("cannot be below the %d seats already taken", cur.ParticipantsCount))
	}

	const q = `UPDATE events SET title = $1, description = $2, starts_at = $3, ends_at = $4, link = $5, capacity = $6,
		auto_approve = $7, is_closed = $8, archived = $9, requirements = $10, updated_at = NOW()
		WHERE id = $11
		RETURNING updated_at`
	err = tx.QueryRow(ctx, q, merged.Title, merged.Description, merged.StartsAt, merged.EndsAt, merged.Link,
		merged.Capacity, merged.AutoApprove, merged.IsClosed, merged.Archived, merged.Requirements, id).
		Scan(&merged.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &merged, nil
}

// SetArchived toggles the archived flag.
func (r *Repository) SetArchived(ctx context.Context, id uuid.UUID, archived bool) error {
	return r.setFlag(ctx, `UPDATE events SET archived = $1, updated_at = NOW() WHERE id = $2`, id, archived)
}

// SetClosed toggles whether new signups are accepted.
func (r *Repository) SetClosed(ctx context.Context, id uuid.UUID, closed bool) error {
	return r.setFlag(ctx, `UPDATE events SET is_closed = $1, updated_at = NOW() WHERE id = $2`, id, closed)
}

func (r *Repository) setFlag(ctx context.Context, q string, id uuid.UUID, v bool) error {
	tag, err := r.pool.Exec(ctx, q, v, id)
	if err != nil {
		return fmt.Errorf("update event flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// Delete removes an event. Applications, participants, waitlist entries, "my events" rows and
// exports cascade with it.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event %s: %w", id, models.ErrNotFound)
	}
	return nil
}
