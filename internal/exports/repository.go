package exports

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blok13/clanportal/internal/models"
	"github.com/blok13/clanportal/pkg/database"
)

const exportColumns = `id, event_id, requested_by, status, object_key, error, created_at, completed_at`

// Repository handles roster_exports persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an export repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanExport(row pgx.Row) (*models.RosterExport, error) {
	var e models.RosterExport
	if err := row.Scan(&e.ID, &e.EventID, &e.RequestedBy, &e.Status, &e.ObjectKey, &e.Error, &e.CreatedAt, &e.CompletedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateExport inserts a pending export for an event.
func (r *Repository) CreateExport(ctx context.Context, eventID, requestedBy uuid.UUID) (*models.RosterExport, error) {
	e, err := scanExport(r.pool.QueryRow(ctx,
		`INSERT INTO roster_exports (event_id, requested_by) VALUES ($1, $2) RETURNING `+exportColumns,
		eventID, requestedBy))
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, fmt.Errorf("event %s: %w", eventID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("insert export: %w", err)
	}
	return e, nil
}

// GetExport returns an export by ID.
func (r *Repository) GetExport(ctx context.Context, id uuid.UUID) (*models.RosterExport, error) {
	e, err := scanExport(r.pool.QueryRow(ctx, `SELECT `+exportColumns+` FROM roster_exports WHERE id = $1`, id))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, fmt.Errorf("export %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("get export: %w", err)
	}
	return e, nil
}

// CompleteExport records the uploaded object key.
func (r *Repository) CompleteExport(ctx context.Context, id uuid.UUID, objectKey string) error {
	const q = `UPDATE roster_exports SET status = 'completed', object_key = $2, error = '', completed_at = NOW() WHERE id = $1`
	return r.exec(ctx, q, id, objectKey)
}

// FailExport records why an export could not be produced.
func (r *Repository) FailExport(ctx context.Context, id uuid.UUID, reason string) error {
	const q = `UPDATE roster_exports SET status = 'failed', error = $2, completed_at = NOW() WHERE id = $1`
	return r.exec(ctx, q, id, reason)
}

func (r *Repository) exec(ctx context.Context, q string, id uuid.UUID, arg string) error {
	tag, err := r.pool.Exec(ctx, q, id, arg)
	if err != nil {
		return fmt.Errorf("update export: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("export %s: %w", id, models.ErrNotFound)
	}
	return nil
}
