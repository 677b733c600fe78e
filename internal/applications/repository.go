package applications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blok13/clanportal/internal/models"
	"github.com/blok13/clanportal/internal/roster"
	"github.com/blok13/clanportal/pkg/database"
)

const applicationColumns = `event_id, user_id, profile, status, created_at, updated_at`

// Repository handles application persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an application repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

// InsertApplication implements Store.
func (r *Repository) InsertApplication(ctx context.Context, a *models.Application) error {
	profile, err := a.Profile.Encode()
	if err != nil {
		return err
	}
	const q = `INSERT INTO applications (` + applicationColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = r.pool.Exec(ctx, q, a.EventID, a.UserID, profile, string(a.Status), a.CreatedAt, a.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case database.IsUniqueViolation(err):
		return models.ErrDuplicateApplication
	case database.IsForeignKeyViolation(err):
		return fmt.Errorf("event %s: %w", a.EventID, models.ErrNotFound)
	default:
		return fmt.Errorf("insert application: %w", err)
	}
}

// GetApplication implements Store.
func (r *Repository) GetApplication(ctx context.Context, eventID, userID uuid.UUID) (*models.Application, error) {
	const q = `SELECT ` + applicationColumns + ` FROM applications WHERE event_id = $1 AND user_id = $2`
	a, err := roster.ScanApplication(r.pool.QueryRow(ctx, q, eventID, userID))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, fmt.Errorf("application: %w", models.ErrNotFound)
		}
		return nil, fmt.Errorf("get application: %w", err)
	}
	return a, nil
}

// ListApplicationsByEvent implements Store.
func (r *Repository) ListApplicationsByEvent(ctx context.Context, eventID uuid.UUID, limit int) ([]models.Application, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	const q = `SELECT ` + applicationColumns + ` FROM applications WHERE event_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, q, eventID, limit)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return collect(rows)
}

// ListApplicationsByUser implements Store.
func (r *Repository) ListApplicationsByUser(ctx context.Context, userID uuid.UUID) ([]models.Application, error) {
	const q = `SELECT ` + applicationColumns + ` FROM applications WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, q, userID, DefaultListLimit)
	if err != nil {
		return nil, fmt.Errorf("list user applications: %w", err)
	}
	return collect(rows)
}

// UpdateApplicationStatus implements Store.
func (r *Repository) UpdateApplicationStatus(ctx context.Context, eventID, userID uuid.UUID, to models.ApplicationStatus,
	allow func(from models.ApplicationStatus) error) (*models.Application, error) {
	var out *models.Application
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var from string
		err := tx.QueryRow(ctx, `SELECT status FROM applications WHERE event_id = $1 AND user_id = $2 FOR UPDATE`,
			eventID, userID).Scan(&from)
		if err != nil {
			if database.IsNoRows(err) {
				return fmt.Errorf("application: %w", models.ErrNotFound)
			}
			return fmt.Errorf("lock application: %w", err)
		}
		if allow != nil {
			if err := allow(models.ApplicationStatus(from)); err != nil {
				return err
			}
		}
		const q = `UPDATE applications SET status = $1, updated_at = NOW() WHERE event_id = $2 AND user_id = $3
			RETURNING ` + applicationColumns
		a, err := roster.ScanApplication(tx.QueryRow(ctx, q, string(to), eventID, userID))
		if err != nil {
			return fmt.Errorf("update application status: %w", err)
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteApplication implements Store.
func (r *Repository) DeleteApplication(ctx context.Context, eventID, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM applications WHERE event_id = $1 AND user_id = $2`, eventID, userID)
	if err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("application: %w", models.ErrNotFound)
	}
	return nil
}

func collect(rows pgx.Rows) ([]models.Application, error) {
	defer rows.Close()
	var list []models.Application
	for rows.Next() {
		a, err := roster.ScanApplication(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}
