package profiles

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blok13/clanportal/internal/models"
	"github.com/blok13/clanportal/pkg/database"
)

const profileColumns = `id, display_name, photo_url, role, stats, created_at, updated_at`

// Repository handles profile persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a profile repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanProfile(row pgx.Row) (*models.Profile, error) {
	var (
		p     models.Profile
		role  string
		stats []byte
	)
	if err := row.Scan(&p.UID, &p.DisplayName, &p.PhotoURL, &role, &stats, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Role = models.Role(role)
	s, err := models.DecodeStats(stats)
	if err != nil {
		return nil, err
	}
	p.Stats = s
	return &p, nil
}

// GetProfile returns a profile by user ID, or models.ErrNotFound.
func (r *Repository) GetProfile(ctx context.Context, uid uuid.UUID) (*models.Profile, error) {
	p, err := scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM users WHERE id = $1`, uid))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, fmt.Errorf("profile %s: %w", uid, models.ErrNotFound)
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// Ensure creates the profile on first contact and returns the stored row.
// An existing profile keeps its display name, role and stats.
func (r *Repository) Ensure(ctx context.Context, uid uuid.UUID, displayName string, role models.Role) (*models.Profile, error) {
	if !role.Valid() {
		role = models.RoleUser
	}
	const q = `INSERT INTO users (id, display_name, role) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
		RETURNING ` + profileColumns
	p, err := scanProfile(r.pool.QueryRow(ctx, q, uid, strings.TrimSpace(displayName), string(role)))
	if err != nil {
		return nil, fmt.Errorf("ensure profile: %w", err)
	}
	return p, nil
}

// UpdateDisplay sets display name and avatar.
func (r *Repository) UpdateDisplay(ctx context.Context, uid uuid.UUID, displayName, photoURL string) (*models.Profile, error) {
	const q = `UPDATE users SET display_name = $1, photo_url = $2, updated_at = NOW() WHERE id = $3 RETURNING ` + profileColumns
	p, err := scanProfile(r.pool.QueryRow(ctx, q, displayName, photoURL, uid))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, fmt.Errorf("profile %s: %w", uid, models.ErrNotFound)
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return p, nil
}

// UpdateStats validates and replaces the stat block. Every key is required.
func (r *Repository) UpdateStats(ctx context.Context, uid uuid.UUID, raw map[string]any) (*models.Profile, error) {
	stats, err := models.ParseStatBlock("stats", raw)
	if err != nil {
		return nil, err
	}
	const q = `UPDATE users SET stats = $1, updated_at = NOW() WHERE id = $2 RETURNING ` + profileColumns
	p, err := scanProfile(r.pool.QueryRow(ctx, q, stats, uid))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, fmt.Errorf("profile %s: %w", uid, models.ErrNotFound)
		}
		return nil, fmt.Errorf("update stats: %w", err)
	}
	return p, nil
}

// SetRole changes a user's clan role.
func (r *Repository) SetRole(ctx context.Context, uid uuid.UUID, role models.Role) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET role = $1, updated_at = NOW() WHERE id = $2`, string(role), uid)
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("profile %s: %w", uid, models.ErrNotFound)
	}
	return nil
}

// ListMembers returns clan members and admins, newest first.
func (r *Repository) ListMembers(ctx context.Context, limit int) ([]models.Profile, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx, `SELECT `+profileColumns+` FROM users WHERE role IN ('member', 'admin')
		ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()
	var list []models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// ListMyEvents returns the user's "my events" index, most recently added first.
func (r *Repository) ListMyEvents(ctx context.Context, uid uuid.UUID) ([]models.MyEvent, error) {
	const q = `SELECT ue.event_id, e.title, e.starts_at, ue.added_at
		FROM user_events ue JOIN events e ON e.id = ue.event_id
		WHERE ue.user_id = $1
		ORDER BY ue.added_at DESC`
	rows, err := r.pool.Query(ctx, q, uid)
	if err != nil {
		return nil, fmt.Errorf("list my events: %w", err)
	}
	defer rows.Close()
	var list []models.MyEvent
	for rows.Next() {
		var m models.MyEvent
		if err := rows.Scan(&m.EventID, &m.Title, &m.StartsAt, &m.AddedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
