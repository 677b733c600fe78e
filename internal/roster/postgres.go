package roster

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blok13/clanportal/internal/models"
	"github.com/blok13/clanportal/pkg/database"
)

const lockEventQuery = `SELECT id, title, description, starts_at, ends_at, link, capacity, auto_approve, is_closed, archived,
	requirements, participants_count, created_by, created_at, updated_at
	FROM events WHERE id = $1 FOR UPDATE`

// PostgresStore implements Store on PostgreSQL. InEventTx holds a row lock on the event for
// the whole transaction, so concurrent seat changes for one event run one at a time.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed roster store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// InEventTx implements Store.
func (s *PostgresStore) InEventTx(ctx context.Context, eventID uuid.UUID, fn func(ctx context.Context, tx Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx, eventID: eventID})
	})
}

type pgTx struct {
	tx      pgx.Tx
	eventID uuid.UUID
	locked  *models.Event
}

func (t *pgTx) Event(ctx context.Context) (*models.Event, error) {
	if t.locked != nil {
		e := *t.locked
		return &e, nil
	}
	var e models.Event
	err := t.tx.QueryRow(ctx, lockEventQuery, t.eventID).Scan(&e.ID, &e.Title, &e.Description, &e.StartsAt, &e.EndsAt,
		&e.Link, &e.Capacity, &e.AutoApprove, &e.IsClosed, &e.Archived, &e.Requirements, &e.ParticipantsCount,
		&e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, fmt.Errorf("event %s: %w", t.eventID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("lock event: %w", err)
	}
	t.locked = &e
	out := e
	return &out, nil
}

func (t *pgTx) SetParticipantsCount(ctx context.Context, n int) error {
	if _, err := t.tx.Exec(ctx, `UPDATE events SET participants_count = $1, updated_at = NOW() WHERE id = $2`, n, t.eventID); err != nil {
		return fmt.Errorf("set participants_count: %w", err)
	}
	if t.locked != nil {
		t.locked.ParticipantsCount = n
	}
	return nil
}

func (t *pgTx) GetParticipant(ctx context.Context, userID uuid.UUID) (*models.Participant, error) {
	return getParticipant(ctx, t.tx, t.eventID, userID)
}

func (t *pgTx) InsertParticipant(ctx context.Context, p *models.Participant) error {
	profile, err := p.Profile.Encode()
	if err != nil {
		return err
	}
	const q = `INSERT INTO participants (event_id, user_id, profile, joined_at) VALUES ($1, $2, $3, $4)`
	if _, err := t.tx.Exec(ctx, q, t.eventID, p.UserID, profile, p.JoinedAt); err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteParticipant(ctx context.Context, userID uuid.UUID) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM participants WHERE event_id = $1 AND user_id = $2`, t.eventID, userID); err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	return nil
}

func (t *pgTx) CountParticipants(ctx context.Context) (int, error) {
	var n int
	if err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM participants WHERE event_id = $1`, t.eventID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}
	return n, nil
}

func (t *pgTx) GetApplication(ctx context.Context, userID uuid.UUID) (*models.Application, error) {
	const q = `SELECT event_id, user_id, profile, status, created_at, updated_at FROM applications WHERE event_id = $1 AND user_id = $2`
	a, err := ScanApplication(t.tx.QueryRow(ctx, q, t.eventID, userID))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get application: %w", err)
	}
	return a, nil
}

func (t *pgTx) PutApplication(ctx context.Context, a *models.Application) error {
	profile, err := a.Profile.Encode()
	if err != nil {
		return err
	}
	const q = `INSERT INTO applications (event_id, user_id, profile, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id, user_id) DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`
	if _, err := t.tx.Exec(ctx, q, t.eventID, a.UserID, profile, string(a.Status), a.CreatedAt, a.UpdatedAt); err != nil {
		return fmt.Errorf("put application: %w", err)
	}
	return nil
}

func (t *pgTx) PendingApplications(ctx context.Context) ([]models.Application, error) {
	const q = `SELECT event_id, user_id, profile, status, created_at, updated_at FROM applications
		WHERE event_id = $1 AND status = 'pending' ORDER BY created_at ASC`
	rows, err := t.tx.Query(ctx, q, t.eventID)
	if err != nil {
		return nil, fmt.Errorf("list pending applications: %w", err)
	}
	defer rows.Close()
	var list []models.Application
	for rows.Next() {
		a, err := ScanApplication(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

func (t *pgTx) GetWaitlistEntry(ctx context.Context, userID uuid.UUID) (*models.WaitlistEntry, error) {
	return getWaitlistEntry(ctx, t.tx, t.eventID, userID)
}

func (t *pgTx) InsertWaitlistEntry(ctx context.Context, w *models.WaitlistEntry) error {
	profile, err := w.Profile.Encode()
	if err != nil {
		return err
	}
	const q = `INSERT INTO waitlist (event_id, user_id, profile, status, created_at) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id, user_id) DO NOTHING`
	if _, err := t.tx.Exec(ctx, q, t.eventID, w.UserID, profile, w.Status, w.CreatedAt); err != nil {
		return fmt.Errorf("insert waitlist entry: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteWaitlistEntry(ctx context.Context, userID uuid.UUID) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM waitlist WHERE event_id = $1 AND user_id = $2`, t.eventID, userID); err != nil {
		return fmt.Errorf("delete waitlist entry: %w", err)
	}
	return nil
}

func (t *pgTx) RememberEvent(ctx context.Context, userID uuid.UUID) error {
	const q = `INSERT INTO user_events (user_id, event_id) VALUES ($1, $2) ON CONFLICT (user_id, event_id) DO NOTHING`
	if _, err := t.tx.Exec(ctx, q, userID, t.eventID); err != nil {
		return fmt.Errorf("remember event: %w", err)
	}
	return nil
}

func (t *pgTx) ForgetEvent(ctx context.Context, userID uuid.UUID) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM user_events WHERE user_id = $1 AND event_id = $2`, userID, t.eventID); err != nil {
		return fmt.Errorf("forget event: %w", err)
	}
	return nil
}

// GetParticipant implements Reader.
func (s *PostgresStore) GetParticipant(ctx context.Context, eventID, userID uuid.UUID) (*models.Participant, error) {
	return getParticipant(ctx, s.pool, eventID, userID)
}

// ListParticipants implements Reader. Oldest seat first.
func (s *PostgresStore) ListParticipants(ctx context.Context, eventID uuid.UUID, limit int) ([]models.Participant, error) {
	if limit <= 0 {
		limit = 500
	}
	const q = `SELECT event_id, user_id, profile, joined_at FROM participants WHERE event_id = $1 ORDER BY joined_at ASC LIMIT $2`
	rows, err := s.pool.Query(ctx, q, eventID, limit)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()
	var list []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// GetWaitlistEntry implements Reader.
func (s *PostgresStore) GetWaitlistEntry(ctx context.Context, eventID, userID uuid.UUID) (*models.WaitlistEntry, error) {
	return getWaitlistEntry(ctx, s.pool, eventID, userID)
}

// ListWaitlist implements Reader. FIFO order.
func (s *PostgresStore) ListWaitlist(ctx context.Context, eventID uuid.UUID) ([]models.WaitlistEntry, error) {
	const q = `SELECT event_id, user_id, profile, status, created_at FROM waitlist WHERE event_id = $1 ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, q, eventID)
	if err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	defer rows.Close()
	var list []models.WaitlistEntry
	for rows.Next() {
		w, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *w)
	}
	return list, rows.Err()
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getParticipant(ctx context.Context, q querier, eventID, userID uuid.UUID) (*models.Participant, error) {
	const sql = `SELECT event_id, user_id, profile, joined_at FROM participants WHERE event_id = $1 AND user_id = $2`
	p, err := scanParticipant(q.QueryRow(ctx, sql, eventID, userID))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

func getWaitlistEntry(ctx context.Context, q querier, eventID, userID uuid.UUID) (*models.WaitlistEntry, error) {
	const sql = `SELECT event_id, user_id, profile, status, created_at FROM waitlist WHERE event_id = $1 AND user_id = $2`
	w, err := scanWaitlistEntry(q.QueryRow(ctx, sql, eventID, userID))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get waitlist entry: %w", err)
	}
	return w, nil
}

func scanParticipant(row pgx.Row) (*models.Participant, error) {
	var (
		p       models.Participant
		profile []byte
	)
	if err := row.Scan(&p.EventID, &p.UserID, &profile, &p.JoinedAt); err != nil {
		return nil, err
	}
	snap, err := models.DecodeSnapshot(profile)
	if err != nil {
		return nil, err
	}
	p.Profile = snap
	return &p, nil
}

func scanWaitlistEntry(row pgx.Row) (*models.WaitlistEntry, error) {
	var (
		w       models.WaitlistEntry
		profile []byte
	)
	if err := row.Scan(&w.EventID, &w.UserID, &profile, &w.Status, &w.CreatedAt); err != nil {
		return nil, err
	}
	snap, err := models.DecodeSnapshot(profile)
	if err != nil {
		return nil, err
	}
	w.Profile = snap
	return &w, nil
}

// ScanApplication reads an application row (event_id, user_id, profile, status, created_at, updated_at).
func ScanApplication(row pgx.Row) (*models.Application, error) {
	var (
		a       models.Application
		profile []byte
		status  string
	)
	if err := row.Scan(&a.EventID, &a.UserID, &profile, &status, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	snap, err := models.DecodeSnapshot(profile)
	if err != nil {
		return nil, err
	}
	a.Profile = snap
	a.Status = models.ApplicationStatus(status)
	return &a, nil
}
