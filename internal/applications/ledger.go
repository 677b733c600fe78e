// Package applications is the ledger of users' requests to join events.
package applications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blok13/clanportal/internal/models"
)

// DefaultListLimit bounds per-event listings.
const DefaultListLimit = 200

// Store persists applications. One application per (event, user).
type Store interface {
	// InsertApplication fails with models.ErrDuplicateApplication when one exists for the pair.
	InsertApplication(ctx context.Context, a *models.Application) error
	GetApplication(ctx context.Context, eventID, userID uuid.UUID) (*models.Application, error)
	ListApplicationsByEvent(ctx context.Context, eventID uuid.UUID, limit int) ([]models.Application, error)
	ListApplicationsByUser(ctx context.Context, userID uuid.UUID) ([]models.Application, error)
	// UpdateApplicationStatus reads the row under lock, calls allow with the current status and
	// writes to when allow returns nil.
	UpdateApplicationStatus(ctx context.Context, eventID, userID uuid.UUID, to models.ApplicationStatus,
		allow func(from models.ApplicationStatus) error) (*models.Application, error)
	DeleteApplication(ctx context.Context, eventID, userID uuid.UUID) error
}

// Ledger implements the application operations on top of a Store.
type Ledger struct {
	store  Store
	strict bool
	limit  int
	logger *zap.Logger
	now    func() time.Time
}

// NewLedger creates a ledger. With strict set, SetStatus follows models.CanTransition.
func NewLedger(store Store, strict bool, limit int, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return &Ledger{store: store, strict: strict, limit: limit, logger: logger, now: time.Now}
}

// Submit creates a pending application carrying the given profile snapshot.
func (l *Ledger) Submit(ctx context.Context, eventID, userID uuid.UUID, snap models.Snapshot) (*models.Application, error) {
	now := l.now().UTC()
	a := &models.Application{
		EventID:   eventID,
		UserID:    userID,
		Profile:   snap,
		Status:    models.ApplicationPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.store.InsertApplication(ctx, a); err != nil {
		return nil, err
	}
	l.logger.Info("application submitted", zap.String("event_id", eventID.String()), zap.String("user_id", userID.String()))
	return a, nil
}

// Get returns one application or models.ErrNotFound.
func (l *Ledger) Get(ctx context.Context, eventID, userID uuid.UUID) (*models.Application, error) {
	return l.store.GetApplication(ctx, eventID, userID)
}

// ListByEvent returns the event's applications, newest first, bounded by the ledger limit.
func (l *Ledger) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Application, error) {
	list, err := l.store.ListApplicationsByEvent(ctx, eventID, l.limit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Application{}
	}
	return list, nil
}

// ListByUser returns the user's applications across events, newest first.
func (l *Ledger) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Application, error) {
	list, err := l.store.ListApplicationsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Application{}
	}
	return list, nil
}

// SetStatus changes an application's status. It never touches seats: approving with a seat is
// the roster coordinator's job.
func (l *Ledger) SetStatus(ctx context.Context, eventID, userID uuid.UUID, status models.ApplicationStatus) (*models.Application, error) {
	if !status.Valid() {
		return nil, models.NewValidationError("status", "must be one of pending, approved, rejected, canceled")
	}
	var allow func(models.ApplicationStatus) error
	if l.strict {
		allow = func(from models.ApplicationStatus) error {
			if !models.CanTransition(from, status) {
				return fmt.Errorf("%s -> %s: %w", from, status, models.ErrInvalidTransition)
			}
			return nil
		}
	}
	a, err := l.store.UpdateApplicationStatus(ctx, eventID, userID, status, allow)
	if err != nil {
		return nil, err
	}
	l.logger.Info("application status set",
		zap.String("event_id", eventID.String()),
		zap.String("user_id", userID.String()),
		zap.String("status", string(status)),
	)
	return a, nil
}

// Delete removes the application. Seats are not affected.
func (l *Ledger) Delete(ctx context.Context, eventID, userID uuid.UUID) error {
	if err := l.store.DeleteApplication(ctx, eventID, userID); err != nil {
		return err
	}
	l.logger.Info("application deleted", zap.String("event_id", eventID.String()), zap.String("user_id", userID.String()))
	return nil
}
