package roster

import (
	"context"

	"github.com/google/uuid"

	"github.com/blok13/clanportal/internal/models"
)

// Store runs seat transitions. InEventTx must serialize every call for the same event: the event
// row is locked for the whole of fn, and fn's writes commit together or not at all.
type Store interface {
	InEventTx(ctx context.Context, eventID uuid.UUID, fn func(ctx context.Context, tx Tx) error) error
	Reader
}

// Reader serves unlocked reads of the roster and waitlist.
type Reader interface {
	GetParticipant(ctx context.Context, eventID, userID uuid.UUID) (*models.Participant, error)
	ListParticipants(ctx context.Context, eventID uuid.UUID, limit int) ([]models.Participant, error)
	GetWaitlistEntry(ctx context.Context, eventID, userID uuid.UUID) (*models.WaitlistEntry, error)
	ListWaitlist(ctx context.Context, eventID uuid.UUID) ([]models.WaitlistEntry, error)
}

// Tx is the view of one event inside InEventTx. Getters return (nil, nil) when the record is absent.
type Tx interface {
	// Event returns the locked event row; models.ErrNotFound if it does not exist.
	Event(ctx context.Context) (*models.Event, error)
	SetParticipantsCount(ctx context.Context, n int) error

	GetParticipant(ctx context.Context, userID uuid.UUID) (*models.Participant, error)
	InsertParticipant(ctx context.Context, p *models.Participant) error
	DeleteParticipant(ctx context.Context, userID uuid.UUID) error
	CountParticipants(ctx context.Context) (int, error)

	GetApplication(ctx context.Context, userID uuid.UUID) (*models.Application, error)
	// PutApplication inserts the application or overwrites status and updated_at of an existing one.
	PutApplication(ctx context.Context, a *models.Application) error
	// PendingApplications returns pending applications, oldest first.
	PendingApplications(ctx context.Context) ([]models.Application, error)

	GetWaitlistEntry(ctx context.Context, userID uuid.UUID) (*models.WaitlistEntry, error)
	InsertWaitlistEntry(ctx context.Context, w *models.WaitlistEntry) error
	DeleteWaitlistEntry(ctx context.Context, userID uuid.UUID) error

	// RememberEvent and ForgetEvent maintain the user's "my events" index.
	RememberEvent(ctx context.Context, userID uuid.UUID) error
	ForgetEvent(ctx context.Context, userID uuid.UUID) error
}
