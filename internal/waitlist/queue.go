// Package waitlist is the FIFO queue of users asking for a seat on a full event.
package waitlist

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blok13/clanportal/internal/models"
	"github.com/blok13/clanportal/internal/roster"
)

// Queue manages waitlist entries. Entries are advisory: only the roster coordinator turns one
// into a seat. Join runs under the event lock so a user is never queued while seated.
type Queue struct {
	store    roster.Store
	profiles roster.ProfileLookup
	notifier roster.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewQueue creates a waitlist queue. notifier may be nil.
func NewQueue(store roster.Store, profiles roster.ProfileLookup, notifier roster.Notifier, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{store: store, profiles: profiles, notifier: notifier, logger: logger, now: time.Now}
}

// Join adds the user to the event's queue unless already present. created is false when an
// entry already existed; the existing entry is returned unchanged.
func (q *Queue) Join(ctx context.Context, eventID, userID uuid.UUID) (entry *models.WaitlistEntry, created bool, err error) {
	profile, err := q.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	err = q.store.InEventTx(ctx, eventID, func(ctx context.Context, tx roster.Tx) error {
		ev, err := tx.Event(ctx)
		if err != nil {
			return err
		}
		if ev.Archived {
			return models.ErrEventArchived
		}
		if ev.IsClosed {
			return models.ErrEventClosed
		}
		if p, err := tx.GetParticipant(ctx, userID); err != nil {
			return err
		} else if p != nil {
			return models.ErrAlreadySeated
		}
		existing, err := tx.GetWaitlistEntry(ctx, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			entry = existing
			return nil
		}
		now := q.now()
		entry = &models.WaitlistEntry{
			EventID:   eventID,
			UserID:    userID,
			Profile:   profile.Snapshot(now),
			Status:    models.WaitlistStatusWaiting,
			CreatedAt: now.UTC(),
		}
		created = true
		return tx.InsertWaitlistEntry(ctx, entry)
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		q.logger.Info("waitlist joined", zap.String("event_id", eventID.String()), zap.String("user_id", userID.String()))
		q.notify(ctx, eventID)
	}
	return entry, created, nil
}

// Leave removes the user's entry. Removing an absent entry is not an error.
func (q *Queue) Leave(ctx context.Context, eventID, userID uuid.UUID) error {
	var removed bool
	err := q.store.InEventTx(ctx, eventID, func(ctx context.Context, tx roster.Tx) error {
		existing, err := tx.GetWaitlistEntry(ctx, userID)
		if err != nil {
			return err
		}
		removed = existing != nil
		return tx.DeleteWaitlistEntry(ctx, userID)
	})
	if err != nil {
		return err
	}
	if removed {
		q.logger.Info("waitlist left", zap.String("event_id", eventID.String()), zap.String("user_id", userID.String()))
		q.notify(ctx, eventID)
	}
	return nil
}

// Get returns the user's entry or models.ErrNotFound.
func (q *Queue) Get(ctx context.Context, eventID, userID uuid.UUID) (*models.WaitlistEntry, error) {
	w, err := q.store.GetWaitlistEntry(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, fmt.Errorf("waitlist entry: %w", models.ErrNotFound)
	}
	return w, nil
}

// List returns the queue in FIFO order.
func (q *Queue) List(ctx context.Context, eventID uuid.UUID) ([]models.WaitlistEntry, error) {
	list, err := q.store.ListWaitlist(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.WaitlistEntry{}
	}
	return list, nil
}

func (q *Queue) notify(ctx context.Context, eventID uuid.UUID) {
	if q.notifier != nil {
		q.notifier.Refresh(ctx, eventID)
	}
}
