// Package roster owns seat transitions: every change to an event's participant set and its
// participants_count goes through the Coordinator.
package roster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blok13/clanportal/internal/eligibility"
	"github.com/blok13/clanportal/internal/metrics"
	"github.com/blok13/clanportal/internal/models"
)

// Operation names used in logs and metrics.
const (
	OpAdd       = "add_participant"
	OpJoinAuto  = "join_auto"
	OpRemove    = "remove_participant"
	OpPromote   = "promote_waitlist"
	OpApprove   = "approve_application"
	OpRecount   = "recount"
	OpBulkFit   = "approve_eligible"
	OpBulkUnfit = "reject_ineligible"
)

// ProfileLookup fetches the live profile used for snapshots and eligibility.
type ProfileLookup interface {
	GetProfile(ctx context.Context, uid uuid.UUID) (*models.Profile, error)
}

// Notifier is told after a committed change so live feeds can refresh.
type Notifier interface {
	Refresh(ctx context.Context, eventID uuid.UUID)
}

// Result describes the roster after a single-user transition.
type Result struct {
	// Changed is false when the call was a no-op (already seated, not seated).
	Changed           bool `json:"changed"`
	ParticipantsCount int  `json:"participants_count"`
	Capacity          int  `json:"capacity"`
}

// RecountResult reports a counter repair.
type RecountResult struct {
	Before int `json:"before"`
	After  int `json:"after"`
}

// BulkResult reports a bulk moderation pass.
type BulkResult struct {
	Changed []uuid.UUID `json:"changed"`
	// Skipped counts pending applications left untouched.
	Skipped int `json:"skipped"`
}

// RemoveOptions controls side effects of RemoveParticipant.
type RemoveOptions struct {
	// CancelApplication marks the user's application canceled, as when a member leaves.
	CancelApplication bool
}

// Coordinator serializes seat changes per event and keeps participants_count equal to the
// number of participant records, never above capacity.
type Coordinator struct {
	store    Store
	profiles ProfileLookup
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewCoordinator creates a Coordinator. notifier and m may be nil.
func NewCoordinator(store Store, profiles ProfileLookup, notifier Notifier, m *metrics.Metrics, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{store: store, profiles: profiles, notifier: notifier, metrics: m, logger: logger, now: time.Now}
}

// AddParticipant seats a user directly (admin action). Idempotent for an existing participant.
// Closed and archived events are not checked.
func (c *Coordinator) AddParticipant(ctx context.Context, eventID, userID uuid.UUID) (Result, error) {
	profile, err := c.profiles.GetProfile(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	var res Result
	err = c.store.InEventTx(ctx, eventID, func(ctx context.Context, tx Tx) error {
		ev, err := tx.Event(ctx)
		if err != nil {
			return err
		}
		res.Capacity = ev.Capacity
		res.ParticipantsCount = ev.ParticipantsCount
		if p, err := tx.GetParticipant(ctx, userID); err != nil {
			return err
		} else if p != nil {
			return nil
		}
		if ev.IsFull() {
			return models.ErrCapacityExceeded
		}
		snap := profile.Snapshot(c.now())
		if err := c.seat(ctx, tx, ev, userID, snap); err != nil {
			return err
		}
		res.Changed = true
		res.ParticipantsCount = ev.ParticipantsCount + 1
		return nil
	})
	return c.finish(ctx, OpAdd, eventID, userID, res, err)
}

// JoinEventAuto signs a member up on an auto-approve event: the application is created or moved
// to approved and a seat is taken in the same transaction. Idempotent for an existing participant.
func (c *Coordinator) JoinEventAuto(ctx context.Context, eventID, userID uuid.UUID) (Result, error) {
	profile, err := c.profiles.GetProfile(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	var res Result
	err = c.store.InEventTx(ctx, eventID, func(ctx context.Context, tx Tx) error {
		ev, err := tx.Event(ctx)
		if err != nil {
			return err
		}
		res.Capacity = ev.Capacity
		res.ParticipantsCount = ev.ParticipantsCount
		if !ev.AutoApprove {
			return models.ErrAutoApproveDisabled
		}
		if p, err := tx.GetParticipant(ctx, userID); err != nil {
			return err
		} else if p != nil {
			return nil
		}
		if err := signupOpen(ev); err != nil {
			return err
		}
		if err := eligibility.Check(profile.Stats, ev.Requirements).Err(); err != nil {
			return err
		}
		if ev.IsFull() {
			return models.ErrCapacityExceeded
		}
		now := c.now()
		snap := profile.Snapshot(now)
		app, err := tx.GetApplication(ctx, userID)
		if err != nil {
			return err
		}
		if app == nil {
			app = &models.Application{EventID: eventID, UserID: userID, Profile: snap, CreatedAt: now}
		}
		app.Status = models.ApplicationApproved
		app.UpdatedAt = now
		if err := tx.PutApplication(ctx, app); err != nil {
			return err
		}
		if err := c.seat(ctx, tx, ev, userID, snap); err != nil {
			return err
		}
		res.Changed = true
		res.ParticipantsCount = ev.ParticipantsCount + 1
		return nil
	})
	return c.finish(ctx, OpJoinAuto, eventID, userID, res, err)
}

// RemoveParticipant frees the user's seat. Removing a non-participant is a no-op, except that
// CancelApplication still cancels an existing application.
func (c *Coordinator) RemoveParticipant(ctx context.Context, eventID, userID uuid.UUID, opts RemoveOptions) (Result, error) {
	var res Result
	err := c.store.InEventTx(ctx, eventID, func(ctx context.Context, tx Tx) error {
		ev, err := tx.Event(ctx)
		if err != nil {
			return err
		}
		res.Capacity = ev.Capacity
		res.ParticipantsCount = ev.ParticipantsCount
		if opts.CancelApplication {
			app, err := tx.GetApplication(ctx, userID)
			if err != nil {
				return err
			}
			if app != nil && app.Status != models.ApplicationCanceled {
				app.Status = models.ApplicationCanceled
				app.UpdatedAt = c.now()
				if err := tx.PutApplication(ctx, app); err != nil {
					return err
				}
				res.Changed = true
			}
		}
		p, err := tx.GetParticipant(ctx, userID)
		if err != nil {
			return err
		}
		if p == nil {
			return nil
		}
		if err := tx.DeleteParticipant(ctx, userID); err != nil {
			return err
		}
		// Floored so drift never pushes the counter negative.
		n := ev.ParticipantsCount - 1
		if n < 0 {
			n = 0
		}
		if err := tx.SetParticipantsCount(ctx, n); err != nil {
			return err
		}
		if err := tx.ForgetEvent(ctx, userID); err != nil {
			return err
		}
		res.Changed = true
		res.ParticipantsCount = n
		return nil
	})
	return c.finish(ctx, OpRemove, eventID, userID, res, err)
}

// PromoteFromWaitlist seats a waitlisted user using the snapshot captured when they queued,
// creating or approving their application.
func (c *Coordinator) PromoteFromWaitlist(ctx context.Context, eventID, userID uuid.UUID) (Result, error) {
	var res Result
	err := c.store.InEventTx(ctx, eventID, func(ctx context.Context, tx Tx) error {
		ev, err := tx.Event(ctx)
		if err != nil {
			return err
		}
		res.Capacity = ev.Capacity
		res.ParticipantsCount = ev.ParticipantsCount
		if p, err := tx.GetParticipant(ctx, userID); err != nil {
			return err
		} else if p != nil {
			// Already seated: drop any stale queue entry.
			return tx.DeleteWaitlistEntry(ctx, userID)
		}
		entry, err := tx.GetWaitlistEntry(ctx, userID)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("waitlist entry for user %s: %w", userID, models.ErrNotFound)
		}
		if ev.IsFull() {
			return models.ErrCapacityExceeded
		}
		now := c.now()
		app, err := tx.GetApplication(ctx, userID)
		if err != nil {
			return err
		}
		if app == nil {
			app = &models.Application{EventID: eventID, UserID: userID, Profile: entry.Profile, CreatedAt: now}
		}
		app.Status = models.ApplicationApproved
		app.UpdatedAt = now
		if err := tx.PutApplication(ctx, app); err != nil {
			return err
		}
		if err := c.seat(ctx, tx, ev, userID, entry.Profile); err != nil {
			return err
		}
		res.Changed = true
		res.ParticipantsCount = ev.ParticipantsCount + 1
		return nil
	})
	return c.finish(ctx, OpPromote, eventID, userID, res, err)
}

// ApproveApplication approves an existing application and seats the applicant with the
// snapshot taken at submission. Requirements are not re-checked. On a full event the
// application is left unchanged and ErrCapacityExceeded is returned.
func (c *Coordinator) ApproveApplication(ctx context.Context, eventID, userID uuid.UUID) (Result, error) {
	var res Result
	err := c.store.InEventTx(ctx, eventID, func(ctx context.Context, tx Tx) error {
		ev, err := tx.Event(ctx)
		if err != nil {
			return err
		}
		res.Capacity = ev.Capacity
		res.ParticipantsCount = ev.ParticipantsCount
		app, err := tx.GetApplication(ctx, userID)
		if err != nil {
			return err
		}
		if app == nil {
			return fmt.Errorf("application for user %s: %w", userID, models.ErrNotFound)
		}
		seated, err := tx.GetParticipant(ctx, userID)
		if err != nil {
			return err
		}
		if seated == nil && ev.IsFull() {
			return models.ErrCapacityExceeded
		}
		if app.Status != models.ApplicationApproved {
			app.Status = models.ApplicationApproved
			app.UpdatedAt = c.now()
			if err := tx.PutApplication(ctx, app); err != nil {
				return err
			}
			res.Changed = true
		}
		if seated != nil {
			return nil
		}
		if err := c.seat(ctx, tx, ev, userID, app.Profile); err != nil {
			return err
		}
		res.Changed = true
		res.ParticipantsCount = ev.ParticipantsCount + 1
		return nil
	})
	return c.finish(ctx, OpApprove, eventID, userID, res, err)
}

// Recount sets participants_count to the true number of participant records.
func (c *Coordinator) Recount(ctx context.Context, eventID uuid.UUID) (RecountResult, error) {
	var res RecountResult
	err := c.store.InEventTx(ctx, eventID, func(ctx context.Context, tx Tx) error {
		ev, err := tx.Event(ctx)
		if err != nil {
			return err
		}
		n, err := tx.CountParticipants(ctx)
		if err != nil {
			return err
		}
		res.Before, res.After = ev.ParticipantsCount, n
		if n == ev.ParticipantsCount {
			return nil
		}
		return tx.SetParticipantsCount(ctx, n)
	})
	if err != nil {
		c.metrics.SeatTransition(OpRecount, metrics.ResultError)
		return RecountResult{}, err
	}
	if res.Before == res.After {
		c.metrics.SeatTransition(OpRecount, metrics.ResultNoop)
		return res, nil
	}
	c.metrics.SeatTransition(OpRecount, metrics.ResultOK)
	c.metrics.CounterDrift(res.After - res.Before)
	c.logger.Warn("participants_count drift repaired",
		zap.String("event_id", eventID.String()),
		zap.Int("before", res.Before),
		zap.Int("after", res.After),
	)
	c.notify(ctx, eventID)
	return res, nil
}

// ApproveEligible approves and seats pending applicants whose snapshot stats meet the event
// requirements, oldest first, until the event is full.
func (c *Coordinator) ApproveEligible(ctx context.Context, eventID uuid.UUID) (BulkResult, error) {
	res := BulkResult{Changed: []uuid.UUID{}}
	err := c.store.InEventTx(ctx, eventID, func(ctx context.Context, tx Tx) error {
		ev, err := tx.Event(ctx)
		if err != nil {
			return err
		}
		pending, err := tx.PendingApplications(ctx)
		if err != nil {
			return err
		}
		count := ev.ParticipantsCount
		now := c.now()
		for i := range pending {
			app := &pending[i]
			if !eligibility.Check(app.Profile.Stats, ev.Requirements).OK {
				res.Skipped++
				continue
			}
			// Already seated applicants are approved without a new seat, even on a full event.
			seated, err := tx.GetParticipant(ctx, app.UserID)
			if err != nil {
				return err
			}
			if seated == nil && count >= ev.Capacity {
				res.Skipped++
				continue
			}
			app.Status = models.ApplicationApproved
			app.UpdatedAt = now
			if err := tx.PutApplication(ctx, app); err != nil {
				return err
			}
			if seated == nil {
				snapshotEv := *ev
				snapshotEv.ParticipantsCount = count
				if err := c.seat(ctx, tx, &snapshotEv, app.UserID, app.Profile); err != nil {
					return err
				}
				count++
			}
			res.Changed = append(res.Changed, app.UserID)
		}
		return nil
	})
	return c.finishBulk(ctx, OpBulkFit, eventID, res, err)
}

// RejectIneligible rejects pending applicants whose snapshot stats miss any requirement.
func (c *Coordinator) RejectIneligible(ctx context.Context, eventID uuid.UUID) (BulkResult, error) {
	res := BulkResult{Changed: []uuid.UUID{}}
	err := c.store.InEventTx(ctx, eventID, func(ctx context.Context, tx Tx) error {
		ev, err := tx.Event(ctx)
		if err != nil {
			return err
		}
		pending, err := tx.PendingApplications(ctx)
		if err != nil {
			return err
		}
		now := c.now()
		for i := range pending {
			app := &pending[i]
			if eligibility.Check(app.Profile.Stats, ev.Requirements).OK {
				res.Skipped++
				continue
			}
			app.Status = models.ApplicationRejected
			app.UpdatedAt = now
			if err := tx.PutApplication(ctx, app); err != nil {
				return err
			}
			res.Changed = append(res.Changed, app.UserID)
		}
		return nil
	})
	return c.finishBulk(ctx, OpBulkUnfit, eventID, res, err)
}

// seat inserts the participant, bumps the counter, clears the waitlist entry and records the
// event in the user's index. ev.ParticipantsCount must be the current counter.
func (c *Coordinator) seat(ctx context.Context, tx Tx, ev *models.Event, userID uuid.UUID, snap models.Snapshot) error {
	p := &models.Participant{EventID: ev.ID, UserID: userID, Profile: snap, JoinedAt: c.now()}
	if err := tx.InsertParticipant(ctx, p); err != nil {
		return err
	}
	if err := tx.SetParticipantsCount(ctx, ev.ParticipantsCount+1); err != nil {
		return err
	}
	if err := tx.DeleteWaitlistEntry(ctx, userID); err != nil {
		return err
	}
	return tx.RememberEvent(ctx, userID)
}

func signupOpen(ev *models.Event) error {
	if ev.Archived {
		return models.ErrEventArchived
	}
	if ev.IsClosed {
		return models.ErrEventClosed
	}
	return nil
}

func (c *Coordinator) finish(ctx context.Context, op string, eventID, userID uuid.UUID, res Result, err error) (Result, error) {
	if err != nil {
		c.metrics.SeatTransition(op, resultLabel(err))
		return Result{}, err
	}
	if !res.Changed {
		c.metrics.SeatTransition(op, metrics.ResultNoop)
		return res, nil
	}
	c.metrics.SeatTransition(op, metrics.ResultOK)
	c.logger.Info("roster changed",
		zap.String("op", op),
		zap.String("event_id", eventID.String()),
		zap.String("user_id", userID.String()),
		zap.Int("participants_count", res.ParticipantsCount),
		zap.Int("capacity", res.Capacity),
	)
	c.notify(ctx, eventID)
	return res, nil
}

func (c *Coordinator) finishBulk(ctx context.Context, op string, eventID uuid.UUID, res BulkResult, err error) (BulkResult, error) {
	if err != nil {
		c.metrics.SeatTransition(op, metrics.ResultError)
		return BulkResult{}, err
	}
	if len(res.Changed) == 0 {
		c.metrics.SeatTransition(op, metrics.ResultNoop)
		return res, nil
	}
	c.metrics.SeatTransition(op, metrics.ResultOK)
	c.logger.Info("bulk moderation applied",
		zap.String("op", op),
		zap.String("event_id", eventID.String()),
		zap.Int("changed", len(res.Changed)),
		zap.Int("skipped", res.Skipped),
	)
	c.notify(ctx, eventID)
	return res, nil
}

func (c *Coordinator) notify(ctx context.Context, eventID uuid.UUID) {
	if c.notifier != nil {
		c.notifier.Refresh(ctx, eventID)
	}
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, models.ErrCapacityExceeded):
		return metrics.ResultFull
	case models.IsConflict(err), errors.Is(err, models.ErrRequirementsNotMet):
		return metrics.ResultRejected
	default:
		return metrics.ResultError
	}
}
