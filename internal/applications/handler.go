package applications

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blok13/clanportal/internal/apierror"
	"github.com/blok13/clanportal/internal/eligibility"
	"github.com/blok13/clanportal/internal/middleware"
	"github.com/blok13/clanportal/internal/models"
	"github.com/blok13/clanportal/internal/roster"
	"github.com/blok13/clanportal/pkg/response"
)

// EventGetter loads an event.
type EventGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// Seater approves an application and seats the applicant in one transaction.
type Seater interface {
	ApproveApplication(ctx context.Context, eventID, userID uuid.UUID) (roster.Result, error)
}

// SubmitResponse is returned by POST /events/:id/applications.
type SubmitResponse struct {
	Application *models.Application `json:"application"`
	// Seated is true when an auto-approve event took the applicant straight in.
	Seated bool `json:"seated"`
	// WaitlistAvailable is set when an auto-approve event was full; the application stays pending.
	WaitlistAvailable bool `json:"waitlist_available,omitempty"`
}

// Handler serves member application endpoints.
type Handler struct {
	ledger   *Ledger
	events   EventGetter
	profiles roster.ProfileLookup
	seater   Seater
	notifier roster.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewHandler creates an applications handler. notifier may be nil.
func NewHandler(ledger *Ledger, events EventGetter, profiles roster.ProfileLookup, seater Seater,
	notifier roster.Notifier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{ledger: ledger, events: events, profiles: profiles, seater: seater, notifier: notifier,
		logger: logger, now: time.Now}
}

// Submit handles POST /events/:id/applications.
func (h *Handler) Submit(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	uid := middleware.UserID(c)

	ev, err := h.events.GetByID(ctx, id)
	if err != nil {
		apierror.Respond(c, h.logger, err, "submit application")
		return
	}
	switch {
	case ev.Archived:
		apierror.Respond(c, h.logger, models.ErrEventArchived, "submit application")
		return
	case ev.IsClosed:
		apierror.Respond(c, h.logger, models.ErrEventClosed, "submit application")
		return
	}
	profile, err := h.profiles.GetProfile(ctx, uid)
	if err != nil {
		apierror.Respond(c, h.logger, err, "submit application")
		return
	}
	if err := eligibility.Check(profile.Stats, ev.Requirements).Err(); err != nil {
		apierror.Respond(c, h.logger, err, "submit application")
		return
	}
	app, err := h.ledger.Submit(ctx, id, uid, profile.Snapshot(h.now()))
	if err != nil {
		apierror.Respond(c, h.logger, err, "submit application")
		return
	}

	out := SubmitResponse{Application: app}
	if ev.AutoApprove {
		_, err := h.seater.ApproveApplication(ctx, id, uid)
		switch {
		case err == nil:
			out.Seated = true
			if fresh, err := h.ledger.Get(ctx, id, uid); err == nil {
				out.Application = fresh
			}
		case errors.Is(err, models.ErrCapacityExceeded):
			out.WaitlistAvailable = true
		default:
			// The pending application stands; an admin can still approve it.
			h.logger.Warn("auto approve failed", zap.Error(err),
				zap.String("event_id", id.String()), zap.String("user_id", uid.String()))
		}
	}
	if !out.Seated && h.notifier != nil {
		h.notifier.Refresh(ctx, id)
	}
	response.Created(c, out)
}

// Mine handles GET /events/:id/applications/me.
func (h *Handler) Mine(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	app, err := h.ledger.Get(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		apierror.Respond(c, h.logger, err, "get application")
		return
	}
	response.OK(c, app)
}

// Withdraw handles DELETE /events/:id/applications/me. A held seat is not released.
func (h *Handler) Withdraw(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := h.ledger.Delete(ctx, id, middleware.UserID(c)); err != nil {
		apierror.Respond(c, h.logger, err, "delete application")
		return
	}
	if h.notifier != nil {
		h.notifier.Refresh(ctx, id)
	}
	response.NoContent(c)
}

// ListMine handles GET /me/applications.
func (h *Handler) ListMine(c *gin.Context) {
	list, err := h.ledger.ListByUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		apierror.Respond(c, h.logger, err, "list applications")
		return
	}
	response.OK(c, list)
}

func eventID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return uuid.Nil, false
	}
	return id, true
}
