package events

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blok13/clanportal/internal/apierror"
	"github.com/blok13/clanportal/internal/middleware"
	"github.com/blok13/clanportal/internal/models"
	"github.com/blok13/clanportal/pkg/response"
)

// Notifier is told when an event changes so live views can refresh.
type Notifier interface {
	Refresh(ctx context.Context, eventID uuid.UUID)
	Deleted(eventID uuid.UUID)
}

// Options tunes listing behaviour.
type Options struct {
	RunningGrace time.Duration
	ListLimit    int
}

// EventView is an event plus its derived status and free seats.
type EventView struct {
	models.Event
	Status    Status `json:"status"`
	SeatsLeft int    `json:"seats_left"`
}

// CreateRequest is the body for POST /events.
type CreateRequest struct {
	Title        string         `json:"title" binding:"required"`
	Description  string         `json:"description"`
	StartsAt     *time.Time     `json:"starts_at"`
	EndsAt       *time.Time     `json:"ends_at"`
	Link         string         `json:"link"`
	Capacity     *int           `json:"capacity"`
	AutoApprove  bool           `json:"auto_approve"`
	IsClosed     bool           `json:"is_closed"`
	Archived     bool           `json:"archived"`
	Requirements map[string]any `json:"requirements"`
}

// UpdateRequest is the body for PATCH /events/:id. Absent fields are unchanged.
type UpdateRequest struct {
	Title         *string        `json:"title"`
	Description   *string        `json:"description"`
	StartsAt      *time.Time     `json:"starts_at"`
	EndsAt        *time.Time     `json:"ends_at"`
	ClearStartsAt bool           `json:"clear_starts_at"`
	ClearEndsAt   bool           `json:"clear_ends_at"`
	Link          *string        `json:"link"`
	Capacity      *int           `json:"capacity"`
	AutoApprove   *bool          `json:"auto_approve"`
	IsClosed      *bool          `json:"is_closed"`
	Archived      *bool          `json:"archived"`
	Requirements  map[string]any `json:"requirements"`
}

const defaultCapacity = 10

// Handler handles event HTTP endpoints.
type Handler struct {
	repo     *Repository
	notifier Notifier
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

// NewHandler creates an event handler.
func NewHandler(repo *Repository, notifier Notifier, opts Options, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RunningGrace <= 0 {
		opts.RunningGrace = DefaultRunningGrace
	}
	return &Handler{repo: repo, notifier: notifier, opts: opts, logger: logger, now: time.Now}
}

func (h *Handler) view(e models.Event, now time.Time) EventView {
	return EventView{Event: e, Status: Classify(now, e.StartsAt, e.EndsAt, h.opts.RunningGrace), SeatsLeft: e.SeatsLeft()}
}

// List handles GET /events. Query: q, period=all|soon|past, mine=1, free=1, auto=1, noarch=0.
func (h *Handler) List(c *gin.Context) {
	ctx := c.Request.Context()
	f := DefaultFilter()
	f.Query = c.Query("q")
	switch Period(c.DefaultQuery("period", string(PeriodAll))) {
	case PeriodSoon:
		f.Period = PeriodSoon
	case PeriodPast:
		f.Period = PeriodPast
	case PeriodAll:
	default:
		response.BadRequest(c, "period must be all, soon or past")
		return
	}
	f.AutoOnly = c.Query("auto") == "1"
	f.FreeOnly = c.Query("free") == "1"
	f.HideArchived = c.DefaultQuery("noarch", "1") == "1"
	if c.Query("mine") == "1" {
		mine, err := h.repo.InvolvedEventIDs(ctx, middleware.UserID(c))
		if err != nil {
			apierror.Respond(c, h.logger, err, "list events")
			return
		}
		f.MineOnly, f.Mine = true, mine
	}

	list, err := h.repo.List(ctx, h.opts.ListLimit)
	if err != nil {
		apierror.Respond(c, h.logger, err, "list events")
		return
	}
	now := h.now()
	list = f.Apply(list, now, h.opts.RunningGrace)
	SortForDisplay(list, now, h.opts.RunningGrace)

	out := make([]EventView, 0, len(list))
	for _, e := range list {
		out = append(out, h.view(e, now))
	}
	response.OK(c, out)
}

// GetByID handles GET /events/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	e, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		apierror.Respond(c, h.logger, err, "get event")
		return
	}
	response.OK(c, h.view(*e, h.now()))
}

// Create handles POST /events (admin only).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	reqs, err := ParseRequirementsMap(req.Requirements)
	if err != nil {
		apierror.Respond(c, h.logger, err, "create event")
		return
	}
	capacity := defaultCapacity
	if req.Capacity != nil {
		capacity = *req.Capacity
	}
	e := &models.Event{
		Title:        req.Title,
		Description:  req.Description,
		StartsAt:     req.StartsAt,
		EndsAt:       req.EndsAt,
		Link:         req.Link,
		Capacity:     capacity,
		AutoApprove:  req.AutoApprove,
		IsClosed:     req.IsClosed,
		Archived:     req.Archived,
		Requirements: reqs,
		CreatedBy:    middleware.UserID(c),
	}
	if err := h.repo.Create(c.Request.Context(), e); err != nil {
		apierror.Respond(c, h.logger, err, "create event")
		return
	}
	h.logger.Info("event created", zap.String("event_id", e.ID.String()), zap.Int("capacity", e.Capacity))
	response.Created(c, h.view(*e, h.now()))
}

// Update handles PATCH /events/:id (admin only).
func (h *Handler) Update(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	patch := models.EventPatch{
		Title:         req.Title,
		Description:   req.Description,
		StartsAt:      req.StartsAt,
		EndsAt:        req.EndsAt,
		ClearStartsAt: req.ClearStartsAt,
		ClearEndsAt:   req.ClearEndsAt,
		Link:          req.Link,
		Capacity:      req.Capacity,
		AutoApprove:   req.AutoApprove,
		IsClosed:      req.IsClosed,
		Archived:      req.Archived,
	}
	if req.Requirements != nil {
		reqs, err := ParseRequirementsMap(req.Requirements)
		if err != nil {
			apierror.Respond(c, h.logger, err, "update event")
			return
		}
		patch.Requirements = &reqs
	}
	e, err := h.repo.Update(c.Request.Context(), id, patch)
	if err != nil {
		apierror.Respond(c, h.logger, err, "update event")
		return
	}
	h.refresh(c, id)
	response.OK(c, h.view(*e, h.now()))
}

// Archive handles POST /events/:id/archive. Body {"archived": bool}, default true.
func (h *Handler) Archive(c *gin.Context) {
	h.toggle(c, "archived", h.repo.SetArchived)
}

// Close handles POST /events/:id/close. Body {"closed": bool}, default true.
func (h *Handler) Close(c *gin.Context) {
	h.toggle(c, "closed", h.repo.SetClosed)
}

func (h *Handler) toggle(c *gin.Context, field string, set func(context.Context, uuid.UUID, bool) error) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	// An empty body (including a streamed one) means "set the flag".
	var body map[string]*bool
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	value := true
	if v := body[field]; v != nil {
		value = *v
	}
	if err := set(c.Request.Context(), id, value); err != nil {
		apierror.Respond(c, h.logger, err, "update event")
		return
	}
	h.refresh(c, id)
	response.OK(c, gin.H{"event_id": id, field: value})
}

// Delete handles DELETE /events/:id (admin only).
func (h *Handler) Delete(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		apierror.Respond(c, h.logger, err, "delete event")
		return
	}
	if h.notifier != nil {
		h.notifier.Deleted(id)
	}
	h.logger.Info("event deleted", zap.String("event_id", id.String()))
	response.NoContent(c)
}

func (h *Handler) refresh(c *gin.Context, id uuid.UUID) {
	if h.notifier != nil {
		h.notifier.Refresh(c.Request.Context(), id)
	}
}

// ParseRequirementsMap converts a loosely typed requirements object; nil means no requirements.
func ParseRequirementsMap(raw map[string]any) (models.StatBlock, error) {
	if raw == nil {
		return models.StatBlock{}, nil
	}
	return models.ParseRequirements("requirements", raw)
}

func eventID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return uuid.Nil, false
	}
	return id, true
}
