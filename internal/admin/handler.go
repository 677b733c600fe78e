// Package admin serves the admin console: moderation of applications, seats and the waitlist,
// counter repair and roster exports. Every operation is a thin wrapper over the roster
// coordinator, the application ledger or the waitlist queue.
package admin

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blok13/clanportal/internal/apierror"
	"github.com/blok13/clanportal/internal/applications"
	"github.com/blok13/clanportal/internal/exports"
	"github.com/blok13/clanportal/internal/middleware"
	"github.com/blok13/clanportal/internal/models"
	"github.com/blok13/clanportal/internal/roster"
	"github.com/blok13/clanportal/internal/waitlist"
	"github.com/blok13/clanportal/pkg/queue"
	"github.com/blok13/clanportal/pkg/response"
)

// Jobs is the background queue used for recount sweeps.
type Jobs interface {
	EnqueueRecount(ctx context.Context, eventID uuid.UUID) (*queue.Job, error)
	EnqueueRecountAll(ctx context.Context) (*queue.Job, error)
	DeadLetters(ctx context.Context, limit int64) ([]queue.Job, error)
}

// Exports requests roster exports and reports their progress.
type Exports interface {
	Request(ctx context.Context, eventID, requestedBy uuid.UUID) (*models.RosterExport, error)
	Status(ctx context.Context, id uuid.UUID) (*exports.Status, error)
}

// Handler serves /admin routes.
type Handler struct {
	coord    *roster.Coordinator
	reader   roster.Reader
	ledger   *applications.Ledger
	waitlist *waitlist.Queue
	jobs     Jobs
	exports  Exports
	notifier roster.Notifier
	limit    int
	logger   *zap.Logger
}

// Deps groups the collaborators of the admin handler. Jobs and Exports may be nil when Redis
// or object storage is not configured; the matching routes then answer 503.
type Deps struct {
	Coordinator *roster.Coordinator
	Reader      roster.Reader
	Ledger      *applications.Ledger
	Waitlist    *waitlist.Queue
	Jobs        Jobs
	Exports     Exports
	Notifier    roster.Notifier
	// ParticipantsLimit caps participant listings (0 = 500).
	ParticipantsLimit int
}

// NewHandler creates an admin handler.
func NewHandler(d Deps, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := d.ParticipantsLimit
	if limit <= 0 {
		limit = 500
	}
	return &Handler{
		coord:    d.Coordinator,
		reader:   d.Reader,
		ledger:   d.Ledger,
		waitlist: d.Waitlist,
		jobs:     d.Jobs,
		exports:  d.Exports,
		notifier: d.Notifier,
		limit:    limit,
		logger:   logger,
	}
}

// Register mounts the admin routes on g. g must already require the admin role.
func (h *Handler) Register(g *gin.RouterGroup) {
	ev := g.Group("/events/:id")
	ev.GET("/applications", h.ListApplications)
	ev.POST("/applications/:uid/approve", h.Approve)
	ev.POST("/applications/:uid/reject", h.Reject)
	ev.PUT("/applications/:uid/status", h.SetStatus)
	ev.DELETE("/applications/:uid", h.DeleteApplication)
	ev.POST("/approve-eligible", h.ApproveEligible)
	ev.POST("/reject-ineligible", h.RejectIneligible)

	ev.GET("/participants", h.ListParticipants)
	ev.POST("/participants/:uid", h.AddParticipant)
	ev.DELETE("/participants/:uid", h.RemoveParticipant)

	ev.GET("/waitlist", h.ListWaitlist)
	ev.POST("/waitlist/:uid/promote", h.Promote)
	ev.DELETE("/waitlist/:uid", h.DropWaitlist)

	ev.POST("/recount", h.Recount)
	ev.POST("/exports", h.RequestExport)

	g.POST("/recount", h.RecountAll)
	g.GET("/exports/:export_id", h.ExportStatus)
	g.GET("/jobs/dead", h.DeadLetters)
}

// ListApplications handles GET /admin/events/:id/applications, newest first.
func (h *Handler) ListApplications(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	list, err := h.ledger.ListByEvent(c.Request.Context(), id)
	if err != nil {
		apierror.Respond(c, h.logger, err, "list applications")
		return
	}
	response.OK(c, list)
}

// Approve handles POST /admin/events/:id/applications/:uid/approve. The applicant is seated in
// the same transaction; eligibility is not checked.
func (h *Handler) Approve(c *gin.Context) {
	id, uid, ok := eventAndUser(c)
	if !ok {
		return
	}
	res, err := h.coord.ApproveApplication(c.Request.Context(), id, uid)
	if err != nil {
		apierror.Respond(c, h.logger, err, "approve application")
		return
	}
	response.OK(c, res)
}

// Reject handles POST /admin/events/:id/applications/:uid/reject.
func (h *Handler) Reject(c *gin.Context) {
	h.setStatus(c, models.ApplicationRejected)
}

type statusRequest struct {
	Status models.ApplicationStatus `json:"status" binding:"required"`
}

// SetStatus handles PUT /admin/events/:id/applications/:uid/status. Approval goes through the
// coordinator so it always comes with a seat.
func (h *Handler) SetStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Status == models.ApplicationApproved {
		h.Approve(c)
		return
	}
	h.setStatus(c, req.Status)
}

func (h *Handler) setStatus(c *gin.Context, status models.ApplicationStatus) {
	id, uid, ok := eventAndUser(c)
	if !ok {
		return
	}
	app, err := h.ledger.SetStatus(c.Request.Context(), id, uid, status)
	if err != nil {
		apierror.Respond(c, h.logger, err, "set application status")
		return
	}
	h.refresh(c, id)
	response.OK(c, app)
}

// DeleteApplication handles DELETE /admin/events/:id/applications/:uid.
func (h *Handler) DeleteApplication(c *gin.Context) {
	id, uid, ok := eventAndUser(c)
	if !ok {
		return
	}
	if err := h.ledger.Delete(c.Request.Context(), id, uid); err != nil {
		apierror.Respond(c, h.logger, err, "delete application")
		return
	}
	h.refresh(c, id)
	response.NoContent(c)
}

// ApproveEligible handles POST /admin/events/:id/approve-eligible.
func (h *Handler) ApproveEligible(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	res, err := h.coord.ApproveEligible(c.Request.Context(), id)
	if err != nil {
		apierror.Respond(c, h.logger, err, "approve eligible applications")
		return
	}
	response.OK(c, res)
}

// RejectIneligible handles POST /admin/events/:id/reject-ineligible.
func (h *Handler) RejectIneligible(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	res, err := h.coord.RejectIneligible(c.Request.Context(), id)
	if err != nil {
		apierror.Respond(c, h.logger, err, "reject ineligible applications")
		return
	}
	response.OK(c, res)
}

// ListParticipants handles GET /admin/events/:id/participants.
func (h *Handler) ListParticipants(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	list, err := h.reader.ListParticipants(c.Request.Context(), id, h.limit)
	if err != nil {
		apierror.Respond(c, h.logger, err, "list participants")
		return
	}
	if list == nil {
		list = []models.Participant{}
	}
	response.OK(c, list)
}

// AddParticipant handles POST /admin/events/:id/participants/:uid. Closed and archived events
// accept admin seats.
func (h *Handler) AddParticipant(c *gin.Context) {
	id, uid, ok := eventAndUser(c)
	if !ok {
		return
	}
	res, err := h.coord.AddParticipant(c.Request.Context(), id, uid)
	if err != nil {
		apierror.Respond(c, h.logger, err, "add participant")
		return
	}
	if res.Changed {
		response.Created(c, res)
		return
	}
	response.OK(c, res)
}

// RemoveParticipant handles DELETE /admin/events/:id/participants/:uid[?cancel=true].
func (h *Handler) RemoveParticipant(c *gin.Context) {
	id, uid, ok := eventAndUser(c)
	if !ok {
		return
	}
	cancel, _ := strconv.ParseBool(c.DefaultQuery("cancel", "false"))
	res, err := h.coord.RemoveParticipant(c.Request.Context(), id, uid, roster.RemoveOptions{CancelApplication: cancel})
	if err != nil {
		apierror.Respond(c, h.logger, err, "remove participant")
		return
	}
	response.OK(c, res)
}

// ListWaitlist handles GET /admin/events/:id/waitlist in queue order.
func (h *Handler) ListWaitlist(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	list, err := h.waitlist.List(c.Request.Context(), id)
	if err != nil {
		apierror.Respond(c, h.logger, err, "list waitlist")
		return
	}
	response.OK(c, list)
}

// Promote handles POST /admin/events/:id/waitlist/:uid/promote.
func (h *Handler) Promote(c *gin.Context) {
	id, uid, ok := eventAndUser(c)
	if !ok {
		return
	}
	res, err := h.coord.PromoteFromWaitlist(c.Request.Context(), id, uid)
	if err != nil {
		apierror.Respond(c, h.logger, err, "promote from waitlist")
		return
	}
	response.OK(c, res)
}

// DropWaitlist handles DELETE /admin/events/:id/waitlist/:uid.
func (h *Handler) DropWaitlist(c *gin.Context) {
	id, uid, ok := eventAndUser(c)
	if !ok {
		return
	}
	if err := h.waitlist.Leave(c.Request.Context(), id, uid); err != nil {
		apierror.Respond(c, h.logger, err, "drop waitlist entry")
		return
	}
	response.NoContent(c)
}

// Recount handles POST /admin/events/:id/recount. With ?async=true the repair is left to the worker.
func (h *Handler) Recount(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if c.Query("async") == "true" {
		if h.jobs == nil {
			response.ServiceUnavailable(c, "job queue not configured")
			return
		}
		job, err := h.jobs.EnqueueRecount(c.Request.Context(), id)
		if err != nil {
			apierror.Respond(c, h.logger, err, "enqueue recount")
			return
		}
		response.Accepted(c, gin.H{"job_id": job.ID})
		return
	}
	res, err := h.coord.Recount(c.Request.Context(), id)
	if err != nil {
		apierror.Respond(c, h.logger, err, "recount participants")
		return
	}
	response.OK(c, res)
}

// RecountAll handles POST /admin/recount by enqueueing a sweep for the worker.
func (h *Handler) RecountAll(c *gin.Context) {
	if h.jobs == nil {
		response.ServiceUnavailable(c, "job queue not configured")
		return
	}
	job, err := h.jobs.EnqueueRecountAll(c.Request.Context())
	if err != nil {
		apierror.Respond(c, h.logger, err, "enqueue recount")
		return
	}
	response.Accepted(c, gin.H{"job_id": job.ID})
}

// DeadLetters handles GET /admin/jobs/dead[?limit=].
func (h *Handler) DeadLetters(c *gin.Context) {
	if h.jobs == nil {
		response.ServiceUnavailable(c, "job queue not configured")
		return
	}
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	jobs, err := h.jobs.DeadLetters(c.Request.Context(), limit)
	if err != nil {
		apierror.Respond(c, h.logger, err, "list dead letters")
		return
	}
	response.OK(c, jobs)
}

// RequestExport handles POST /admin/events/:id/exports.
func (h *Handler) RequestExport(c *gin.Context) {
	if h.exports == nil {
		response.ServiceUnavailable(c, "exports not configured")
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	exp, err := h.exports.Request(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		apierror.Respond(c, h.logger, err, "request export")
		return
	}
	response.Accepted(c, exp)
}

// ExportStatus handles GET /admin/exports/:export_id.
func (h *Handler) ExportStatus(c *gin.Context) {
	if h.exports == nil {
		response.ServiceUnavailable(c, "exports not configured")
		return
	}
	id, ok := parseID(c, "export_id")
	if !ok {
		return
	}
	st, err := h.exports.Status(c.Request.Context(), id)
	if err != nil {
		apierror.Respond(c, h.logger, err, "get export")
		return
	}
	response.OK(c, st)
}

func (h *Handler) refresh(c *gin.Context, eventID uuid.UUID) {
	if h.notifier != nil {
		h.notifier.Refresh(c.Request.Context(), eventID)
	}
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		response.BadRequest(c, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}

func eventAndUser(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	id, ok := parseID(c, "id")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	uid, ok := parseID(c, "uid")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return id, uid, true
}
