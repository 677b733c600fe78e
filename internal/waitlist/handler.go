package waitlist

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blok13/clanportal/internal/apierror"
	"github.com/blok13/clanportal/internal/middleware"
	"github.com/blok13/clanportal/pkg/response"
)

// Handler serves the member's own waitlist endpoints.
type Handler struct {
	queue  *Queue
	logger *zap.Logger
}

// NewHandler creates a waitlist handler.
func NewHandler(queue *Queue, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{queue: queue, logger: logger}
}

// Join handles POST /events/:id/waitlist. 201 when queued, 200 when already queued.
func (h *Handler) Join(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	entry, created, err := h.queue.Join(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		apierror.Respond(c, h.logger, err, "join waitlist")
		return
	}
	if created {
		response.Created(c, entry)
		return
	}
	response.OK(c, entry)
}

// Leave handles DELETE /events/:id/waitlist/me.
func (h *Handler) Leave(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	if err := h.queue.Leave(c.Request.Context(), id, middleware.UserID(c)); err != nil {
		apierror.Respond(c, h.logger, err, "leave waitlist")
		return
	}
	response.NoContent(c)
}

// Mine handles GET /events/:id/waitlist/me.
func (h *Handler) Mine(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	entry, err := h.queue.Get(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		apierror.Respond(c, h.logger, err, "get waitlist entry")
		return
	}
	response.OK(c, entry)
}

func eventID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return uuid.Nil, false
	}
	return id, true
}
