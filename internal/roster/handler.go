package roster

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blok13/clanportal/internal/apierror"
	"github.com/blok13/clanportal/internal/middleware"
	"github.com/blok13/clanportal/pkg/response"
)

// Handler serves member seat endpoints.
type Handler struct {
	coord  *Coordinator
	reader Reader
	limit  int
	logger *zap.Logger
}

// NewHandler creates a roster handler. limit caps the participant list (0 = 500).
func NewHandler(coord *Coordinator, reader Reader, limit int, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limit <= 0 {
		limit = 500
	}
	return &Handler{coord: coord, reader: reader, limit: limit, logger: logger}
}

// Join handles POST /events/:id/join on auto-approve events. 201 when seated, 200 when already seated.
func (h *Handler) Join(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	res, err := h.coord.JoinEventAuto(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		apierror.Respond(c, h.logger, err, "join event")
		return
	}
	if res.Changed {
		response.Created(c, res)
		return
	}
	response.OK(c, res)
}

// Leave handles POST /events/:id/leave. The member's application is canceled with the seat.
func (h *Handler) Leave(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	res, err := h.coord.RemoveParticipant(c.Request.Context(), id, middleware.UserID(c), RemoveOptions{CancelApplication: true})
	if err != nil {
		apierror.Respond(c, h.logger, err, "leave event")
		return
	}
	response.OK(c, res)
}

// Participants handles GET /events/:id/participants, ordered by join time.
func (h *Handler) Participants(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	list, err := h.reader.ListParticipants(c.Request.Context(), id, h.limit)
	if err != nil {
		apierror.Respond(c, h.logger, err, "list participants")
		return
	}
	if list == nil {
		response.OK(c, []any{})
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
