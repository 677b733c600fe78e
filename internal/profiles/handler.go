package profiles

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blok13/clanportal/internal/apierror"
	"github.com/blok13/clanportal/internal/middleware"
	"github.com/blok13/clanportal/internal/models"
	"github.com/blok13/clanportal/pkg/response"
)

// UpdateProfileRequest is the body for PATCH /me.
type UpdateProfileRequest struct {
	DisplayName string `json:"display_name" binding:"required,max=64"`
	PhotoURL    string `json:"photo_url" binding:"omitempty,url"`
}

// SetRoleRequest is the body for PUT /profiles/:uid/role.
type SetRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=admin member user"`
}

// Handler handles profile HTTP endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a profiles handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// Me handles GET /me. The profile row is created on first contact from the token claims.
func (h *Handler) Me(c *gin.Context) {
	uid := middleware.UserID(c)
	p, err := h.repo.Ensure(c.Request.Context(), uid, c.GetString(middleware.ContextDisplayName),
		models.Role(c.GetString(middleware.ContextUserRole)))
	if err != nil {
		apierror.Respond(c, h.logger, err, "load profile")
		return
	}
	response.OK(c, p)
}

// UpdateMe handles PATCH /me.
func (h *Handler) UpdateMe(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p, err := h.repo.UpdateDisplay(c.Request.Context(), middleware.UserID(c), req.DisplayName, req.PhotoURL)
	if err != nil {
		apierror.Respond(c, h.logger, err, "update profile")
		return
	}
	response.OK(c, p)
}

// UpdateMyStats handles PUT /me/stats. Body is the 8-key stat object.
func (h *Handler) UpdateMyStats(c *gin.Context) {
	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p, err := h.repo.UpdateStats(c.Request.Context(), middleware.UserID(c), raw)
	if err != nil {
		apierror.Respond(c, h.logger, err, "update stats")
		return
	}
	response.OK(c, p)
}

// MyEvents handles GET /me/events.
func (h *Handler) MyEvents(c *gin.Context) {
	list, err := h.repo.ListMyEvents(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		apierror.Respond(c, h.logger, err, "list my events")
		return
	}
	if list == nil {
		list = []models.MyEvent{}
	}
	response.OK(c, list)
}

// Get handles GET /profiles/:uid.
func (h *Handler) Get(c *gin.Context) {
	uid, err := uuid.Parse(c.Param("uid"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	p, err := h.repo.GetProfile(c.Request.Context(), uid)
	if err != nil {
		apierror.Respond(c, h.logger, err, "get profile")
		return
	}
	response.OK(c, p)
}

// ListMembers handles GET /members.
func (h *Handler) ListMembers(c *gin.Context) {
	list, err := h.repo.ListMembers(c.Request.Context(), 0)
	if err != nil {
		apierror.Respond(c, h.logger, err, "list members")
		return
	}
	response.OK(c, list)
}

// SetRole handles PUT /profiles/:uid/role (admin only).
func (h *Handler) SetRole(c *gin.Context) {
	uid, err := uuid.Parse(c.Param("uid"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	var req SetRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.repo.SetRole(c.Request.Context(), uid, models.Role(req.Role)); err != nil {
		apierror.Respond(c, h.logger, err, "set role")
		return
	}
	h.logger.Info("role changed", zap.String("user_id", uid.String()), zap.String("role", req.Role),
		zap.String("by", middleware.UserID(c).String()))
	response.OK(c, gin.H{"uid": uid, "role": req.Role})
}
