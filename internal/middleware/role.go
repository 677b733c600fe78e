package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blok13/clanportal/internal/apierror"
	"github.com/blok13/clanportal/internal/models"
	"github.com/blok13/clanportal/pkg/response"
)

// RoleStore returns the user's stored profile, creating it from the token claims on first contact.
type RoleStore interface {
	Ensure(ctx context.Context, uid uuid.UUID, displayName string, role models.Role) (*models.Profile, error)
}

// StoredRole replaces the token's role with the role stored on the user's profile, so role changes
// by an admin apply to tokens already issued. Must run after JWT.
func StoredRole(store RoleStore, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		p, err := store.Ensure(c.Request.Context(), UserID(c), c.GetString(ContextDisplayName),
			models.Role(c.GetString(ContextUserRole)))
		if err != nil {
			apierror.Respond(c, logger, err, "resolve role")
			c.Abort()
			return
		}
		c.Set(ContextUserRole, string(p.Role))
		c.Next()
	}
}

// RequireRole returns a middleware that allows only the given roles.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[string]struct{})
	for _, r := range roles {
		allowed[string(r)] = struct{}{}
	}
	return func(c *gin.Context) {
		roleVal, ok := c.Get(ContextUserRole)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		role, _ := roleVal.(string)
		if _, ok := allowed[role]; !ok {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireClanMember lets clan members and admins through. Events are not visible to other users.
func RequireClanMember() gin.HandlerFunc {
	return RequireRole(models.RoleMember, models.RoleAdmin)
}
