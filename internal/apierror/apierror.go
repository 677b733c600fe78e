// Package apierror maps domain errors onto the JSON response envelope.
package apierror

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/blok13/clanportal/internal/models"
	"github.com/blok13/clanportal/pkg/response"
)

// Respond writes the response matching err. Unclassified errors are logged and reported as
// "failed to <action>" so internals do not leak to clients.
func Respond(c *gin.Context, logger *zap.Logger, err error, action string) {
	var reqErr *models.RequirementsError
	switch {
	case errors.As(err, &reqErr):
		response.UnprocessableEntity(c, models.ErrRequirementsNotMet.Error(), gin.H{"missing": reqErr.Missing})
	case models.IsValidation(err):
		response.BadRequest(c, err.Error())
	case models.IsNotFound(err):
		response.NotFound(c, err.Error())
	case models.IsConflict(err):
		response.Conflict(c, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		response.ServiceUnavailable(c, "request cancelled")
	default:
		if logger != nil {
			logger.Error(action+" failed", zap.Error(err), zap.String("path", c.FullPath()))
		}
		response.Internal(c, "failed to "+action)
	}
}
