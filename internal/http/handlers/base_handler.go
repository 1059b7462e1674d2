// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"schoolride/internal/http/middleware"
	"schoolride/internal/modules/location"
	"schoolride/internal/modules/ride"
	"schoolride/internal/modules/route"
	"schoolride/internal/modules/subscription"
	"schoolride/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeServiceError maps module sentinels to status codes. Unknown errors are
// attached to the context for the logging middleware and reported as 500.
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, subscription.ErrInvalidInput),
		errors.Is(err, route.ErrBadRequest),
		errors.Is(err, location.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, subscription.ErrNotFound),
		errors.Is(err, subscription.ErrSchoolNotFound),
		errors.Is(err, route.ErrNotFound),
		errors.Is(err, route.ErrSchoolNotFound),
		errors.Is(err, ride.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, route.ErrNotProposedToDriver):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, route.ErrDriverUnavailable):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, subscription.ErrInvalidState),
		errors.Is(err, subscription.ErrConflict),
		errors.Is(err, subscription.ErrCheckpointConflict),
		errors.Is(err, subscription.ErrGenerationInProgress),
		errors.Is(err, route.ErrInvalidState),
		errors.Is(err, route.ErrConflict),
		errors.Is(err, ride.ErrDuplicate):
		writeError(c, http.StatusConflict, err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// requireSelfDriver allows a driver to act only on their own id. Admins pass.
func requireSelfDriver(c *gin.Context, driverID string) bool {
	actor := middleware.Caller(c)
	if actor.Role == types.RoleAdmin {
		return true
	}
	if actor.Role != types.RoleDriver {
		writeError(c, http.StatusForbidden, "forbidden: driver role required")
		return false
	}
	if string(actor.ID) != driverID {
		writeError(c, http.StatusForbidden, "forbidden: id does not match authenticated user")
		return false
	}
	return true
}

func requireAdmin(c *gin.Context) bool {
	if middleware.CallerRole(c) != types.RoleAdmin {
		writeError(c, http.StatusForbidden, "forbidden: admin role required")
		return false
	}
	return true
}
