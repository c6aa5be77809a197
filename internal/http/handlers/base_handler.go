// README: Base handler utilities (JSON helpers, error mapping, role checks).
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridebid/internal/http/middleware"
	"ridebid/internal/modules/ride"
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

func writeRideError(c *gin.Context, err error) {
	switch err {
	case ride.ErrBadRequest:
		writeError(c, http.StatusBadRequest, err.Error())
	case ride.ErrNotFound:
		writeError(c, http.StatusNotFound, err.Error())
	case ride.ErrInvalidState, ride.ErrConflict, ride.ErrAlreadyAccepted:
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// requireDriver checks the caller holds the driver role and acts on their own
// behalf. Admins may act for any driver.
func requireDriver(c *gin.Context, driverID string) bool {
	role := middleware.CallerRole(c)
	if role == "admin" {
		return true
	}
	if role != "driver" {
		writeError(c, http.StatusForbidden, "driver role required")
		return false
	}
	if middleware.CallerUID(c) != driverID {
		writeError(c, http.StatusForbidden, "cannot act for another driver")
		return false
	}
	return true
}
