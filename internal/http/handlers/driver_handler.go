// README: Driver handlers: open rides, decline, restart, eligibility, score.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridebid/internal/modules/broadcast"
	"ridebid/internal/modules/reliability"
)

// TokenSaver persists a driver's push registration token.
type TokenSaver interface {
	SaveToken(ctx context.Context, driverID, token string) error
}

type DriverHandler struct {
	reliability *reliability.Service
	broadcast   *broadcast.Service
	tokens      TokenSaver
}

func NewDriverHandler(rel *reliability.Service, bc *broadcast.Service, tokens TokenSaver) *DriverHandler {
	return &DriverHandler{reliability: rel, broadcast: bc, tokens: tokens}
}

func (h *DriverHandler) OpenRides(c *gin.Context) {
	driverID := c.Param("id")
	if !requireDriver(c, driverID) {
		return
	}
	rides, err := h.broadcast.OpenRidesFor(c.Request.Context(), driverID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"rides": rides})
}

type declineReq struct {
	RideID string `json:"ride_id"`
}

func (h *DriverHandler) Decline(c *gin.Context) {
	driverID := c.Param("id")
	if !requireDriver(c, driverID) {
		return
	}
	var req declineReq
	if err := c.ShouldBindJSON(&req); err != nil || req.RideID == "" {
		writeError(c, http.StatusBadRequest, "missing ride_id")
		return
	}
	if err := h.broadcast.Decline(c.Request.Context(), driverID, req.RideID); err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"declined": req.RideID})
}

func (h *DriverHandler) Restart(c *gin.Context) {
	driverID := c.Param("id")
	if !requireDriver(c, driverID) {
		return
	}
	if err := h.broadcast.Restart(c.Request.Context(), driverID); err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"restarted": driverID})
}

type registerDeviceReq struct {
	Token string `json:"token"`
}

func (h *DriverHandler) RegisterDevice(c *gin.Context) {
	driverID := c.Param("id")
	if !requireDriver(c, driverID) {
		return
	}
	var req registerDeviceReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		writeError(c, http.StatusBadRequest, "missing token")
		return
	}
	if err := h.tokens.SaveToken(c.Request.Context(), driverID, req.Token); err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"registered": driverID})
}

func (h *DriverHandler) Eligibility(c *gin.Context) {
	driverID := c.Param("id")
	if !requireDriver(c, driverID) {
		return
	}
	el := h.reliability.CheckBidEligibility(c.Request.Context(), driverID, c.Query("ride_id"))
	writeJSON(c, http.StatusOK, el)
}

func (h *DriverHandler) Score(c *gin.Context) {
	driverID := c.Param("id")
	if !requireDriver(c, driverID) {
		return
	}
	res := h.reliability.GetScore(c.Request.Context(), driverID)
	if !res.HasData {
		writeJSON(c, http.StatusOK, gin.H{"driver_id": driverID, "has_data": false})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"driver_id":         driverID,
		"has_data":          true,
		"score":             res.Score.Value,
		"acceptance_rate":   res.Score.AcceptanceRate,
		"cancellation_rate": res.Score.CancellationRate,
		"ontime_arrival":    res.Score.OntimeArrival,
		"bid_honoring":      res.Score.BidHonoring,
		"total_rides":       res.TotalRides,
		"window_start":      res.WindowStart,
		"window_end":        res.WindowEnd,
	})
}
