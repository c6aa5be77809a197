// README: Ride handlers: create, bid, accept, cancel, complete.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridebid/internal/http/middleware"
	"ridebid/internal/modules/ride"
	"ridebid/internal/types"
)

type RideHandler struct {
	rides *ride.Service
}

func NewRideHandler(svc *ride.Service) *RideHandler {
	return &RideHandler{rides: svc}
}

type createRideReq struct {
	RiderID        string   `json:"rider_id"`
	PickupLat      float64  `json:"pickup_lat"`
	PickupLng      float64  `json:"pickup_lng"`
	PickupAddress  string   `json:"pickup_address"`
	DropoffLat     float64  `json:"dropoff_lat"`
	DropoffLng     float64  `json:"dropoff_lng"`
	DropoffAddress string   `json:"dropoff_address"`
	DistanceMiles  float64  `json:"distance_miles"`
	Drivers        []string `json:"drivers"`
}

func (h *RideHandler) Create(c *gin.Context) {
	var req createRideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.RiderID == "" {
		writeError(c, http.StatusBadRequest, "missing rider_id")
		return
	}
	if middleware.CallerUID(c) != req.RiderID && middleware.CallerRole(c) != "admin" {
		writeError(c, http.StatusForbidden, "cannot create rides for another rider")
		return
	}
	id, err := h.rides.Create(c.Request.Context(), ride.CreateCommand{
		RiderID:                req.RiderID,
		Pickup:                 types.Location{Point: types.Point{Lat: req.PickupLat, Lng: req.PickupLng}, Address: req.PickupAddress},
		Dropoff:                types.Location{Point: types.Point{Lat: req.DropoffLat, Lng: req.DropoffLng}, Address: req.DropoffAddress},
		EstimatedDistanceMiles: req.DistanceMiles,
		AvailableDrivers:       req.Drivers,
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"ride_id": id, "status": ride.StatusOpenForBids})
}

func (h *RideHandler) Get(c *gin.Context) {
	r, err := h.rides.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"ride_id":            r.ID,
		"status":             r.Status,
		"estimated_price":    r.EstimatedPrice.Dollars(),
		"currency":           r.EstimatedPrice.Currency,
		"bids":               len(r.Bids),
		"accepted_driver_id": r.AcceptedDriverID,
	})
}

type submitBidReq struct {
	DriverID      string  `json:"driver_id"`
	Amount        string  `json:"amount"`
	BidType       string  `json:"bid_type"`
	DriverName    string  `json:"driver_name"`
	DriverRating  float64 `json:"driver_rating"`
	DriverVehicle string  `json:"driver_vehicle"`
}

func (h *RideHandler) SubmitBid(c *gin.Context) {
	var req submitBidReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if !requireDriver(c, req.DriverID) {
		return
	}
	out, err := h.rides.SubmitBid(c.Request.Context(), ride.SubmitBidCommand{
		RideID:    c.Param("id"),
		DriverID:  req.DriverID,
		RawAmount: req.Amount,
		BidType:   req.BidType,
		Driver: ride.DriverSnapshot{
			Name:    req.DriverName,
			Rating:  req.DriverRating,
			Vehicle: req.DriverVehicle,
		},
	})
	if err == ride.ErrNotEligible {
		writeJSON(c, http.StatusForbidden, gin.H{
			"error":               "not eligible to bid",
			"reason_code":         out.Eligibility.ReasonCode,
			"retry_after_seconds": out.Eligibility.RetryAfterSeconds,
		})
		return
	}
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{
		"bid_id":      out.Bid.ID,
		"amount":      out.Bid.Amount.Dollars(),
		"currency":    out.Bid.Amount.Currency,
		"was_clamped": out.WasClamped,
	})
}

type acceptBidReq struct {
	DriverID string `json:"driver_id"`
}

func (h *RideHandler) Accept(c *gin.Context) {
	var req acceptBidReq
	if err := c.ShouldBindJSON(&req); err != nil || req.DriverID == "" {
		writeError(c, http.StatusBadRequest, "missing driver_id")
		return
	}
	err := h.rides.AcceptBid(c.Request.Context(), ride.AcceptCommand{
		RideID:   c.Param("id"),
		DriverID: req.DriverID,
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": ride.StatusAccepted, "driver_id": req.DriverID})
}

type cancelRideReq struct {
	ActorType  string            `json:"actor_type"`
	DriverID   string            `json:"driver_id"`
	ReasonCode string            `json:"reason_code"`
	Metadata   map[string]string `json:"metadata"`
}

// Cancel routes by actor: a driver backing out of an awarded ride goes through
// the penalty path; everything else is a plain cancellation.
func (h *RideHandler) Cancel(c *gin.Context) {
	var req cancelRideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}

	if req.ActorType == "driver" {
		if !requireDriver(c, req.DriverID) {
			return
		}
		err := h.rides.HandleDriverCancelAfterAward(c.Request.Context(), ride.DriverCancelCommand{
			RideID:     c.Param("id"),
			DriverID:   req.DriverID,
			ReasonCode: req.ReasonCode,
			Metadata:   req.Metadata,
		})
		if err != nil {
			writeRideError(c, err)
			return
		}
		writeJSON(c, http.StatusOK, gin.H{"status": ride.StatusCancelled})
		return
	}

	err := h.rides.HandleRideCancellation(c.Request.Context(), ride.CancelCommand{
		RideID:    c.Param("id"),
		ActorType: req.ActorType,
		Reason:    req.ReasonCode,
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": ride.StatusCancelled})
}

type completeRideReq struct {
	OntimePickup bool `json:"ontime_pickup"`
}

func (h *RideHandler) Complete(c *gin.Context) {
	var req completeRideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.rides.CompleteRide(c.Request.Context(), ride.CompleteCommand{
		RideID:       c.Param("id"),
		OntimePickup: req.OntimePickup,
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": ride.StatusCompleted})
}
