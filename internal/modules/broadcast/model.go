// README: Open-ride snapshots broadcast to drivers, and the visibility predicate.
package broadcast

import (
	"time"

	"ridebid/internal/types"
)

// RideStatus values under which a request is still open to new bids.
const (
	StatusOpenForBids = "open_for_bids"
	StatusPending     = "pending"
)

// OpenRide is the broadcast view of a ride request: just enough for a driver
// to decide whether to bid.
type OpenRide struct {
	RideID                 string         `json:"ride_id"`
	Pickup                 types.Location `json:"pickup"`
	Dropoff                types.Location `json:"dropoff"`
	EstimatedDistanceMiles float64        `json:"estimated_distance_miles"`
	EstimatedPrice         types.Money    `json:"estimated_price"`
	Status                 string         `json:"status"`
	AvailableDrivers       []string       `json:"available_drivers"`
	CreatedAt              time.Time      `json:"created_at"`
}

// VisibleTo is the single predicate both query tiers share, so the indexed
// and fallback paths cannot disagree on correctness.
//
// A ride is visible to a driver when the driver is in its available set, its
// status still allows bids, it is fresh, and the driver has not already
// declined or bid on it.
func (r OpenRide) VisibleTo(driverID string, declined map[string]bool, now time.Time, freshness time.Duration) bool {
	if declined[r.RideID] {
		return false
	}
	if r.Status != StatusOpenForBids && r.Status != StatusPending {
		return false
	}
	if now.Sub(r.CreatedAt) > freshness {
		return false
	}
	for _, d := range r.AvailableDrivers {
		if d == driverID {
			return true
		}
	}
	return false
}

// Stream event names pushed over the hub.
const (
	EventRideAvailable = "ride_available"
	EventRideWithdrawn = "ride_withdrawn"
)

// StreamEvent is the wire shape sent to connected drivers.
type StreamEvent struct {
	Event  string    `json:"event"`
	Ride   *OpenRide `json:"ride,omitempty"`
	RideID string    `json:"ride_id"`
}
