// README: Ride request aggregate, bids, and the bidding lifecycle as code.
package ride

import (
	"time"

	"ridebid/internal/types"
)

type Status string

const (
	StatusOpenForBids Status = "open_for_bids"
	StatusPending     Status = "pending"
	StatusBidding     Status = "bidding"
	StatusAccepted    Status = "accepted"
	StatusRejected    Status = "rejected"
	StatusCancelled   Status = "cancelled"
	StatusExpired     Status = "expired"
	StatusCompleted   Status = "completed"
)

type RideRequest struct {
	ID                     string
	RiderID                string
	Pickup                 types.Location
	Dropoff                types.Location
	EstimatedDistanceMiles float64
	EstimatedPrice         types.Money
	Status                 Status
	StatusVersion          int
	AvailableDrivers       []string
	Bids                   []Bid
	AcceptedDriverID       *string
	CreatedAt              time.Time
	AcceptedAt             *time.Time
	CancelledAt            *time.Time
}

// Bid is append-only: amounts are validated and clamped at submission and
// never mutated afterwards.
type Bid struct {
	ID          string
	RideID      string
	DriverID    string
	Amount      types.Money
	BidType     string
	SubmittedAt time.Time
	DriverInfo  DriverSnapshot
}

// DriverSnapshot freezes the driver details shown to the rider at bid time.
type DriverSnapshot struct {
	Name    string  `json:"name"`
	Rating  float64 `json:"rating"`
	Vehicle string  `json:"vehicle"`
}

// AllowedTransitions represents the bidding lifecycle (diagram) as code.
// Only the transition into StatusAccepted goes through the atomic
// single-winner commit; everything else is a plain conditional status write.
var AllowedTransitions = map[Status][]Status{
	StatusOpenForBids: {StatusBidding, StatusAccepted, StatusCancelled, StatusExpired},
	StatusPending:     {StatusOpenForBids, StatusBidding, StatusAccepted, StatusCancelled, StatusExpired},
	StatusBidding:     {StatusAccepted, StatusCancelled, StatusExpired},
	StatusAccepted:    {StatusCompleted, StatusCancelled},
	StatusRejected:    {StatusCancelled},
	StatusExpired:     {StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// BidAcceptable reports whether a ride in this status can still commit a
// winner.
func BidAcceptable(s Status) bool {
	return s == StatusOpenForBids || s == StatusPending || s == StatusBidding
}

// bidAcceptableStatuses is the SQL-side mirror of BidAcceptable; keep in sync.
var bidAcceptableStatuses = []string{
	string(StatusOpenForBids), string(StatusPending), string(StatusBidding),
}
