// README: Reliability state: cooldowns, per-ride locks, cancel events, metrics, scores.
package reliability

import "time"

// Eligibility reason codes surfaced to drivers.
const (
	ReasonCooldownActive   = "cooldown_active"
	ReasonLockedAfterCancel = "locked_after_cancel"
)

// CooldownStatus is the read-side view of a driver's global cooldown.
type CooldownStatus struct {
	Active            bool   `json:"active"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
	Reason            string `json:"reason,omitempty"`
}

// CooldownRow is the persisted cooldown record. Until is nil when no cooldown
// is active; the row itself is kept for audit history.
type CooldownRow struct {
	DriverID  string
	Until     *time.Time
	Reason    *string
	UpdatedAt time.Time
}

// Eligibility is the composed answer to "may this driver bid on this ride".
type Eligibility struct {
	CanBid            bool   `json:"can_bid"`
	ReasonCode        string `json:"reason_code,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// CancelEvent records a driver cancelling an awarded ride. Exempt reason codes
// are auto-validated at creation; everything else stays provisional until a
// separate review step flips Validated.
type CancelEvent struct {
	ID          string
	RideID      string
	DriverID    string
	ReasonCode  string
	Provisional bool
	Validated   bool
	Exempted    bool
	Metadata    map[string]string
	CreatedAt   time.Time
}

// MetricsDelta is an additive update to a driver's daily counters.
type MetricsDelta struct {
	Awarded       int
	Accepted      int
	Cancels       int
	OntimePickups int
	TotalPickups  int
	HonoredBids   int
}

// Aggregate is the window sum of daily metrics fed into the score formula.
type Aggregate struct {
	Awarded       int
	Accepted      int
	DriverCancels int
	OntimePickups int
	TotalPickups  int
	HonoredBids   int
}

// Score is a computed 0-100 reliability score with its component rates.
type Score struct {
	Value            float64 `json:"score"`
	AcceptanceRate   float64 `json:"acceptance_rate"`
	CancellationRate float64 `json:"cancellation_rate"`
	OntimeArrival    float64 `json:"ontime_arrival"`
	BidHonoring      float64 `json:"bid_honoring"`
}

// ScoreResult is what callers get back from a recomputation. HasData is false
// when the window holds fewer accepted rides than the configured minimum; in
// that case nothing is persisted.
type ScoreResult struct {
	DriverID    string     `json:"driver_id"`
	HasData     bool       `json:"has_data"`
	Score       *Score     `json:"score,omitempty"`
	TotalRides  int        `json:"total_rides"`
	WindowStart time.Time  `json:"window_start"`
	WindowEnd   time.Time  `json:"window_end"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}
