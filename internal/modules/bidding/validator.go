// README: Bid amount validation and clamping against distance-derived bounds.
package bidding

import (
	"math"
	"strconv"
)

type ClampDirection string

const (
	ClampNone ClampDirection = "none"
	ClampUp   ClampDirection = "up"
	ClampDown ClampDirection = "down"
)

// Result is the normalized outcome of validating a raw bid amount. Amount is
// in dollars, rounded half-up to 2 decimal places.
type Result struct {
	Amount         float64
	WasClamped     bool
	ClampDirection ClampDirection
}

// Validator bounds bids to [MinimumFare, MinimumFare + distance*MaxPerMile].
// FallbackDistanceMiles substitutes for a missing or non-positive distance.
type Validator struct {
	MinimumFare           float64
	MaxPerMile            float64
	FallbackDistanceMiles float64
}

func NewValidator(minimumFare, maxPerMile, fallbackDistanceMiles float64) *Validator {
	return &Validator{
		MinimumFare:           minimumFare,
		MaxPerMile:            maxPerMile,
		FallbackDistanceMiles: fallbackDistanceMiles,
	}
}

// Validate normalizes a raw dollar amount. Malformed input is never an error:
// NaN and infinities resolve to the minimum fare. The function is
// deterministic, side-effect free, and idempotent over its own output.
func (v *Validator) Validate(rawAmount, distanceMiles float64) Result {
	if distanceMiles <= 0 || math.IsNaN(distanceMiles) || math.IsInf(distanceMiles, 0) {
		distanceMiles = v.FallbackDistanceMiles
	}
	ceiling := round2(v.MinimumFare + distanceMiles*v.MaxPerMile)

	if math.IsNaN(rawAmount) || math.IsInf(rawAmount, 0) {
		return Result{Amount: round2(v.MinimumFare), WasClamped: true, ClampDirection: ClampUp}
	}

	amount := round2(rawAmount)
	switch {
	case amount < v.MinimumFare:
		return Result{Amount: round2(v.MinimumFare), WasClamped: true, ClampDirection: ClampUp}
	case amount > ceiling:
		return Result{Amount: ceiling, WasClamped: true, ClampDirection: ClampDown}
	default:
		return Result{Amount: amount, WasClamped: false, ClampDirection: ClampNone}
	}
}

// ValidateString parses then validates. Unparseable input resolves to the
// minimum fare, mirroring the NaN handling.
func (v *Validator) ValidateString(raw string, distanceMiles float64) Result {
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		amount = math.NaN()
	}
	return v.Validate(amount, distanceMiles)
}

// round2 rounds half-up to 2 decimal places. Half-up, not half-to-even: the
// result is driver-visible pricing and "x.005 rounds up" is what people expect.
func round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
