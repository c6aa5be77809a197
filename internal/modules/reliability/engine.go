// README: Pure policy engine: exemption table, cooldown durations, score formula.
package reliability

import "time"

// exemptCancelCodes lists cancellation causes that never incur a penalty even
// though the event is still logged.
var exemptCancelCodes = map[string]bool{
	"rider_no_show":     true,
	"safety_concern":    true,
	"vehicle_breakdown": true,
	"rider_requested":   true,
}

// EngineConfig carries the tunable policy knobs. Weights apply to the four
// component rates and should sum to 1.
type EngineConfig struct {
	DefaultCooldown    time.Duration
	MinTripsForScore   int
	AcceptanceWeight   float64
	CancellationWeight float64
	OntimeWeight       float64
	HonoringWeight     float64
}

func DefaultEngineConfig(cooldown time.Duration, minTrips int) EngineConfig {
	return EngineConfig{
		DefaultCooldown:    cooldown,
		MinTripsForScore:   minTrips,
		AcceptanceWeight:   0.30,
		CancellationWeight: 0.30,
		OntimeWeight:       0.25,
		HonoringWeight:     0.15,
	}
}

// Engine is stateless; every method depends only on its inputs and the config.
type Engine struct {
	cfg EngineConfig
}

func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{cfg: cfg}
}

// IsExemptCancelCode reports whether a cancellation cause is excluded from
// penalties by policy.
func (e *Engine) IsExemptCancelCode(code string) bool {
	return exemptCancelCodes[code]
}

// CooldownDuration returns the cooldown to apply for a cancel with the given
// reason code. Currently one flat policy duration; the reason parameter is the
// hook for per-reason overrides.
func (e *Engine) CooldownDuration(reasonCode string) time.Duration {
	return e.cfg.DefaultCooldown
}

// CalculateScore combines four component rates into a 0-100 score, or returns
// nil when the window holds fewer accepted rides than the configured minimum.
// A higher cancellation rate lowers the score; the other three raise it.
func (e *Engine) CalculateScore(agg Aggregate) *Score {
	if agg.Accepted < e.cfg.MinTripsForScore {
		return nil
	}

	// Zero denominators mean no evidence either way: positive rates default
	// to 1 (no observed failures), the cancellation rate defaults to 0.
	acceptance := rate(agg.Accepted, agg.Awarded, 1)
	cancellation := rate(agg.DriverCancels, agg.Accepted, 0)
	ontime := rate(agg.OntimePickups, agg.TotalPickups, 1)
	honoring := rate(agg.HonoredBids, agg.Awarded, 1)

	weighted := e.cfg.AcceptanceWeight*acceptance +
		e.cfg.CancellationWeight*(1-cancellation) +
		e.cfg.OntimeWeight*ontime +
		e.cfg.HonoringWeight*honoring

	return &Score{
		Value:            clamp01(weighted) * 100,
		AcceptanceRate:   acceptance,
		CancellationRate: cancellation,
		OntimeArrival:    ontime,
		BidHonoring:      honoring,
	}
}

func rate(num, den int, whenUndefined float64) float64 {
	if den <= 0 {
		return whenUndefined
	}
	return clamp01(float64(num) / float64(den))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
