// README: Outbound event gateway consumed by push/UI systems.
package notify

import "context"

type EventType string

const (
	EventBidAccepted   EventType = "bid_accepted"
	EventBidRejected   EventType = "bid_rejected"
	EventRideCancelled EventType = "ride_cancelled"
	EventRideCompleted EventType = "ride_completed"
)

// Event is the only thing this subsystem emits; delivery, sound, and UI are
// the consumer's problem.
type Event struct {
	Type     EventType         `json:"type"`
	RideID   string            `json:"ride_id"`
	DriverID string            `json:"driver_id"`
	Payload  map[string]string `json:"payload,omitempty"`
}

type Gateway interface {
	Publish(ctx context.Context, ev Event) error
}

// Multi fans an event out to several gateways. Delivery is best-effort per
// gateway; the first error is returned after all gateways were attempted.
type Multi struct {
	gateways []Gateway
}

func NewMulti(gateways ...Gateway) *Multi {
	return &Multi{gateways: gateways}
}

func (m *Multi) Publish(ctx context.Context, ev Event) error {
	var firstErr error
	for _, g := range m.gateways {
		if err := g.Publish(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Nop discards events; used in tests and when no push backend is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
