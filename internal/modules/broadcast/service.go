// README: Broadcast service: maps eligible drivers to open ride requests.
package broadcast

import (
	"context"
	"sort"
	"strings"
	"time"

	"ridebid/internal/logger"
	"ridebid/internal/metrics"
)

// Storage is the transient-state surface backing the broadcaster. *Store
// satisfies it; tests use in-memory fakes.
type Storage interface {
	UpsertOpenRide(ctx context.Context, r OpenRide) error
	RemoveOpenRide(ctx context.Context, rideID string) error
	OpenRidesOrdered(ctx context.Context) ([]OpenRide, error)
	OpenRidesUnordered(ctx context.Context) ([]OpenRide, error)
	MarkDeclined(ctx context.Context, driverID, rideID string) error
	DeclinedSet(ctx context.Context, driverID string) (map[string]bool, error)
	ClearDeclined(ctx context.Context, driverID string) error
	SetActiveBid(ctx context.Context, driverID, rideID string) error
	ClearActiveBid(ctx context.Context, driverID string) error
	ActiveBid(ctx context.Context, driverID string) (string, error)
}

// Pusher delivers stream events to a connected driver. The websocket hub
// implements it; tests substitute a recorder.
type Pusher interface {
	Push(driverID string, data any)
}

type Service struct {
	store     Storage
	pusher    Pusher
	log       logger.Logger
	metrics   *metrics.Collector
	freshness time.Duration

	now func() time.Time
}

func NewService(store Storage, pusher Pusher, log logger.Logger, m *metrics.Collector, freshness time.Duration) *Service {
	return &Service{
		store:     store,
		pusher:    pusher,
		log:       log,
		metrics:   m,
		freshness: freshness,
		now:       time.Now,
	}
}

// Publish registers a ride as open for bids and pushes it to every listed
// driver who can currently see it.
func (s *Service) Publish(ctx context.Context, r OpenRide) error {
	if err := s.store.UpsertOpenRide(ctx, r); err != nil {
		return err
	}
	now := s.now()
	for _, driverID := range r.AvailableDrivers {
		if paused, _ := s.isPaused(ctx, driverID); paused {
			continue
		}
		declined, err := s.store.DeclinedSet(ctx, driverID)
		if err != nil {
			s.log.Warnf("declined-set read failed for %s: %v", driverID, err)
			declined = map[string]bool{}
		}
		if !r.VisibleTo(driverID, declined, now, s.freshness) {
			continue
		}
		ride := r
		s.pusher.Push(driverID, StreamEvent{Event: EventRideAvailable, Ride: &ride, RideID: r.RideID})
	}
	return nil
}

// Withdraw removes a ride from the open set and tells its drivers it is gone.
func (s *Service) Withdraw(ctx context.Context, rideID string, driverIDs []string) error {
	if err := s.store.RemoveOpenRide(ctx, rideID); err != nil {
		return err
	}
	for _, driverID := range driverIDs {
		s.pusher.Push(driverID, StreamEvent{Event: EventRideWithdrawn, RideID: rideID})
	}
	return nil
}

// OpenRidesFor lists the rides currently visible to a driver, newest last.
// A driver with an unresolved bid sees nothing until the bid resolves.
func (s *Service) OpenRidesFor(ctx context.Context, driverID string) ([]OpenRide, error) {
	paused, err := s.isPaused(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if paused {
		return []OpenRide{}, nil
	}

	declined, err := s.store.DeclinedSet(ctx, driverID)
	if err != nil {
		return nil, err
	}

	rides, err := s.store.OpenRidesOrdered(ctx)
	if err != nil {
		if !IsIndexError(err) {
			return nil, err
		}
		// Degraded path: unordered read plus in-process sort. Same predicate,
		// identical correctness; only efficiency differs.
		s.metrics.BroadcastFallbacks.Inc()
		s.log.Warnf("ordered broadcast read failed, falling back to scan: %v", err)
		rides, err = s.store.OpenRidesUnordered(ctx)
		if err != nil {
			return nil, err
		}
		sort.Slice(rides, func(i, j int) bool {
			return rides[i].CreatedAt.Before(rides[j].CreatedAt)
		})
	}

	now := s.now()
	visible := make([]OpenRide, 0, len(rides))
	for _, r := range rides {
		if r.VisibleTo(driverID, declined, now, s.freshness) {
			visible = append(visible, r)
		}
	}
	return visible, nil
}

// Decline records that a driver passed on a ride; it never becomes visible to
// them again for the rest of the session.
func (s *Service) Decline(ctx context.Context, driverID, rideID string) error {
	return s.store.MarkDeclined(ctx, driverID, rideID)
}

// MarkBidSubmitted pauses the driver's stream (one active bid at a time) and
// makes the ride permanently non-visible to them, bid outcome aside.
func (s *Service) MarkBidSubmitted(ctx context.Context, driverID, rideID string) error {
	if err := s.store.MarkDeclined(ctx, driverID, rideID); err != nil {
		return err
	}
	return s.store.SetActiveBid(ctx, driverID, rideID)
}

// Resume re-opens the driver's stream after their bid resolved. Idempotent:
// resuming an already-resumed driver is a no-op.
func (s *Service) Resume(ctx context.Context, driverID string) error {
	return s.store.ClearActiveBid(ctx, driverID)
}

// Restart is the forced reset: clears the session declined set and any stale
// active-bid flag.
func (s *Service) Restart(ctx context.Context, driverID string) error {
	if err := s.store.ClearDeclined(ctx, driverID); err != nil {
		return err
	}
	return s.store.ClearActiveBid(ctx, driverID)
}

func (s *Service) isPaused(ctx context.Context, driverID string) (bool, error) {
	active, err := s.store.ActiveBid(ctx, driverID)
	if err != nil {
		return false, err
	}
	return active != "", nil
}

// IsIndexError classifies failures of the ordered query path that the
// unordered fallback can serve: the sorted structure being absent or of the
// wrong type, or a backend rejecting the ordered query for a missing index.
func IsIndexError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "wrongtype") || strings.Contains(msg, "index")
}
