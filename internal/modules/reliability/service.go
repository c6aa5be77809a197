// README: Reliability service: fail-open reads, strict writes, score recomputation.
package reliability

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ridebid/internal/logger"
)

// Storage is the persistence surface the service needs. *Store satisfies it;
// tests substitute fakes to exercise the fail-open paths.
type Storage interface {
	GetCooldownRow(ctx context.Context, driverID string) (*CooldownRow, error)
	UpsertCooldown(ctx context.Context, driverID string, until time.Time, reason string) error
	ClearCooldown(ctx context.Context, driverID string) error
	HasLock(ctx context.Context, driverID, rideID string) (bool, error)
	UpsertLock(ctx context.Context, driverID, rideID string) error
	InsertCancelEvent(ctx context.Context, ev *CancelEvent) error
	AddDailyMetrics(ctx context.Context, driverID string, day time.Time, d MetricsDelta) error
	AggregateMetrics(ctx context.Context, driverID string, from, to time.Time) (Aggregate, error)
	UpsertScore(ctx context.Context, driverID string, sc Score, totalRides int, windowStart, windowEnd time.Time) error
	GetScore(ctx context.Context, driverID string) (*ScoreResult, error)
}

type Service struct {
	store      Storage
	engine     *Engine
	log        logger.Logger
	windowDays int

	// injectable clock for tests
	now func() time.Time
}

func NewService(store Storage, engine *Engine, log logger.Logger, windowDays int) *Service {
	return &Service{
		store:      store,
		engine:     engine,
		log:        log,
		windowDays: windowDays,
		now:        time.Now,
	}
}

func (s *Service) Engine() *Engine {
	return s.engine
}

// CooldownDuration exposes the engine's cooldown policy to callers that hold
// only the service.
func (s *Service) CooldownDuration(reasonCode string) time.Duration {
	return s.engine.CooldownDuration(reasonCode)
}

// GetCooldown reads the driver's cooldown with lazy expiry: an expired
// timestamp is reported inactive and cleared best-effort in the background.
// Any storage error fails open so an infra fault never blocks a driver.
func (s *Service) GetCooldown(ctx context.Context, driverID string) CooldownStatus {
	row, err := s.store.GetCooldownRow(ctx, driverID)
	if err == ErrNotFound {
		return CooldownStatus{Active: false}
	}
	if err != nil {
		s.log.Warnw("cooldown read failed, failing open", map[string]any{
			"driver_id": driverID, "error": err.Error(),
		})
		return CooldownStatus{Active: false}
	}
	if row.Until == nil {
		return CooldownStatus{Active: false}
	}

	now := s.now()
	if !row.Until.After(now) {
		// Expired: clean up lazily, off the request path.
		go func() {
			cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.store.ClearCooldown(cctx, driverID); err != nil {
				s.log.Warnf("lazy cooldown cleanup failed for %s: %v", driverID, err)
			}
		}()
		return CooldownStatus{Active: false}
	}

	status := CooldownStatus{
		Active:            true,
		RetryAfterSeconds: int(row.Until.Sub(now).Seconds()) + 1,
	}
	if row.Reason != nil {
		status.Reason = *row.Reason
	}
	return status
}

func (s *Service) ApplyCooldown(ctx context.Context, driverID string, duration time.Duration, reason string) error {
	return s.store.UpsertCooldown(ctx, driverID, s.now().Add(duration), reason)
}

func (s *Service) RemoveCooldown(ctx context.Context, driverID string) error {
	return s.store.ClearCooldown(ctx, driverID)
}

// CheckBidEligibility composes the global cooldown with the per-ride lock.
// Cooldown first: it is the cheaper and more common block. Fails open on
// storage errors.
func (s *Service) CheckBidEligibility(ctx context.Context, driverID, rideID string) Eligibility {
	cd := s.GetCooldown(ctx, driverID)
	if cd.Active {
		return Eligibility{
			CanBid:            false,
			ReasonCode:        ReasonCooldownActive,
			RetryAfterSeconds: cd.RetryAfterSeconds,
		}
	}

	locked, err := s.store.HasLock(ctx, driverID, rideID)
	if err != nil {
		s.log.Warnw("eligibility lock read failed, failing open", map[string]any{
			"driver_id": driverID, "ride_id": rideID, "error": err.Error(),
		})
		return Eligibility{CanBid: true}
	}
	if locked {
		return Eligibility{CanBid: false, ReasonCode: ReasonLockedAfterCancel}
	}
	return Eligibility{CanBid: true}
}

func (s *Service) LockEligibility(ctx context.Context, driverID, rideID string) error {
	return s.store.UpsertLock(ctx, driverID, rideID)
}

// RecordCancelEvent persists a cancel-after-award event and reports whether
// the reason code is exempt from penalties. Exempt events are auto-validated.
func (s *Service) RecordCancelEvent(ctx context.Context, rideID, driverID, reasonCode string, metadata map[string]string) (bool, error) {
	exempted := s.engine.IsExemptCancelCode(reasonCode)
	ev := &CancelEvent{
		ID:          uuid.NewString(),
		RideID:      rideID,
		DriverID:    driverID,
		ReasonCode:  reasonCode,
		Provisional: !exempted,
		Validated:   exempted,
		Exempted:    exempted,
		Metadata:    metadata,
		CreatedAt:   s.now(),
	}
	if err := s.store.InsertCancelEvent(ctx, ev); err != nil {
		return false, err
	}
	return exempted, nil
}

// UpdateDailyMetrics buckets the delta on the UTC date of the current instant.
func (s *Service) UpdateDailyMetrics(ctx context.Context, driverID string, delta MetricsDelta) error {
	return s.store.AddDailyMetrics(ctx, driverID, s.now().UTC(), delta)
}

// ComputeAndPersistScore re-aggregates the trailing window and derives the
// score fresh. Below the minimum sample size it returns HasData=false and
// writes nothing.
func (s *Service) ComputeAndPersistScore(ctx context.Context, driverID string) (ScoreResult, error) {
	end := s.now().UTC()
	start := end.AddDate(0, 0, -s.windowDays)

	agg, err := s.store.AggregateMetrics(ctx, driverID, start, end)
	if err != nil {
		return ScoreResult{}, err
	}

	res := ScoreResult{
		DriverID:    driverID,
		TotalRides:  agg.Accepted,
		WindowStart: start,
		WindowEnd:   end,
	}

	score := s.engine.CalculateScore(agg)
	if score == nil {
		return res, nil
	}
	if err := s.store.UpsertScore(ctx, driverID, *score, agg.Accepted, start, end); err != nil {
		return ScoreResult{}, err
	}
	res.HasData = true
	res.Score = score
	return res, nil
}

// GetScore returns the last persisted score, or HasData=false when none exists.
// Read path: fails open to "no data" on storage errors.
func (s *Service) GetScore(ctx context.Context, driverID string) ScoreResult {
	res, err := s.store.GetScore(ctx, driverID)
	if err == ErrNotFound {
		return ScoreResult{DriverID: driverID}
	}
	if err != nil {
		s.log.Warnw("score read failed, returning no data", map[string]any{
			"driver_id": driverID, "error": err.Error(),
		})
		return ScoreResult{DriverID: driverID}
	}
	return *res
}
