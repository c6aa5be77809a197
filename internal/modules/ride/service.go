// README: Ride service: bid intake, single-winner acceptance, cancel penalties.
package ride

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ridebid/internal/logger"
	"ridebid/internal/maps"
	"ridebid/internal/metrics"
	"ridebid/internal/modules/bidding"
	"ridebid/internal/modules/broadcast"
	"ridebid/internal/modules/reliability"
	"ridebid/internal/notify"
	"ridebid/internal/types"
)

var (
	ErrNotFound        = errors.New("ride not found")
	ErrBadRequest      = errors.New("bad request")
	ErrInvalidState    = errors.New("invalid state transition")
	ErrConflict        = errors.New("ride state conflict")
	ErrAlreadyAccepted = errors.New("ride already accepted by another driver")
	ErrNotEligible     = errors.New("driver not eligible to bid")
)

// Storage is the persistence surface the arbiter needs; *Store satisfies it.
type Storage interface {
	Create(ctx context.Context, r *RideRequest) error
	Get(ctx context.Context, id string) (*RideRequest, error)
	AddAvailableDrivers(ctx context.Context, rideID string, driverIDs []string) error
	AppendBid(ctx context.Context, b *Bid) error
	Bids(ctx context.Context, rideID string) ([]Bid, error)
	AcceptBid(ctx context.Context, rideID, driverID string, finalPrice types.Money) (bool, error)
	UpdateStatus(ctx context.Context, rideID string, from, to Status, version int) (bool, error)
}

// Reliability is the slice of the reliability service the arbiter uses.
type Reliability interface {
	CheckBidEligibility(ctx context.Context, driverID, rideID string) reliability.Eligibility
	RecordCancelEvent(ctx context.Context, rideID, driverID, reasonCode string, metadata map[string]string) (bool, error)
	LockEligibility(ctx context.Context, driverID, rideID string) error
	ApplyCooldown(ctx context.Context, driverID string, duration time.Duration, reason string) error
	CooldownDuration(reasonCode string) time.Duration
	UpdateDailyMetrics(ctx context.Context, driverID string, delta reliability.MetricsDelta) error
	ComputeAndPersistScore(ctx context.Context, driverID string) (reliability.ScoreResult, error)
}

// Broadcaster is the slice of the dispatch broadcaster the arbiter uses.
type Broadcaster interface {
	Publish(ctx context.Context, r broadcast.OpenRide) error
	Withdraw(ctx context.Context, rideID string, driverIDs []string) error
	MarkBidSubmitted(ctx context.Context, driverID, rideID string) error
	Resume(ctx context.Context, driverID string) error
}

type Service struct {
	store     Storage
	rel       Reliability
	validator *bidding.Validator
	caster    Broadcaster
	gateway   notify.Gateway
	estimator maps.Estimator
	metrics   *metrics.Collector
	log       logger.Logger
	currency  string

	now func() time.Time
}

type Deps struct {
	Store     Storage
	Rel       Reliability
	Validator *bidding.Validator
	Caster    Broadcaster
	Gateway   notify.Gateway
	Estimator maps.Estimator
	Metrics   *metrics.Collector
	Log       logger.Logger
	Currency  string
}

func NewService(d Deps) *Service {
	return &Service{
		store:     d.Store,
		rel:       d.Rel,
		validator: d.Validator,
		caster:    d.Caster,
		gateway:   d.Gateway,
		estimator: d.Estimator,
		metrics:   d.Metrics,
		log:       d.Log,
		currency:  d.Currency,
		now:       time.Now,
	}
}

type CreateCommand struct {
	RiderID                string
	Pickup                 types.Location
	Dropoff                types.Location
	EstimatedDistanceMiles float64
	EstimatedPrice         types.Money
	AvailableDrivers       []string
}

// Create ingests a ride request from the rider-facing system and broadcasts
// it to the listed drivers.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (string, error) {
	if cmd.RiderID == "" {
		return "", ErrBadRequest
	}

	distance := cmd.EstimatedDistanceMiles
	if distance <= 0 && s.estimator != nil {
		if d, err := s.estimator.DistanceMiles(ctx, cmd.Pickup.Point, cmd.Dropoff.Point); err == nil {
			distance = d
		}
	}

	r := &RideRequest{
		ID:                     uuid.NewString(),
		RiderID:                cmd.RiderID,
		Pickup:                 cmd.Pickup,
		Dropoff:                cmd.Dropoff,
		EstimatedDistanceMiles: distance,
		EstimatedPrice:         cmd.EstimatedPrice,
		Status:                 StatusOpenForBids,
		AvailableDrivers:       cmd.AvailableDrivers,
		CreatedAt:              s.now(),
	}
	if r.EstimatedPrice.Currency == "" {
		r.EstimatedPrice.Currency = s.currency
	}
	if err := s.store.Create(ctx, r); err != nil {
		return "", err
	}

	if err := s.caster.Publish(ctx, s.toOpenRide(r)); err != nil {
		// The ride exists; drivers will still see it on their next poll.
		s.log.Warnf("broadcast publish failed for ride %s: %v", r.ID, err)
	}
	return r.ID, nil
}

type SubmitBidCommand struct {
	RideID    string
	DriverID  string
	RawAmount string
	BidType   string
	Driver    DriverSnapshot
}

// BidOutcome carries the structured result of a submission attempt: either
// the appended bid, or the eligibility verdict explaining the block.
type BidOutcome struct {
	Bid         *Bid
	Eligibility reliability.Eligibility
	WasClamped  bool
}

// SubmitBid runs the gauntlet: lifecycle check, eligibility check, amount
// validation, append, stream pause. A blocked driver gets ErrNotEligible plus
// the eligibility details; a malformed amount is clamped, never rejected.
func (s *Service) SubmitBid(ctx context.Context, cmd SubmitBidCommand) (BidOutcome, error) {
	if cmd.RideID == "" || cmd.DriverID == "" {
		return BidOutcome{}, ErrBadRequest
	}

	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return BidOutcome{}, err
	}
	if !BidAcceptable(r.Status) {
		return BidOutcome{}, ErrInvalidState
	}

	el := s.rel.CheckBidEligibility(ctx, cmd.DriverID, cmd.RideID)
	if !el.CanBid {
		s.metrics.BidsBlocked.WithLabelValues(el.ReasonCode).Inc()
		return BidOutcome{Eligibility: el}, ErrNotEligible
	}

	res := s.validator.ValidateString(cmd.RawAmount, r.EstimatedDistanceMiles)
	if res.WasClamped {
		s.metrics.BidsClamped.WithLabelValues(string(res.ClampDirection)).Inc()
	}

	bid := &Bid{
		ID:          uuid.NewString(),
		RideID:      cmd.RideID,
		DriverID:    cmd.DriverID,
		Amount:      types.MoneyFromDollars(res.Amount, s.currency),
		BidType:     cmd.BidType,
		SubmittedAt: s.now(),
		DriverInfo:  cmd.Driver,
	}
	if err := s.store.AppendBid(ctx, bid); err != nil {
		return BidOutcome{}, err
	}
	if err := s.caster.MarkBidSubmitted(ctx, cmd.DriverID, cmd.RideID); err != nil {
		s.log.Warnf("pause stream for %s failed: %v", cmd.DriverID, err)
	}
	s.metrics.BidsSubmitted.Inc()

	return BidOutcome{Bid: bid, Eligibility: el, WasClamped: res.WasClamped}, nil
}

type AcceptCommand struct {
	RideID   string
	DriverID string
	// FinalPrice defaults to the winning driver's bid amount when zero.
	FinalPrice types.Money
}

// AcceptBid commits exactly one winner per ride. The commit itself is a
// conditional write at the storage layer; a lost race surfaces as
// ErrAlreadyAccepted so callers can branch into the rejection path.
func (s *Service) AcceptBid(ctx context.Context, cmd AcceptCommand) error {
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return err
	}

	finalPrice := cmd.FinalPrice
	if finalPrice.Amount == 0 {
		winning := latestBidBy(r.Bids, cmd.DriverID)
		if winning == nil {
			return ErrBadRequest
		}
		finalPrice = winning.Amount
	}

	ok, err := s.store.AcceptBid(ctx, cmd.RideID, cmd.DriverID, finalPrice)
	if err != nil {
		return err
	}
	if !ok {
		s.metrics.AcceptanceConflicts.Inc()
		return ErrAlreadyAccepted
	}
	s.metrics.AcceptanceCommits.Inc()

	if err := s.rel.UpdateDailyMetrics(ctx, cmd.DriverID, reliability.MetricsDelta{Awarded: 1, Accepted: 1}); err != nil {
		s.log.Errorf("award metrics update failed for %s: %v", cmd.DriverID, err)
	}

	s.publish(ctx, notify.EventBidAccepted, cmd.RideID, cmd.DriverID, map[string]string{
		"final_price": finalPrice.Currency + " " + formatCents(finalPrice.Amount),
	})

	// Losers get an explicit rejection and their broadcast stream back.
	losers := distinctBidders(r.Bids, cmd.DriverID)
	g, gctx := errgroup.WithContext(ctx)
	for _, driverID := range losers {
		g.Go(func() error {
			if err := s.caster.Resume(gctx, driverID); err != nil {
				s.log.Warnf("resume %s after rejection failed: %v", driverID, err)
			}
			s.publish(gctx, notify.EventBidRejected, cmd.RideID, driverID, nil)
			return nil
		})
	}
	_ = g.Wait()

	if err := s.caster.Withdraw(ctx, cmd.RideID, r.AvailableDrivers); err != nil {
		s.log.Warnf("withdraw ride %s failed: %v", cmd.RideID, err)
	}
	return nil
}

type DriverCancelCommand struct {
	RideID     string
	DriverID   string
	ReasonCode string
	Metadata   map[string]string
}

// HandleDriverCancelAfterAward applies the integrity policy when the accepted
// driver backs out. Non-exempt reasons cost the driver both a permanent
// per-ride lock and a global cooldown; exempt reasons cost neither.
func (s *Service) HandleDriverCancelAfterAward(ctx context.Context, cmd DriverCancelCommand) error {
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return err
	}
	if r.Status != StatusAccepted || r.AcceptedDriverID == nil || *r.AcceptedDriverID != cmd.DriverID {
		return ErrInvalidState
	}

	exempted, err := s.rel.RecordCancelEvent(ctx, cmd.RideID, cmd.DriverID, cmd.ReasonCode, cmd.Metadata)
	if err != nil {
		return err
	}
	s.metrics.CancelEvents.WithLabelValues(boolLabel(exempted)).Inc()

	if !exempted {
		if err := s.rel.LockEligibility(ctx, cmd.DriverID, cmd.RideID); err != nil {
			return err
		}
		s.metrics.LocksApplied.Inc()

		duration := s.rel.CooldownDuration(cmd.ReasonCode)
		if err := s.rel.ApplyCooldown(ctx, cmd.DriverID, duration, "cancel_after_award"); err != nil {
			return err
		}
		s.metrics.CooldownsApplied.Inc()

		if err := s.rel.UpdateDailyMetrics(ctx, cmd.DriverID, reliability.MetricsDelta{Cancels: 1}); err != nil {
			s.log.Errorf("cancel metrics update failed for %s: %v", cmd.DriverID, err)
		}
	}

	if ok, err := s.store.UpdateStatus(ctx, cmd.RideID, StatusAccepted, StatusCancelled, r.StatusVersion); err != nil {
		return err
	} else if !ok {
		return ErrConflict
	}

	s.publish(ctx, notify.EventRideCancelled, cmd.RideID, cmd.DriverID, map[string]string{
		"reason": cmd.ReasonCode,
	})
	if err := s.caster.Resume(ctx, cmd.DriverID); err != nil {
		s.log.Warnf("resume %s after cancel failed: %v", cmd.DriverID, err)
	}
	if err := s.caster.Withdraw(ctx, cmd.RideID, r.AvailableDrivers); err != nil {
		s.log.Warnf("withdraw ride %s failed: %v", cmd.RideID, err)
	}

	s.recomputeScoreAsync(cmd.DriverID)
	return nil
}

type CancelCommand struct {
	RideID    string
	ActorType string
	Reason    string
}

// HandleRideCancellation handles a full (rider or dispatcher) cancellation:
// every bidder is released back to the broadcast stream.
func (s *Service) HandleRideCancellation(ctx context.Context, cmd CancelCommand) error {
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return err
	}
	if !CanTransition(r.Status, StatusCancelled) {
		return ErrInvalidState
	}
	if ok, err := s.store.UpdateStatus(ctx, cmd.RideID, r.Status, StatusCancelled, r.StatusVersion); err != nil {
		return err
	} else if !ok {
		return ErrConflict
	}

	for _, driverID := range distinctBidders(r.Bids, "") {
		if err := s.caster.Resume(ctx, driverID); err != nil {
			s.log.Warnf("resume %s after cancellation failed: %v", driverID, err)
		}
		s.publish(ctx, notify.EventRideCancelled, cmd.RideID, driverID, map[string]string{
			"actor": cmd.ActorType, "reason": cmd.Reason,
		})
	}
	if err := s.caster.Withdraw(ctx, cmd.RideID, r.AvailableDrivers); err != nil {
		s.log.Warnf("withdraw ride %s failed: %v", cmd.RideID, err)
	}
	return nil
}

type CompleteCommand struct {
	RideID       string
	OntimePickup bool
}

// CompleteRide closes out an accepted ride and credits the driver's daily
// counters: the pickup happened, on time or not, and the bid was honored.
func (s *Service) CompleteRide(ctx context.Context, cmd CompleteCommand) error {
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return err
	}
	if r.Status != StatusAccepted || r.AcceptedDriverID == nil {
		return ErrInvalidState
	}
	driverID := *r.AcceptedDriverID

	if ok, err := s.store.UpdateStatus(ctx, cmd.RideID, StatusAccepted, StatusCompleted, r.StatusVersion); err != nil {
		return err
	} else if !ok {
		return ErrConflict
	}

	delta := reliability.MetricsDelta{TotalPickups: 1, HonoredBids: 1}
	if cmd.OntimePickup {
		delta.OntimePickups = 1
	}
	if err := s.rel.UpdateDailyMetrics(ctx, driverID, delta); err != nil {
		s.log.Errorf("completion metrics update failed for %s: %v", driverID, err)
	}

	s.publish(ctx, notify.EventRideCompleted, cmd.RideID, driverID, nil)
	s.recomputeScoreAsync(driverID)
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*RideRequest, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) publish(ctx context.Context, t notify.EventType, rideID, driverID string, payload map[string]string) {
	s.metrics.NotificationsSent.WithLabelValues(string(t)).Inc()
	if err := s.gateway.Publish(ctx, notify.Event{
		Type: t, RideID: rideID, DriverID: driverID, Payload: payload,
	}); err != nil {
		s.log.Warnf("publish %s for ride %s driver %s failed: %v", t, rideID, driverID, err)
	}
}

func (s *Service) recomputeScoreAsync(driverID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		res, err := s.rel.ComputeAndPersistScore(ctx, driverID)
		switch {
		case err != nil:
			s.metrics.ScoresComputed.WithLabelValues("error").Inc()
			s.log.Errorf("score recompute failed for %s: %v", driverID, err)
		case !res.HasData:
			s.metrics.ScoresComputed.WithLabelValues("insufficient_data").Inc()
		default:
			s.metrics.ScoresComputed.WithLabelValues("ok").Inc()
		}
	}()
}

func (s *Service) toOpenRide(r *RideRequest) broadcast.OpenRide {
	return broadcast.OpenRide{
		RideID:                 r.ID,
		Pickup:                 r.Pickup,
		Dropoff:                r.Dropoff,
		EstimatedDistanceMiles: r.EstimatedDistanceMiles,
		EstimatedPrice:         r.EstimatedPrice,
		Status:                 string(r.Status),
		AvailableDrivers:       r.AvailableDrivers,
		CreatedAt:              r.CreatedAt,
	}
}

// latestBidBy returns the driver's most recent bid, or nil.
func latestBidBy(bids []Bid, driverID string) *Bid {
	for i := len(bids) - 1; i >= 0; i-- {
		if bids[i].DriverID == driverID {
			return &bids[i]
		}
	}
	return nil
}

// distinctBidders lists each bidding driver once, excluding the given one.
func distinctBidders(bids []Bid, exclude string) []string {
	seen := map[string]bool{}
	var out []string
	for _, b := range bids {
		if b.DriverID == exclude || seen[b.DriverID] {
			continue
		}
		seen[b.DriverID] = true
		out = append(out, b.DriverID)
	}
	return out
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func formatCents(amount int64) string {
	cents := amount % 100
	if cents < 0 {
		cents = -cents
	}
	return fmt.Sprintf("%d.%02d", amount/100, cents)
}
