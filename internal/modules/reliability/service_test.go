package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridebid/internal/logger"
)

// fakeStorage is an in-memory Storage with injectable per-method failures.
type fakeStorage struct {
	cooldowns map[string]*CooldownRow
	locks     map[string]bool
	events    []*CancelEvent
	metrics   map[string]Aggregate
	scores    map[string]*ScoreResult

	failCooldownRead bool
	failLockRead     bool
	failWrites       bool

	cleared chan string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		cooldowns: map[string]*CooldownRow{},
		locks:     map[string]bool{},
		metrics:   map[string]Aggregate{},
		scores:    map[string]*ScoreResult{},
		cleared:   make(chan string, 8),
	}
}

var errStorage = errors.New("storage unavailable")

func (f *fakeStorage) GetCooldownRow(_ context.Context, driverID string) (*CooldownRow, error) {
	if f.failCooldownRead {
		return nil, errStorage
	}
	row, ok := f.cooldowns[driverID]
	if !ok {
		return nil, ErrNotFound
	}
	return row, nil
}

func (f *fakeStorage) UpsertCooldown(_ context.Context, driverID string, until time.Time, reason string) error {
	if f.failWrites {
		return errStorage
	}
	f.cooldowns[driverID] = &CooldownRow{DriverID: driverID, Until: &until, Reason: &reason}
	return nil
}

func (f *fakeStorage) ClearCooldown(_ context.Context, driverID string) error {
	if f.failWrites {
		return errStorage
	}
	f.cooldowns[driverID] = &CooldownRow{DriverID: driverID}
	select {
	case f.cleared <- driverID:
	default:
	}
	return nil
}

func (f *fakeStorage) HasLock(_ context.Context, driverID, rideID string) (bool, error) {
	if f.failLockRead {
		return false, errStorage
	}
	return f.locks[rideID+"/"+driverID], nil
}

func (f *fakeStorage) UpsertLock(_ context.Context, driverID, rideID string) error {
	if f.failWrites {
		return errStorage
	}
	f.locks[rideID+"/"+driverID] = true
	return nil
}

func (f *fakeStorage) InsertCancelEvent(_ context.Context, ev *CancelEvent) error {
	if f.failWrites {
		return errStorage
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeStorage) AddDailyMetrics(_ context.Context, driverID string, _ time.Time, d MetricsDelta) error {
	if f.failWrites {
		return errStorage
	}
	a := f.metrics[driverID]
	a.Awarded += d.Awarded
	a.Accepted += d.Accepted
	a.DriverCancels += d.Cancels
	a.OntimePickups += d.OntimePickups
	a.TotalPickups += d.TotalPickups
	a.HonoredBids += d.HonoredBids
	f.metrics[driverID] = a
	return nil
}

func (f *fakeStorage) AggregateMetrics(_ context.Context, driverID string, _, _ time.Time) (Aggregate, error) {
	return f.metrics[driverID], nil
}

func (f *fakeStorage) UpsertScore(_ context.Context, driverID string, sc Score, totalRides int, ws, we time.Time) error {
	if f.failWrites {
		return errStorage
	}
	f.scores[driverID] = &ScoreResult{
		DriverID: driverID, HasData: true, Score: &sc,
		TotalRides: totalRides, WindowStart: ws, WindowEnd: we,
	}
	return nil
}

func (f *fakeStorage) GetScore(_ context.Context, driverID string) (*ScoreResult, error) {
	res, ok := f.scores[driverID]
	if !ok {
		return nil, ErrNotFound
	}
	return res, nil
}

func newTestService(store Storage) *Service {
	engine := NewEngine(DefaultEngineConfig(30*time.Minute, 10))
	return NewService(store, engine, logger.Nop{}, 30)
}

func TestGetCooldown_NoRecord(t *testing.T) {
	svc := newTestService(newFakeStorage())
	st := svc.GetCooldown(context.Background(), "d1")
	assert.False(t, st.Active)
}

func TestGetCooldown_ActiveThenExpired(t *testing.T) {
	store := newFakeStorage()
	svc := newTestService(store)
	ctx := context.Background()

	require.NoError(t, svc.ApplyCooldown(ctx, "d1", 30*time.Minute, "cancel_after_award"))

	st := svc.GetCooldown(ctx, "d1")
	require.True(t, st.Active)
	assert.Greater(t, st.RetryAfterSeconds, 0)
	assert.Equal(t, "cancel_after_award", st.Reason)

	// Jump the clock past expiry; the next read treats it as inactive and
	// schedules the lazy clear.
	svc.now = func() time.Time { return time.Now().Add(31 * time.Minute) }
	st = svc.GetCooldown(ctx, "d1")
	assert.False(t, st.Active)

	select {
	case cleared := <-store.cleared:
		assert.Equal(t, "d1", cleared)
	case <-time.After(2 * time.Second):
		t.Fatal("lazy cleanup never ran")
	}
}

func TestGetCooldown_FailsOpenOnStorageError(t *testing.T) {
	store := newFakeStorage()
	store.failCooldownRead = true
	svc := newTestService(store)

	st := svc.GetCooldown(context.Background(), "d1")
	assert.False(t, st.Active, "infra failure must not lock out the driver")
}

func TestCheckBidEligibility_CooldownBlocks(t *testing.T) {
	store := newFakeStorage()
	svc := newTestService(store)
	ctx := context.Background()

	require.NoError(t, svc.ApplyCooldown(ctx, "d1", 10*time.Minute, "cancel_after_award"))

	el := svc.CheckBidEligibility(ctx, "d1", "r1")
	require.False(t, el.CanBid)
	assert.Equal(t, ReasonCooldownActive, el.ReasonCode)
	assert.Greater(t, el.RetryAfterSeconds, 0)
}

func TestCheckBidEligibility_LockIsPermanentAndRideSpecific(t *testing.T) {
	store := newFakeStorage()
	svc := newTestService(store)
	ctx := context.Background()

	require.NoError(t, svc.LockEligibility(ctx, "d1", "r1"))
	// Idempotent: second write is a no-op, not an error.
	require.NoError(t, svc.LockEligibility(ctx, "d1", "r1"))

	el := svc.CheckBidEligibility(ctx, "d1", "r1")
	require.False(t, el.CanBid)
	assert.Equal(t, ReasonLockedAfterCancel, el.ReasonCode)
	assert.Zero(t, el.RetryAfterSeconds, "lock is permanent, no retry hint")

	// Other rides stay open to the driver.
	el = svc.CheckBidEligibility(ctx, "d1", "r2")
	assert.True(t, el.CanBid)

	// The lock holds even with the clock far in the future.
	svc.now = func() time.Time { return time.Now().Add(72 * time.Hour) }
	el = svc.CheckBidEligibility(ctx, "d1", "r1")
	assert.False(t, el.CanBid)
}

func TestCheckBidEligibility_FailsOpenOnLockReadError(t *testing.T) {
	store := newFakeStorage()
	store.failLockRead = true
	svc := newTestService(store)

	el := svc.CheckBidEligibility(context.Background(), "d1", "r1")
	assert.True(t, el.CanBid)
}

func TestRecordCancelEvent_ExemptionFlags(t *testing.T) {
	store := newFakeStorage()
	svc := newTestService(store)
	ctx := context.Background()

	exempted, err := svc.RecordCancelEvent(ctx, "r1", "d1", "rider_no_show", nil)
	require.NoError(t, err)
	assert.True(t, exempted)

	exempted, err = svc.RecordCancelEvent(ctx, "r2", "d1", "driver_unavailable", map[string]string{"note": "left queue"})
	require.NoError(t, err)
	assert.False(t, exempted)

	require.Len(t, store.events, 2)
	assert.True(t, store.events[0].Exempted)
	assert.False(t, store.events[0].Provisional, "exempt events are auto-validated")
	assert.True(t, store.events[0].Validated)
	assert.False(t, store.events[1].Exempted)
	assert.True(t, store.events[1].Provisional)
	assert.False(t, store.events[1].Validated)
}

func TestRecordCancelEvent_WriteErrorPropagates(t *testing.T) {
	store := newFakeStorage()
	store.failWrites = true
	svc := newTestService(store)

	_, err := svc.RecordCancelEvent(context.Background(), "r1", "d1", "driver_unavailable", nil)
	assert.Error(t, err, "write failures must surface to the caller")
}

func TestComputeAndPersistScore_BelowMinimum(t *testing.T) {
	store := newFakeStorage()
	svc := newTestService(store)
	ctx := context.Background()

	require.NoError(t, svc.UpdateDailyMetrics(ctx, "d1", MetricsDelta{Awarded: 5, Accepted: 5}))

	res, err := svc.ComputeAndPersistScore(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, res.HasData)
	assert.Nil(t, res.Score)
	assert.Empty(t, store.scores, "insufficient data must not persist anything")
}

func TestComputeAndPersistScore_PersistsAboveMinimum(t *testing.T) {
	store := newFakeStorage()
	svc := newTestService(store)
	ctx := context.Background()

	require.NoError(t, svc.UpdateDailyMetrics(ctx, "d1", MetricsDelta{
		Awarded: 12, Accepted: 12, OntimePickups: 11, TotalPickups: 12, HonoredBids: 12,
	}))

	res, err := svc.ComputeAndPersistScore(ctx, "d1")
	require.NoError(t, err)
	require.True(t, res.HasData)
	require.NotNil(t, res.Score)
	assert.GreaterOrEqual(t, res.Score.Value, 0.0)
	assert.LessOrEqual(t, res.Score.Value, 100.0)
	assert.Equal(t, 12, res.TotalRides)

	persisted := svc.GetScore(ctx, "d1")
	require.True(t, persisted.HasData)
	assert.Equal(t, res.Score.Value, persisted.Score.Value)
}
