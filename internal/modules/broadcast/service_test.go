package broadcast

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridebid/internal/logger"
	"ridebid/internal/metrics"
	"ridebid/internal/types"
)

type fakeBroadcastStore struct {
	mu        sync.Mutex
	rides     map[string]OpenRide
	declined  map[string]map[string]bool
	activeBid map[string]string

	failOrdered error
}

func newFakeBroadcastStore() *fakeBroadcastStore {
	return &fakeBroadcastStore{
		rides:     map[string]OpenRide{},
		declined:  map[string]map[string]bool{},
		activeBid: map[string]string{},
	}
}

func (f *fakeBroadcastStore) UpsertOpenRide(_ context.Context, r OpenRide) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rides[r.RideID] = r
	return nil
}

func (f *fakeBroadcastStore) RemoveOpenRide(_ context.Context, rideID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rides, rideID)
	return nil
}

func (f *fakeBroadcastStore) OpenRidesOrdered(_ context.Context) ([]OpenRide, error) {
	if f.failOrdered != nil {
		return nil, f.failOrdered
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rides := make([]OpenRide, 0, len(f.rides))
	for _, r := range f.rides {
		rides = append(rides, r)
	}
	sort.Slice(rides, func(i, j int) bool { return rides[i].CreatedAt.Before(rides[j].CreatedAt) })
	return rides, nil
}

func (f *fakeBroadcastStore) OpenRidesUnordered(_ context.Context) ([]OpenRide, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rides := make([]OpenRide, 0, len(f.rides))
	// Map iteration order stands in for the unordered scan.
	for _, r := range f.rides {
		rides = append(rides, r)
	}
	return rides, nil
}

func (f *fakeBroadcastStore) MarkDeclined(_ context.Context, driverID, rideID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.declined[driverID] == nil {
		f.declined[driverID] = map[string]bool{}
	}
	f.declined[driverID][rideID] = true
	return nil
}

func (f *fakeBroadcastStore) DeclinedSet(_ context.Context, driverID string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]bool{}
	for k, v := range f.declined[driverID] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeBroadcastStore) ClearDeclined(_ context.Context, driverID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.declined, driverID)
	return nil
}

func (f *fakeBroadcastStore) SetActiveBid(_ context.Context, driverID, rideID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeBid[driverID] = rideID
	return nil
}

func (f *fakeBroadcastStore) ClearActiveBid(_ context.Context, driverID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.activeBid, driverID)
	return nil
}

func (f *fakeBroadcastStore) ActiveBid(_ context.Context, driverID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeBid[driverID], nil
}

type recordingPusher struct {
	mu     sync.Mutex
	pushes map[string][]any
}

func newRecordingPusher() *recordingPusher {
	return &recordingPusher{pushes: map[string][]any{}}
}

func (p *recordingPusher) Push(driverID string, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes[driverID] = append(p.pushes[driverID], data)
}

func (p *recordingPusher) countFor(driverID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pushes[driverID])
}

func newTestBroadcast(store Storage, pusher Pusher) *Service {
	return NewService(store, pusher, logger.Nop{}, metrics.NewNopCollector(), 10*time.Minute)
}

func openRide(id string, createdAt time.Time, drivers ...string) OpenRide {
	return OpenRide{
		RideID:                 id,
		Pickup:                 types.Location{Point: types.Point{Lat: 40.7, Lng: -74.0}, Address: "A"},
		Dropoff:                types.Location{Point: types.Point{Lat: 40.8, Lng: -73.9}, Address: "B"},
		EstimatedDistanceMiles: 2,
		EstimatedPrice:         types.Money{Amount: 1200, Currency: "USD"},
		Status:                 StatusOpenForBids,
		AvailableDrivers:       drivers,
		CreatedAt:              createdAt,
	}
}

func TestOpenRidesFor_VisibilityPredicate(t *testing.T) {
	store := newFakeBroadcastStore()
	svc := newTestBroadcast(store, newRecordingPusher())
	ctx := context.Background()
	now := time.Now()

	fresh := openRide("r-fresh", now.Add(-time.Minute), "d1", "d2")
	stale := openRide("r-stale", now.Add(-time.Hour), "d1")
	closed := openRide("r-closed", now.Add(-time.Minute), "d1")
	closed.Status = "accepted"
	notMine := openRide("r-other", now.Add(-time.Minute), "d9")

	for _, r := range []OpenRide{fresh, stale, closed, notMine} {
		require.NoError(t, store.UpsertOpenRide(ctx, r))
	}

	rides, err := svc.OpenRidesFor(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, rides, 1)
	assert.Equal(t, "r-fresh", rides[0].RideID)
}

func TestOpenRidesFor_DeclinedNeverReturns(t *testing.T) {
	store := newFakeBroadcastStore()
	svc := newTestBroadcast(store, newRecordingPusher())
	ctx := context.Background()

	require.NoError(t, store.UpsertOpenRide(ctx, openRide("r1", time.Now(), "d1")))
	require.NoError(t, svc.Decline(ctx, "d1", "r1"))

	rides, err := svc.OpenRidesFor(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, rides)

	// Restart clears the session declined set; the ride becomes visible again.
	require.NoError(t, svc.Restart(ctx, "d1"))
	rides, err = svc.OpenRidesFor(ctx, "d1")
	require.NoError(t, err)
	assert.Len(t, rides, 1)
}

func TestOpenRidesFor_PausedWhileBidUnresolved(t *testing.T) {
	store := newFakeBroadcastStore()
	svc := newTestBroadcast(store, newRecordingPusher())
	ctx := context.Background()

	require.NoError(t, store.UpsertOpenRide(ctx, openRide("r1", time.Now(), "d1")))
	require.NoError(t, store.UpsertOpenRide(ctx, openRide("r2", time.Now(), "d1")))
	require.NoError(t, svc.MarkBidSubmitted(ctx, "d1", "r1"))

	rides, err := svc.OpenRidesFor(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, rides, "driver with an unresolved bid sees nothing")

	// Resolution resumes the stream, but the bid-on ride stays hidden.
	require.NoError(t, svc.Resume(ctx, "d1"))
	rides, err = svc.OpenRidesFor(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, rides, 1)
	assert.Equal(t, "r2", rides[0].RideID)

	// Resume is idempotent.
	require.NoError(t, svc.Resume(ctx, "d1"))
	require.NoError(t, svc.Resume(ctx, "d1"))
}

func TestOpenRidesFor_FallbackMatchesPrimary(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	build := func() *fakeBroadcastStore {
		store := newFakeBroadcastStore()
		for i, id := range []string{"r3", "r1", "r2"} {
			r := openRide(id, now.Add(-time.Duration(i)*time.Minute), "d1")
			if err := store.UpsertOpenRide(ctx, r); err != nil {
				t.Fatal(err)
			}
		}
		if err := store.UpsertOpenRide(ctx, openRide("r-stale", now.Add(-time.Hour), "d1")); err != nil {
			t.Fatal(err)
		}
		return store
	}

	primaryStore := build()
	primary, err := newTestBroadcast(primaryStore, newRecordingPusher()).OpenRidesFor(ctx, "d1")
	require.NoError(t, err)

	fallbackStore := build()
	fallbackStore.failOrdered = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")
	fallback, err := newTestBroadcast(fallbackStore, newRecordingPusher()).OpenRidesFor(ctx, "d1")
	require.NoError(t, err)

	require.Equal(t, len(primary), len(fallback), "both tiers must agree on the visible set")
	for i := range primary {
		assert.Equal(t, primary[i].RideID, fallback[i].RideID, "both tiers must agree on ordering")
	}
}

func TestOpenRidesFor_NonIndexErrorPropagates(t *testing.T) {
	store := newFakeBroadcastStore()
	store.failOrdered = errors.New("connection refused")
	svc := newTestBroadcast(store, newRecordingPusher())

	_, err := svc.OpenRidesFor(context.Background(), "d1")
	assert.Error(t, err)
}

func TestPublish_PushesOnlyToEligibleDrivers(t *testing.T) {
	store := newFakeBroadcastStore()
	pusher := newRecordingPusher()
	svc := newTestBroadcast(store, pusher)
	ctx := context.Background()

	// d2 has an unresolved bid, d3 already declined this ride.
	require.NoError(t, store.SetActiveBid(ctx, "d2", "r-old"))
	require.NoError(t, store.MarkDeclined(ctx, "d3", "r1"))

	require.NoError(t, svc.Publish(ctx, openRide("r1", time.Now(), "d1", "d2", "d3")))

	assert.Equal(t, 1, pusher.countFor("d1"))
	assert.Equal(t, 0, pusher.countFor("d2"))
	assert.Equal(t, 0, pusher.countFor("d3"))
}

func TestWithdraw_NotifiesDrivers(t *testing.T) {
	store := newFakeBroadcastStore()
	pusher := newRecordingPusher()
	svc := newTestBroadcast(store, pusher)
	ctx := context.Background()

	require.NoError(t, store.UpsertOpenRide(ctx, openRide("r1", time.Now(), "d1", "d2")))
	require.NoError(t, svc.Withdraw(ctx, "r1", []string{"d1", "d2"}))

	rides, err := svc.OpenRidesFor(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, rides)
	assert.Equal(t, 1, pusher.countFor("d1"))
	assert.Equal(t, 1, pusher.countFor("d2"))
}
