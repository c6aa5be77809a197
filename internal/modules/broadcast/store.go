// README: Broadcast store backed by Redis: open set, declined sets, active-bid flags.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	openZSetKey        = "broadcast:open"
	rideKeyPrefix      = "broadcast:ride:%s"
	declinedKeyPrefix  = "broadcast:driver:%s:declined"
	activeBidKeyPrefix = "broadcast:driver:%s:active_bid"
	// TTL bounds stale state (rides resolve well within a day; declined sets
	// are per-session and clearable earlier via Restart).
	keyTTL = 24 * time.Hour
)

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

func (s *Store) UpsertOpenRide(ctx context.Context, r OpenRide) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	pipe := s.redis.Pipeline()
	pipe.Set(ctx, rideKey(r.RideID), raw, keyTTL)
	pipe.ZAdd(ctx, openZSetKey, redis.Z{
		Score:  float64(r.CreatedAt.UnixMilli()),
		Member: r.RideID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) RemoveOpenRide(ctx context.Context, rideID string) error {
	pipe := s.redis.Pipeline()
	pipe.ZRem(ctx, openZSetKey, rideID)
	pipe.Del(ctx, rideKey(rideID))
	_, err := pipe.Exec(ctx)
	return err
}

// OpenRidesOrdered is the primary path: the zset gives rides already ordered
// by creation time.
func (s *Store) OpenRidesOrdered(ctx context.Context) ([]OpenRide, error) {
	ids, err := s.redis.ZRange(ctx, openZSetKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return s.loadRides(ctx, ids)
}

// OpenRidesUnordered is the fallback path: scan the ride keys with no ordering
// guarantee. The caller applies the shared predicate and sorts.
func (s *Store) OpenRidesUnordered(ctx context.Context) ([]OpenRide, error) {
	var ids []string
	iter := s.redis.Scan(ctx, 0, fmt.Sprintf(rideKeyPrefix, "*"), 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		ids = append(ids, strings.TrimPrefix(key, fmt.Sprintf(rideKeyPrefix, "")))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return s.loadRides(ctx, ids)
}

func (s *Store) loadRides(ctx context.Context, ids []string) ([]OpenRide, error) {
	rides := make([]OpenRide, 0, len(ids))
	for _, id := range ids {
		raw, err := s.redis.Get(ctx, rideKey(id)).Result()
		if err == redis.Nil {
			// Ride expired between the listing and the read; skip.
			continue
		}
		if err != nil {
			return nil, err
		}
		var r OpenRide
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, err
		}
		rides = append(rides, r)
	}
	return rides, nil
}

func (s *Store) MarkDeclined(ctx context.Context, driverID, rideID string) error {
	key := declinedKey(driverID)
	pipe := s.redis.Pipeline()
	pipe.SAdd(ctx, key, rideID)
	pipe.Expire(ctx, key, keyTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) DeclinedSet(ctx context.Context, driverID string) (map[string]bool, error) {
	members, err := s.redis.SMembers(ctx, declinedKey(driverID)).Result()
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(members))
	for _, m := range members {
		set[m] = true
	}
	return set, nil
}

func (s *Store) ClearDeclined(ctx context.Context, driverID string) error {
	return s.redis.Del(ctx, declinedKey(driverID)).Err()
}

func (s *Store) SetActiveBid(ctx context.Context, driverID, rideID string) error {
	return s.redis.Set(ctx, activeBidKey(driverID), rideID, keyTTL).Err()
}

func (s *Store) ClearActiveBid(ctx context.Context, driverID string) error {
	return s.redis.Del(ctx, activeBidKey(driverID)).Err()
}

// ActiveBid returns the ride the driver currently has an unresolved bid on,
// or "" when there is none.
func (s *Store) ActiveBid(ctx context.Context, driverID string) (string, error) {
	val, err := s.redis.Get(ctx, activeBidKey(driverID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func rideKey(rideID string) string {
	return fmt.Sprintf(rideKeyPrefix, rideID)
}

func declinedKey(driverID string) string {
	return fmt.Sprintf(declinedKeyPrefix, driverID)
}

func activeBidKey(driverID string) string {
	return fmt.Sprintf(activeBidKeyPrefix, driverID)
}
