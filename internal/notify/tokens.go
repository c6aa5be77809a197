// README: Redis-backed registry of driver FCM registration tokens.
package notify

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const tokenKeyPrefix = "device:fcm:"

// RedisTokenStore keeps the latest registration token per driver. It satisfies
// TokenResolver.
type RedisTokenStore struct {
	redis *redis.Client
}

func NewRedisTokenStore(r *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{redis: r}
}

func (s *RedisTokenStore) SaveToken(ctx context.Context, driverID, token string) error {
	return s.redis.Set(ctx, tokenKeyPrefix+driverID, token, 0).Err()
}

func (s *RedisTokenStore) TokenForDriver(ctx context.Context, driverID string) (string, error) {
	token, err := s.redis.Get(ctx, tokenKeyPrefix+driverID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return token, err
}
