package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "billing:stripe_event:"

// redisStore claims ids with SET NX; the key expiry is the dedup window.
type redisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func newRedisStore(client redis.UniversalClient, ttl time.Duration) *redisStore {
	return &redisStore{client: client, ttl: ttl}
}

func redisKey(eventID string) string { return redisKeyPrefix + eventID }

func (s *redisStore) Check(ctx context.Context, eventID string) (bool, error) {
	claimed, err := s.client.SetNX(ctx, redisKey(eventID), time.Now().Unix(), s.ttl).Result()
	if err != nil {
		return false, err
	}
	return !claimed, nil
}

func (s *redisStore) Forget(ctx context.Context, eventID string) error {
	return s.client.Del(ctx, redisKey(eventID)).Err()
}
