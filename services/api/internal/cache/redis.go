// Package cache keeps terminal analyses in Redis so repeated status reads
// do not hit Postgres. Only terminal analyses are cached: they never change.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/comms-ninja/services/api/internal/store"
)

const keyPrefix = "analysis:terminal:"

type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisCache(url string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisCache{Client: redis.NewClient(opt), TTL: ttl}, nil
}

func (c *RedisCache) Get(ctx context.Context, id string) (store.Analysis, bool, error) {
	val, err := c.Client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.Analysis{}, false, nil
	}
	if err != nil {
		return store.Analysis{}, false, err
	}
	var a store.Analysis
	if err := json.Unmarshal(val, &a); err != nil {
		return store.Analysis{}, false, err
	}
	return a, true, nil
}

// Put stores a; non-terminal analyses are ignored.
func (c *RedisCache) Put(ctx context.Context, a store.Analysis) error {
	if !a.Status.Terminal() {
		return nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, keyPrefix+a.ID, b, c.TTL).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

// CachedStore reads through the cache for Get and writes terminal results
// back. A cache failure never fails the read.
type CachedStore struct {
	store.AnalysisStore
	cache *RedisCache
	onErr func(error)
}

func NewCachedStore(s store.AnalysisStore, c *RedisCache, onErr func(error)) *CachedStore {
	if onErr == nil {
		onErr = func(error) {}
	}
	return &CachedStore{AnalysisStore: s, cache: c, onErr: onErr}
}

func (s *CachedStore) Get(ctx context.Context, id string) (store.Analysis, error) {
	if a, ok, err := s.cache.Get(ctx, id); err != nil {
		s.onErr(err)
	} else if ok {
		return a, nil
	}
	a, err := s.AnalysisStore.Get(ctx, id)
	if err != nil {
		return a, err
	}
	if err := s.cache.Put(ctx, a); err != nil {
		s.onErr(err)
	}
	return a, nil
}

func (s *CachedStore) UpdateStatus(ctx context.Context, id string, u store.StatusUpdate) (store.Analysis, error) {
	a, err := s.AnalysisStore.UpdateStatus(ctx, id, u)
	if err != nil {
		return a, err
	}
	if err := s.cache.Put(ctx, a); err != nil {
		s.onErr(err)
	}
	return a, nil
}
