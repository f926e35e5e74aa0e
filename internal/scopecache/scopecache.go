// Package scopecache caches school access grant lookups in redis so the
// per-request scope resolution does not hit postgres for every super-admin
// call. Grant mutations must invalidate the cached set.
package scopecache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pramodabacco-sudo/school-sub002/internal/auth"
)

const keyPrefix = "scope:grants:"

type GrantCache struct {
	source auth.GrantSource
	client *redis.Client
	ttl    time.Duration
}

// New decorates source with a redis cache. A nil client disables caching and
// every lookup falls through to the source.
func New(source auth.GrantSource, client *redis.Client, ttl time.Duration) *GrantCache {
	return &GrantCache{source: source, client: client, ttl: ttl}
}

func (c *GrantCache) ListGrantedSchoolIDs(ctx context.Context, superAdminID string) ([]string, error) {
	if c.client == nil {
		return c.source.ListGrantedSchoolIDs(ctx, superAdminID)
	}

	key := keyPrefix + superAdminID
	raw, err := c.client.Get(ctx, key).Result()
	if err == nil {
		var ids []string
		if jsonErr := json.Unmarshal([]byte(raw), &ids); jsonErr == nil {
			return ids, nil
		}
		// Unreadable entry: drop it and refetch.
		_ = c.client.Del(ctx, key).Err()
	} else if !errors.Is(err, redis.Nil) {
		// Redis being down must not block authorization.
		return c.source.ListGrantedSchoolIDs(ctx, superAdminID)
	}

	ids, err := c.source.ListGrantedSchoolIDs(ctx, superAdminID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	if encoded, jsonErr := json.Marshal(ids); jsonErr == nil {
		_ = c.client.Set(ctx, key, encoded, c.ttl).Err()
	}
	return ids, nil
}

// Invalidate evicts the cached grant set after a grant mutation.
func (c *GrantCache) Invalidate(ctx context.Context, superAdminID string) {
	if c.client == nil {
		return
	}
	_ = c.client.Del(ctx, keyPrefix+superAdminID).Err()
}
