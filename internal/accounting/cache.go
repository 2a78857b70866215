package accounting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AccountCache stores account identities looked up by code.
type AccountCache interface {
	Get(ctx context.Context, companyID int64, code string) (AccountRef, bool, error)
	Set(ctx context.Context, companyID int64, ref AccountRef) error
}

// RedisAccountCache keeps AccountRef values in Redis. Entries are never invalidated
// because provisioned account identities do not change; the TTL only bounds memory.
type RedisAccountCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisAccountCache builds a cache on top of client.
func NewRedisAccountCache(client *redis.Client, ttl time.Duration) *RedisAccountCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisAccountCache{client: client, ttl: ttl}
}

func accountCacheKey(companyID int64, code string) string {
	return fmt.Sprintf("ledger:account:%d:%s", companyID, code)
}

// Get returns the cached reference, reporting false on a miss.
func (c *RedisAccountCache) Get(ctx context.Context, companyID int64, code string) (AccountRef, bool, error) {
	if c == nil || c.client == nil {
		return AccountRef{}, false, nil
	}
	raw, err := c.client.Get(ctx, accountCacheKey(companyID, code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return AccountRef{}, false, nil
		}
		return AccountRef{}, false, err
	}
	var ref AccountRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return AccountRef{}, false, err
	}
	return ref, true, nil
}

// Set stores ref under its company and code.
func (c *RedisAccountCache) Set(ctx context.Context, companyID int64, ref AccountRef) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(ref)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, accountCacheKey(companyID, ref.Code), raw, c.ttl).Err()
}
