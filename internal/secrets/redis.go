package secrets

import (
	"context"
	"fmt"

	"github.com/cryguy/edgefn/internal/core"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "edgefn:secrets:"

// Redis resolves secrets from one hash per tenant.
type Redis struct {
	rdb *redis.Client
}

var _ core.SecretResolver = (*Redis)(nil)

// NewRedis wraps a go-redis client.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

// DialRedis creates a client for addr and checks that it answers.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("secrets: connecting to redis at %s: %w", addr, err)
	}
	return rdb, nil
}

func redisKey(tenant string) string {
	return redisKeyPrefix + tenant
}

// Resolve reads the tenant's hash.
func (r *Redis) Resolve(ctx context.Context, tenant string) (core.SecretMap, error) {
	vals, err := r.rdb.HGetAll(ctx, redisKey(tenant)).Result()
	if err != nil {
		return nil, fmt.Errorf("secrets: reading tenant %s: %w", tenant, err)
	}
	if len(vals) == 0 {
		return nil, notFound(tenant)
	}
	return core.SecretMap(vals), nil
}

// Set stores one secret.
func (r *Redis) Set(ctx context.Context, tenant, key, value string) error {
	if err := r.rdb.HSet(ctx, redisKey(tenant), key, value).Err(); err != nil {
		return fmt.Errorf("secrets: saving %s/%s: %w", tenant, key, err)
	}
	return nil
}
