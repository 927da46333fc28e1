package cache

import (
	"context"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	profileKeyPrefix  = "forecast:profile:"
	defaultProfileTTL = 24 * time.Hour
)

// ProfileCache stores seasonal profiles per product. Keys are produced by
// forecast.ProfileKey and always start with the product id.
type ProfileCache interface {
	GetProfile(ctx context.Context, key string) (*domain.SeasonalProfile, error)
	SetProfile(ctx context.Context, key string, profile domain.SeasonalProfile) error
	InvalidateProduct(ctx context.Context, productID string) error
}

type redisProfileCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopProfileCache struct{}

// NewProfileCache returns a Redis-backed cache, or a no-op cache when client is nil.
func NewProfileCache(client *redis.Client, ttlSeconds int) ProfileCache {
	if client == nil {
		return NewNoopProfileCache()
	}
	return &redisProfileCache{
		client: client,
		ttl:    ttlOrDefault(ttlSeconds, defaultProfileTTL),
	}
}

func NewNoopProfileCache() ProfileCache {
	return &noopProfileCache{}
}

func (c *redisProfileCache) GetProfile(ctx context.Context, key string) (*domain.SeasonalProfile, error) {
	var profile domain.SeasonalProfile
	found, err := getJSON(ctx, c.client, profileKeyPrefix+key, &profile)
	if err != nil || !found {
		return nil, err
	}
	return &profile, nil
}

func (c *redisProfileCache) SetProfile(ctx context.Context, key string, profile domain.SeasonalProfile) error {
	return setJSON(ctx, c.client, profileKeyPrefix+key, profile, c.ttl)
}

// InvalidateProduct drops every cached profile of productID.
func (c *redisProfileCache) InvalidateProduct(ctx context.Context, productID string) error {
	return deleteKeysWithPrefix(ctx, c.client, profileKeyPrefix+productID+":")
}

func (n *noopProfileCache) GetProfile(ctx context.Context, key string) (*domain.SeasonalProfile, error) {
	return nil, nil
}

func (n *noopProfileCache) SetProfile(ctx context.Context, key string, profile domain.SeasonalProfile) error {
	return nil
}

func (n *noopProfileCache) InvalidateProduct(ctx context.Context, productID string) error {
	return nil
}
