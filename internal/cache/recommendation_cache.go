package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	recommendationKeyPrefix  = "forecast:recommendations"
	defaultRecommendationTTL = time.Minute
)

type RecommendationCache interface {
	GetPage(ctx context.Context, filter domain.RecommendationFilter) (*domain.RecommendationPage, bool, error)
	SetPage(ctx context.Context, filter domain.RecommendationFilter, page *domain.RecommendationPage) error
	InvalidateAll(ctx context.Context) error
}

type redisRecommendationCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopRecommendationCache struct{}

// NewRecommendationCache returns a Redis-backed cache, or a no-op cache when client is nil.
func NewRecommendationCache(client *redis.Client, ttlSeconds int) RecommendationCache {
	if client == nil {
		return NewNoopRecommendationCache()
	}
	return &redisRecommendationCache{
		client: client,
		ttl:    ttlOrDefault(ttlSeconds, defaultRecommendationTTL),
	}
}

func NewNoopRecommendationCache() RecommendationCache {
	return &noopRecommendationCache{}
}

func (c *redisRecommendationCache) GetPage(ctx context.Context, filter domain.RecommendationFilter) (*domain.RecommendationPage, bool, error) {
	var page domain.RecommendationPage
	found, err := getJSON(ctx, c.client, buildRecommendationKey(filter), &page)
	if err != nil || !found {
		return nil, false, err
	}
	return &page, true, nil
}

func (c *redisRecommendationCache) SetPage(ctx context.Context, filter domain.RecommendationFilter, page *domain.RecommendationPage) error {
	return setJSON(ctx, c.client, buildRecommendationKey(filter), page, c.ttl)
}

func (c *redisRecommendationCache) InvalidateAll(ctx context.Context) error {
	return deleteKeysWithPrefix(ctx, c.client, recommendationKeyPrefix)
}

func (n *noopRecommendationCache) GetPage(ctx context.Context, filter domain.RecommendationFilter) (*domain.RecommendationPage, bool, error) {
	return nil, false, nil
}

func (n *noopRecommendationCache) SetPage(ctx context.Context, filter domain.RecommendationFilter, page *domain.RecommendationPage) error {
	return nil
}

func (n *noopRecommendationCache) InvalidateAll(ctx context.Context) error {
	return nil
}

func buildRecommendationKey(filter domain.RecommendationFilter) string {
	var parts []string
	if filter.RunDate != "" {
		parts = append(parts, "run_date="+filter.RunDate)
	}
	if len(filter.ProductIDs) > 0 {
		ids := append([]string(nil), filter.ProductIDs...)
		sort.Strings(ids)
		parts = append(parts, "products="+strings.Join(ids, ","))
	}
	if filter.ReorderOnly {
		parts = append(parts, "reorder_only=true")
	}
	if filter.SortField != "" {
		parts = append(parts, "sort="+filter.SortField+" "+strings.ToLower(filter.SortDir))
	}
	if filter.Page > 0 {
		parts = append(parts, "page="+strconv.Itoa(filter.Page))
	}
	if filter.PageSize > 0 {
		parts = append(parts, "page_size="+strconv.Itoa(filter.PageSize))
	}

	if len(parts) == 0 {
		return recommendationKeyPrefix + ":default"
	}

	hash := sha1.Sum([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%s:%s", recommendationKeyPrefix, hex.EncodeToString(hash[:]))
}
