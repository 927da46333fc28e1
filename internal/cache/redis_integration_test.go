package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/config"
	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// openTestRedis connects to REDIS_URL when set, or starts a container when
// FORECAST_TESTCONTAINERS=1. Otherwise the test is skipped.
func openTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test")
	}

	ctx := context.Background()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		if os.Getenv("FORECAST_TESTCONTAINERS") != "1" {
			t.Skip("set REDIS_URL or FORECAST_TESTCONTAINERS=1 to run")
		}
		container, err := tcredis.Run(ctx, "redis:7-alpine",
			testcontainers.WithWaitStrategy(
				wait.ForLog("Ready to accept connections").WithStartupTimeout(60*time.Second),
			),
		)
		require.NoError(t, err)
		t.Cleanup(func() { _ = container.Terminate(context.Background()) })

		url, err = container.ConnectionString(ctx)
		require.NoError(t, err)
	}

	client, err := NewClient(config.CacheConfig{RedisURL: url})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.FlushDB(ctx).Err())
	return client
}

func TestRedisProfileCache(t *testing.T) {
	client := openTestRedis(t)
	ctx := context.Background()
	profiles := NewProfileCache(client, 60)

	got, err := profiles.GetProfile(ctx, "P1:aaa")
	require.NoError(t, err)
	assert.Nil(t, got)

	profile := domain.SeasonalProfile{ProductID: "P1", OverallMean: 12.5, PeakMonths: []time.Month{time.November, time.December}}
	require.NoError(t, profiles.SetProfile(ctx, "P1:aaa", profile))
	require.NoError(t, profiles.SetProfile(ctx, "P2:bbb", domain.SeasonalProfile{ProductID: "P2"}))

	got, err = profiles.GetProfile(ctx, "P1:aaa")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, profile.OverallMean, got.OverallMean)
	assert.Equal(t, profile.PeakMonths, got.PeakMonths)

	require.NoError(t, profiles.InvalidateProduct(ctx, "P1"))
	got, err = profiles.GetProfile(ctx, "P1:aaa")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Other products keep their profiles.
	got, err = profiles.GetProfile(ctx, "P2:bbb")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestRedisRecommendationCache(t *testing.T) {
	client := openTestRedis(t)
	ctx := context.Background()
	recs := NewRecommendationCache(client, 60)

	filter := domain.RecommendationFilter{RunDate: "2024-06-01", ReorderOnly: true}
	page := &domain.RecommendationPage{
		Rows:     []domain.RecommendationRow{{ProductID: "A", RequiredInventory: 1000}},
		Total:    1,
		Page:     1,
		PageSize: 50,
	}
	require.NoError(t, recs.SetPage(ctx, filter, page))

	got, ok, err := recs.GetPage(ctx, filter)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, got.Total)
	assert.Equal(t, "A", got.Rows[0].ProductID)

	_, ok, err = recs.GetPage(ctx, domain.RecommendationFilter{RunDate: "2024-06-01"})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, recs.InvalidateAll(ctx))
	_, ok, err = recs.GetPage(ctx, filter)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCorruptPayloadIsAMiss(t *testing.T) {
	client := openTestRedis(t)
	ctx := context.Background()
	require.NoError(t, client.Set(ctx, profileKeyPrefix+"P9:zzz", "not json", time.Minute).Err())

	profiles := NewProfileCache(client, 60)
	_, err := profiles.GetProfile(ctx, "P9:zzz")
	assert.Error(t, err)

	got, err := profiles.GetProfile(ctx, "P9:zzz")
	require.NoError(t, err)
	assert.Nil(t, got)
}
