package repository

import (
	"context"
	"testing"
	"time"

	"barberbook/internal/config"
	"barberbook/internal/models"
	"barberbook/internal/timeofday"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisViewCache(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer Close(client)

	repo := NewRedisViewCache(client, time.Hour)
	ctx := context.Background()

	at := timeofday.MustParse("14:05")
	view := []models.Appointment{{
		ID:       10,
		ClientID: 5,
		ShopID:   9,
		Date:     models.Date{Year: 2025, Month: 10, Day: 21},
		Time:     &at,
		Status:   models.StatusConfirmed,
	}, {
		ID:              11,
		Date:            models.Date{Year: 2025, Month: 10, Day: 19},
		RawTime:         "tomorrow",
		Status:          models.StatusCancelled,
		CancelledReason: models.ReasonExpired,
	}}

	t.Run("SetAndGetView", func(t *testing.T) {
		require.NoError(t, repo.SetView(ctx, "client:5", view))

		got, err := repo.GetView(ctx, "client:5")
		require.NoError(t, err)
		assert.Equal(t, view, got)
		assert.True(t, s.Exists("appointments_view:client:5"))
		assert.Equal(t, time.Hour, s.TTL("appointments_view:client:5"))
	})

	t.Run("GetNonExistentView", func(t *testing.T) {
		got, err := repo.GetView(ctx, "client:999")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ClearView", func(t *testing.T) {
		require.NoError(t, repo.ClearView(ctx, "client:5"))
		got, err := repo.GetView(ctx, "client:5")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("CorruptValue", func(t *testing.T) {
		require.NoError(t, s.Set("appointments_view:shop:1", "{not json"))
		_, err := repo.GetView(ctx, "shop:1")
		assert.Error(t, err)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, client))
	})

	t.Run("ServerDown", func(t *testing.T) {
		s.Close()
		_, err := repo.GetView(ctx, "client:5")
		assert.Error(t, err)
		assert.Error(t, repo.SetView(ctx, "client:5", view))
		assert.Error(t, Ping(ctx, client))
	})
}

func TestRedisViewCacheNilClient(t *testing.T) {
	repo := NewRedisViewCache(nil, time.Hour)
	ctx := context.Background()

	_, err := repo.GetView(ctx, "client:1")
	assert.Error(t, err)
	assert.Error(t, repo.SetView(ctx, "client:1", nil))
	assert.Error(t, repo.ClearView(ctx, "client:1"))
	assert.NoError(t, Close(nil))
}

func TestRedisWithFailover(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: s.Addr(), MaxRetries: -1})
	defer client.Close()

	cache := NewFailoverViewCache(NewRedisViewCache(client, time.Hour), NewMemoryViewCache(time.Hour), nil)
	ctx := context.Background()
	view := []models.Appointment{{ID: 1, Status: models.StatusPending}}

	require.NoError(t, cache.SetView(ctx, "client:1", view))
	assert.False(t, cache.Degraded())

	s.Close()

	require.NoError(t, cache.SetView(ctx, "client:2", view))
	assert.True(t, cache.Degraded())

	got, err := cache.GetView(ctx, "client:2")
	require.NoError(t, err)
	assert.Equal(t, view, got)
}
