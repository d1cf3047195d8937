package repository

import (
	"context"
	"testing"
	"time"

	"restobook/internal/config"
	"restobook/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStateRepository(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer client.Close()

	repo := NewRedisStateRepository(client)
	ctx := context.Background()

	t.Run("SaveAndGetResponse", func(t *testing.T) {
		resp := models.NewWaitlistResponse("corr-1", 5, 3)

		require.NoError(t, repo.SaveResponse(ctx, resp, time.Minute))

		got, err := repo.GetResponse(ctx, "corr-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.ResponseWaitlist, got.Type)
		assert.Equal(t, int64(5), got.RequestID)
		require.NotNil(t, got.Waitlist)
		assert.Equal(t, int64(3), got.Waitlist.QueuePosition)

		s.FastForward(time.Minute + time.Second)
		got, err = repo.GetResponse(ctx, "corr-1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ResponseWithoutCorrelationIsNotStored", func(t *testing.T) {
		require.NoError(t, repo.SaveResponse(ctx, models.NewWaitlistResponse("", 1, 1), time.Minute))
		assert.False(t, s.Exists(responseKey("")))
	})

	t.Run("GetMissingResponse", func(t *testing.T) {
		got, err := repo.GetResponse(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("CorruptResponse", func(t *testing.T) {
		require.NoError(t, s.Set(responseKey("bad"), "{not json"))
		_, err := repo.GetResponse(ctx, "bad")
		assert.ErrorContains(t, err, "failed to unmarshal response")
	})

	t.Run("WaitlistPositions", func(t *testing.T) {
		day := time.Date(2025, 7, 13, 0, 0, 0, 0, time.UTC)

		for want := int64(1); want <= 3; want++ {
			pos, err := repo.NextWaitlistPosition(ctx, day)
			require.NoError(t, err)
			assert.Equal(t, want, pos)
		}

		other, err := repo.NextWaitlistPosition(ctx, day.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.Equal(t, int64(1), other)

		assert.Equal(t, waitlistTTL, s.TTL(waitlistKey(day)))
	})

	t.Run("RateLimit", func(t *testing.T) {
		guestID := int64(789)
		limit := 2
		window := time.Second

		// First request
		allowed, err := repo.CheckRateLimit(ctx, guestID, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		// Second request
		allowed, err = repo.CheckRateLimit(ctx, guestID, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		// Third request (exceeds limit)
		allowed, err = repo.CheckRateLimit(ctx, guestID, limit, window)
		require.NoError(t, err)
		assert.False(t, allowed)

		// Wait for window to expire
		s.FastForward(window + time.Millisecond)

		// Should be allowed again
		allowed, err = repo.CheckRateLimit(ctx, guestID, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("NilClient", func(t *testing.T) {
		repo := NewRedisStateRepository(nil)
		_, err := repo.GetResponse(ctx, "x")
		assert.ErrorContains(t, err, "redis client is nil")
		assert.Error(t, repo.SaveResponse(ctx, models.NewWaitlistResponse("x", 1, 1), time.Minute))
		_, err = repo.NextWaitlistPosition(ctx, time.Now())
		assert.Error(t, err)
		_, err = repo.CheckRateLimit(ctx, 1, 1, time.Second)
		assert.Error(t, err)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, client))
	})

	t.Run("Close", func(t *testing.T) {
		assert.NoError(t, Close(client))
		assert.NoError(t, Close(nil))
	})
}

func TestRedisStateRepositoryServerDown(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: s.Addr(), MaxRetries: -1})
	defer client.Close()
	s.Close()

	repo := NewRedisStateRepository(client)
	_, err = repo.GetResponse(context.Background(), "x")
	assert.ErrorContains(t, err, "failed to get response from redis")
	assert.Error(t, Ping(context.Background(), client))
}
