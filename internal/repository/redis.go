package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"restobook/internal/config"
	"restobook/internal/models"

	"github.com/redis/go-redis/v9"
)

const waitlistTTL = 48 * time.Hour

type RedisStateRepository struct {
	client *redis.Client
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisStateRepository(client *redis.Client) *RedisStateRepository {
	return &RedisStateRepository{client: client}
}

func responseKey(correlationID string) string {
	return "booking_response:" + correlationID
}

func waitlistKey(day time.Time) string {
	return "waitlist:" + day.Format(time.DateOnly)
}

func rateLimitKey(guestID int64) string {
	return fmt.Sprintf("rate_limit:guest:%d", guestID)
}

// GetResponse returns nil when nothing is stored for the correlation id.
func (r *RedisStateRepository) GetResponse(ctx context.Context, correlationID string) (*models.BookingResponse, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, responseKey(correlationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get response from redis: %w", err)
	}

	var resp models.BookingResponse
	if err := json.Unmarshal(val, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &resp, nil
}

func (r *RedisStateRepository) SaveResponse(ctx context.Context, resp *models.BookingResponse, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if resp.CorrelationID == "" {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	if err := r.client.Set(ctx, responseKey(resp.CorrelationID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set response in redis: %w", err)
	}
	return nil
}

// NextWaitlistPosition increments the per-day waitlist counter.
func (r *RedisStateRepository) NextWaitlistPosition(ctx context.Context, day time.Time) (int64, error) {
	if r.client == nil {
		return 0, fmt.Errorf("redis client is nil")
	}
	key := waitlistKey(day)
	pos, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment waitlist: %w", err)
	}
	if pos == 1 {
		r.client.Expire(ctx, key, waitlistTTL)
	}
	return pos, nil
}

func (r *RedisStateRepository) CheckRateLimit(ctx context.Context, guestID int64, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	key := rateLimitKey(guestID)
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, key, window)
	}

	return count <= int64(limit), nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
