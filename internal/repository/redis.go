package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"barberbook/internal/config"
	"barberbook/internal/models"

	"github.com/redis/go-redis/v9"
)

const viewKeyPrefix = "appointments_view:"

// RedisViewCache keeps actor views as JSON strings with a TTL.
type RedisViewCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisViewCache(client *redis.Client, ttl time.Duration) *RedisViewCache {
	return &RedisViewCache{client: client, ttl: ttl}
}

func (r *RedisViewCache) GetView(ctx context.Context, key string) ([]models.Appointment, error) {
	if r.client == nil {
		return nil, errors.New("redis client is nil")
	}
	val, err := r.client.Get(ctx, viewKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get view from redis: %w", err)
	}

	var list []models.Appointment
	if err := json.Unmarshal(val, &list); err != nil {
		return nil, fmt.Errorf("failed to unmarshal view: %w", err)
	}
	return list, nil
}

func (r *RedisViewCache) SetView(ctx context.Context, key string, appointments []models.Appointment) error {
	if r.client == nil {
		return errors.New("redis client is nil")
	}
	if appointments == nil {
		appointments = []models.Appointment{}
	}
	data, err := json.Marshal(appointments)
	if err != nil {
		return fmt.Errorf("failed to marshal view: %w", err)
	}
	if err := r.client.Set(ctx, viewKeyPrefix+key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set view in redis: %w", err)
	}
	return nil
}

func (r *RedisViewCache) ClearView(ctx context.Context, key string) error {
	if r.client == nil {
		return errors.New("redis client is nil")
	}
	if err := r.client.Del(ctx, viewKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete view from redis: %w", err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
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
