package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"konsult/internal/config"
	"konsult/internal/models"

	"github.com/redis/go-redis/v9"
)

type RedisSessionRepository struct {
	client     *redis.Client
	guestTTL   time.Duration
	pendingTTL time.Duration
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	client := redis.NewClient(options)

	return client
}

func NewRedisSessionRepository(client *redis.Client, guestTTL, pendingTTL time.Duration) *RedisSessionRepository {
	return &RedisSessionRepository{
		client:     client,
		guestTTL:   guestTTL,
		pendingTTL: pendingTTL,
	}
}

func (r *RedisSessionRepository) GetGuestSession(ctx context.Context, purchaseID string) (*models.GuestSession, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	key := guestKey(purchaseID)
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guest session from redis: %w", err)
	}

	var session models.GuestSession
	if err := json.Unmarshal([]byte(val), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal guest session: %w", err)
	}

	return &session, nil
}

func (r *RedisSessionRepository) SetGuestSession(ctx context.Context, session *models.GuestSession) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal guest session: %w", err)
	}

	if err := r.client.Set(ctx, guestKey(session.PurchaseID), data, r.guestTTL).Err(); err != nil {
		return fmt.Errorf("failed to set guest session in redis: %w", err)
	}

	return nil
}

func (r *RedisSessionRepository) ClearGuestSession(ctx context.Context, purchaseID string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, guestKey(purchaseID)).Err(); err != nil {
		return fmt.Errorf("failed to delete guest session from redis: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) SetPendingPoll(ctx context.Context, purchaseID string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Set(ctx, pendingKey(purchaseID), "1", r.pendingTTL).Err(); err != nil {
		return fmt.Errorf("failed to set pending poll flag: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) IsPendingPoll(ctx context.Context, purchaseID string) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	_, err := r.client.Get(ctx, pendingKey(purchaseID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get pending poll flag: %w", err)
	}
	return true, nil
}

func (r *RedisSessionRepository) ClearPendingPoll(ctx context.Context, purchaseID string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, pendingKey(purchaseID)).Err(); err != nil {
		return fmt.Errorf("failed to clear pending poll flag: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	redisKey := fmt.Sprintf("rate_limit:%s", key)
	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, redisKey, window)
	}

	return count <= int64(limit), nil
}

func guestKey(purchaseID string) string {
	return fmt.Sprintf("guest_session:%s", purchaseID)
}

func pendingKey(purchaseID string) string {
	return fmt.Sprintf("pending_poll:%s", purchaseID)
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
