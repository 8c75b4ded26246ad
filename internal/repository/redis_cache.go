package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	// Префикс ключей бронирований
	bookingKeyPrefix = "booking:"

	// TTL для кэша
	defaultCacheTTL = 15 * time.Minute
)

// RedisConfig параметры подключения к Redis
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisClient создает клиент Redis и проверяет соединение
func NewRedisClient(ctx context.Context, cfg RedisConfig, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Errorw("Failed to connect to Redis", "error", err)
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Infow("Connected to Redis successfully", "addr", cfg.Addr)
	return client, nil
}

// BookingCache кеширует бронирования по ID в Redis
type BookingCache struct {
	client redis.Cmdable
	ttl    time.Duration
	log    *logger.Logger
}

// NewBookingCache создает новый кеш бронирований
func NewBookingCache(client redis.Cmdable, ttl time.Duration, log *logger.Logger) *BookingCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &BookingCache{client: client, ttl: ttl, log: log}
}

// Put кеширует бронирование
func (c *BookingCache) Put(ctx context.Context, b *domain.Booking) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal booking: %w", err)
	}

	if err := c.client.Set(ctx, bookingKeyPrefix+b.ID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache booking: %w", err)
	}
	return nil
}

// Get получает бронирование из кеша; (nil, nil) если ключа нет
func (c *BookingCache) Get(ctx context.Context, id string) (*domain.Booking, error) {
	data, err := c.client.Get(ctx, bookingKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get booking from cache: %w", err)
	}

	var b domain.Booking
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached booking: %w", err)
	}
	return &b, nil
}

// Invalidate удаляет бронирования из кеша
func (c *BookingCache) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = bookingKeyPrefix + id
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate bookings: %w", err)
	}
	return nil
}
