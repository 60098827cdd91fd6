package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const rateKey = "tezgahpos:rates"

type RedisRateCache struct {
	client *redis.Client
}

func NewRedisRateCache(addr string, password string, db int) *RedisRateCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisRateCache{client: client}
}

func (c *RedisRateCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisRateCache) Close() error {
	return c.client.Close()
}

func (c *RedisRateCache) Get(ctx context.Context) (map[string]decimal.Decimal, bool, error) {
	val, err := c.client.Get(ctx, rateKey).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var rates map[string]decimal.Decimal
	if err := json.Unmarshal([]byte(val), &rates); err != nil {
		return nil, false, err
	}
	return rates, true, nil
}

func (c *RedisRateCache) Set(ctx context.Context, rates map[string]decimal.Decimal, ttl time.Duration) error {
	if len(rates) == 0 {
		return nil
	}
	payload, err := json.Marshal(rates)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, rateKey, payload, ttl).Err()
}
