package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/streamd/services/stats/internal/watchstats"
)

const redisKeyPrefix = "streamd:stats:"

type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisCache(url string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &RedisCache{Client: redis.NewClient(opt), TTL: ttl}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (watchstats.UserStats, bool, error) {
	val, err := c.Client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return watchstats.UserStats{}, false, nil
		}
		return watchstats.UserStats{}, false, err
	}
	var out watchstats.UserStats
	if err := json.Unmarshal(val, &out); err != nil {
		return watchstats.UserStats{}, false, err
	}
	return out, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, v watchstats.UserStats) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, redisKeyPrefix+key, b, c.TTL).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.Client.Del(ctx, redisKeyPrefix+key).Err()
}

func (c *RedisCache) Flush(ctx context.Context) error {
	iter := c.Client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.Client.Del(ctx, keys...).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}
