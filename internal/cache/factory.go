package cache

import (
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Backend         string // "memory" or "redis"
	Prefix          string
	CleanupInterval time.Duration // memory backend only
}

func NewStore(cfg Config, redisClient *redis.Client) Store {
	switch cfg.Backend {
	case "redis":
		return NewRedisStore(redisClient, RedisConfig{
			Prefix: cfg.Prefix,
		})
	default:
		return NewMemoryStore(cfg.CleanupInterval)
	}
}
