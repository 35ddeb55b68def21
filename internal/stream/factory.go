package stream

import (
	"github.com/redis/go-redis/v9"
)

type Config struct {
	Backend string // "memory" or "redis"
	Prefix  string
}

func NewLog(cfg Config, redisClient *redis.Client) Log {
	switch cfg.Backend {
	case "redis":
		return NewRedisLog(redisClient, RedisConfig{
			Prefix: cfg.Prefix,
		})
	default:
		return NewMemoryLog()
	}
}
