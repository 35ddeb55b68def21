package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLog implements Log on Redis Streams. XADD with MAXLEN gives the
// bounded-FIFO semantics directly; trimming is approximate ("~") to
// keep appends O(1).
type RedisLog struct {
	client *redis.Client
	prefix string
}

type RedisConfig struct {
	Prefix string
}

func NewRedisLog(client *redis.Client, config RedisConfig) *RedisLog {
	return &RedisLog{
		client: client,
		prefix: config.Prefix,
	}
}

func (l *RedisLog) key(name string) string {
	if l.prefix == "" {
		return name
	}
	return l.prefix + ":" + name
}

func (l *RedisLog) Append(ctx context.Context, name string, ev Event, maxLen int) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	if maxLen <= 0 {
		maxLen = 1000
	}

	args := &redis.XAddArgs{
		Stream: l.key(name),
		MaxLen: int64(maxLen),
		Approx: true,
		Values: map[string]any{
			"entity":     ev.Entity,
			"group":      ev.Group,
			"state":      ev.State,
			"page":       ev.Page,
			"page_size":  ev.PageSize,
			"total":      ev.Total,
			"data_count": ev.DataCount,
			"cache_key":  ev.CacheKey,
			"timestamp":  ev.Timestamp.Format(time.RFC3339Nano),
		},
	}

	if err := l.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis xadd failed: %w", err)
	}

	return nil
}
