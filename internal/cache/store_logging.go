package cache

import (
	"context"
	"strconv"
	"strings"
	"time"

	"snowgate/internal/metrics"
	"snowgate/pkg/logging/logging"

	"go.uber.org/zap"
)

// LoggingStore wraps a Store with logging + metrics.
type LoggingStore struct {
	inner Store
}

// NewLoggingStore returns a store that logs and records metrics.
func NewLoggingStore(inner Store) Store {
	return &LoggingStore{inner: inner}
}

func (s *LoggingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	value, ok, err := s.inner.Get(ctx, key)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	logger := logging.L(ctx)

	result := "miss"
	if err != nil {
		result = "error"
	} else if ok {
		result = "hit"
		metrics.CacheHitsTotal.Inc()
	}

	fields := []zap.Field{
		zap.String("cache_key", key),
		zap.String("cache_result", result), // hit | miss | error
		zap.Float64("latency_ms", latencyMs),
	}
	fields = appendKeyParts(fields, key)

	if err != nil {
		logger.Error("cache_get", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("cache_get", fields...)
	}

	return value, ok, err
}

func (s *LoggingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := s.inner.Set(ctx, key, value, ttl)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	logger := logging.L(ctx)

	fields := []zap.Field{
		zap.String("cache_key", key),
		zap.Duration("ttl", ttl),
		zap.Float64("latency_ms", latencyMs),
	}
	fields = appendKeyParts(fields, key)

	if err != nil {
		logger.Error("cache_set", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("cache_set", fields...)
	}

	return err
}

// appendKeyParts expands a PageKey.String() into structured fields.
// Keys from other producers pass through untouched.
func appendKeyParts(fields []zap.Field, key string) []zap.Field {
	parts := strings.Split(key, ":")
	if len(parts) != 7 || parts[0] != "page" {
		return fields
	}

	page, _ := strconv.Atoi(parts[5])
	size, _ := strconv.Atoi(parts[6])

	return append(fields,
		zap.String("entity", parts[1]),
		zap.String("group", parts[2]),
		zap.String("state", parts[3]),
		zap.String("window", parts[4]),
		zap.Int("page", page),
		zap.Int("page_size", size),
	)
}
