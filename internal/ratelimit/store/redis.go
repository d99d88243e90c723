package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/clearancehq/tiergate/internal/observability"
)

// Prometheus metrics for Redis counter operations.
var (
	redisOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tiergate",
			Subsystem: "ratelimit",
			Name:      "redis_operations_total",
			Help:      "Total number of Redis rate limit store operations",
		},
		[]string{"operation", "status"},
	)

	redisOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tiergate",
			Subsystem: "ratelimit",
			Name:      "redis_operation_duration_seconds",
			Help:      "Duration of Redis rate limit store operations in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)
)

// incrementWithExpiryScript atomically increments a counter and sets its
// expiration when the key is new.
// KEYS[1] = key, ARGV[1] = delta, ARGV[2] = expiration in seconds
var incrementWithExpiryScript = redis.NewScript(`
	local current = redis.call('INCRBY', KEYS[1], ARGV[1])
	if current == tonumber(ARGV[1]) then
		redis.call('EXPIRE', KEYS[1], ARGV[2])
	end
	return current
`)

// DefaultPrefix prefixes all rate limit counter keys in Redis.
const DefaultPrefix = "tiergate:ratelimit:"

// RedisStore implements Store using Redis.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	logger observability.Logger
}

// NewRedisStore creates a Redis counter store around an existing client.
// An empty prefix selects DefaultPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string, logger observability.Logger) *RedisStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &RedisStore{client: client, prefix: prefix, logger: logger}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	defer func() {
		redisOperationDuration.WithLabelValues("get").Observe(time.Since(start).Seconds())
	}()

	v, err := s.client.Get(ctx, s.prefix+key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			redisOperationsTotal.WithLabelValues("get", "miss").Inc()
			return 0, ErrKeyNotFound
		}
		redisOperationsTotal.WithLabelValues("get", "error").Inc()
		return 0, fmt.Errorf("redis get %s: %w", key, err)
	}
	redisOperationsTotal.WithLabelValues("get", "success").Inc()
	return v, nil
}

// IncrementWithExpiry implements Store.
func (s *RedisStore) IncrementWithExpiry(ctx context.Context, key string, delta int64, expiration time.Duration) (int64, error) {
	start := time.Now()
	defer func() {
		redisOperationDuration.WithLabelValues("increment").Observe(time.Since(start).Seconds())
	}()

	seconds := int64(expiration / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	v, err := incrementWithExpiryScript.Run(ctx, s.client, []string{s.prefix + key}, delta, seconds).Int64()
	if err != nil {
		redisOperationsTotal.WithLabelValues("increment", "error").Inc()
		return 0, fmt.Errorf("redis increment %s: %w", key, err)
	}
	redisOperationsTotal.WithLabelValues("increment", "success").Inc()
	return v, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		redisOperationsTotal.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	redisOperationsTotal.WithLabelValues("delete", "success").Inc()
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
