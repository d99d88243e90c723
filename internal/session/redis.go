package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/clearancehq/tiergate/internal/observability"
	"github.com/clearancehq/tiergate/internal/tier"
)

// DefaultKeyPrefix prefixes all session keys in Redis.
const DefaultKeyPrefix = "tiergate:session:"

// DefaultOpTimeout bounds each Redis operation.
const DefaultOpTimeout = 2 * time.Second

// RedisStore is the Redis-backed session store. Every operation runs
// through a circuit breaker; when the breaker is open or Redis fails the
// call returns ErrStoreUnavailable without waiting out the full timeout.
type RedisStore struct {
	client    redis.UniversalClient
	breaker   *gobreaker.CircuitBreaker
	keyPrefix string
	opTimeout time.Duration
	now       func() time.Time
	logger    observability.Logger
}

// RedisStoreOption is a functional option for the RedisStore.
type RedisStoreOption func(*RedisStore)

// WithRedisLogger sets the logger for the store.
func WithRedisLogger(logger observability.Logger) RedisStoreOption {
	return func(s *RedisStore) {
		s.logger = logger
	}
}

// WithKeyPrefix sets the Redis key prefix.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.keyPrefix = prefix
		}
	}
}

// WithOpTimeout bounds each Redis operation.
func WithOpTimeout(d time.Duration) RedisStoreOption {
	return func(s *RedisStore) {
		if d > 0 {
			s.opTimeout = d
		}
	}
}

// WithRedisClock overrides the time source. Tests only.
func WithRedisClock(now func() time.Time) RedisStoreOption {
	return func(s *RedisStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewRedisStore creates a Redis-backed session store around an existing
// client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client:    client,
		keyPrefix: DefaultKeyPrefix,
		opTimeout: DefaultOpTimeout,
		now:       time.Now,
		logger:    observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "session-redis",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			s.logger.Warn("session store circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			// A missing key is a healthy backend.
			return err == nil || errors.Is(err, redis.Nil)
		},
	})

	return s
}

func (s *RedisStore) key(handle string) string {
	return s.keyPrefix + handle
}

func (s *RedisStore) execute(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := s.breaker.Execute(func() (any, error) {
		opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
		defer cancel()
		return nil, op(opCtx)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return ErrSessionNotFound
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("circuit open: %w", ErrStoreUnavailable)
	case errors.Is(err, context.Canceled):
		return err
	default:
		s.logger.Warn("session store backend error", observability.Error(err))
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

// Get implements Store. Expiry is checked against the stored record even
// if Redis has not evicted the key yet.
func (s *RedisStore) Get(ctx context.Context, handle string) (*Record, error) {
	var rec Record
	err := s.execute(ctx, func(ctx context.Context) error {
		data, err := s.client.Get(ctx, s.key(handle)).Bytes()
		if err != nil {
			return err
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	if rec.Expired(s.now()) {
		return nil, ErrSessionNotFound
	}
	return &rec, nil
}

// GetTier implements Store.
func (s *RedisStore) GetTier(ctx context.Context, handle string) (tier.Tier, error) {
	return tierOf(ctx, s, handle)
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, handle string, rec *Record, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}
	return s.execute(ctx, func(ctx context.Context) error {
		return s.client.Set(ctx, s.key(handle), data, ttl).Err()
	})
}

// Invalidate implements Store.
func (s *RedisStore) Invalidate(ctx context.Context, handle string) error {
	err := s.execute(ctx, func(ctx context.Context) error {
		return s.client.Del(ctx, s.key(handle)).Err()
	})
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	return err
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
