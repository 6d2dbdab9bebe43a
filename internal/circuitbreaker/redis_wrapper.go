package circuitbreaker

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisWrapper wraps a Redis client with a circuit breaker. It is shared by the
// session manager and the memory store, so the owning service name is part of
// the metrics identity.
type RedisWrapper struct {
	client  *redis.Client
	cb      *CircuitBreaker
	service string
	logger  *zap.Logger
}

// NewRedisWrapper creates a Redis wrapper with circuit breaker
func NewRedisWrapper(client *redis.Client, service string, logger *zap.Logger) *RedisWrapper {
	config := GetRedisConfig().ToConfig()
	cb := NewCircuitBreaker("redis", config, logger)

	GlobalMetricsCollector.RegisterCircuitBreaker("redis", service, cb)

	return &RedisWrapper{
		client:  client,
		cb:      cb,
		service: service,
		logger:  logger,
	}
}

func (rw *RedisWrapper) record(err error, nilOK bool, cmdErr error) {
	state := rw.cb.State()
	success := err == nil && (cmdErr == nil || (nilOK && cmdErr == redis.Nil))
	GlobalMetricsCollector.RecordRequest("redis", rw.service, state, success)
}

// Ping wraps Redis Ping with circuit breaker
func (rw *RedisWrapper) Ping(ctx context.Context) *redis.StatusCmd {
	var result *redis.StatusCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Ping(ctx)
		return result.Err()
	})
	// Replace before recording: an open breaker leaves result as a typed
	// nil that must never be dereferenced.
	if err != nil {
		result = redis.NewStatusCmd(ctx)
		result.SetErr(err)
	}
	rw.record(err, false, result.Err())
	return result
}

// Get wraps Redis Get with circuit breaker
func (rw *RedisWrapper) Get(ctx context.Context, key string) *redis.StringCmd {
	var result *redis.StringCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Get(ctx, key)
		// Redis Nil is not considered an error for circuit breaker
		if result.Err() == redis.Nil {
			return nil
		}
		return result.Err()
	})
	if err != nil {
		result = redis.NewStringCmd(ctx)
		result.SetErr(err)
	}
	rw.record(err, true, result.Err())
	return result
}

// Set wraps Redis Set with circuit breaker
func (rw *RedisWrapper) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	var result *redis.StatusCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Set(ctx, key, value, expiration)
		return result.Err()
	})
	if err != nil {
		result = redis.NewStatusCmd(ctx)
		result.SetErr(err)
	}
	rw.record(err, false, result.Err())
	return result
}

// Del wraps Redis Del with circuit breaker
func (rw *RedisWrapper) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var result *redis.IntCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Del(ctx, keys...)
		return result.Err()
	})
	if err != nil {
		result = redis.NewIntCmd(ctx)
		result.SetErr(err)
	}
	rw.record(err, false, result.Err())
	return result
}

// Keys wraps Redis Keys with circuit breaker
func (rw *RedisWrapper) Keys(ctx context.Context, pattern string) *redis.StringSliceCmd {
	var result *redis.StringSliceCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Keys(ctx, pattern)
		return result.Err()
	})
	if err != nil {
		result = redis.NewStringSliceCmd(ctx)
		result.SetErr(err)
	}
	rw.record(err, false, result.Err())
	return result
}

// RPush wraps Redis RPush with circuit breaker. The memory store uses it for
// append-only event writes.
func (rw *RedisWrapper) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	var result *redis.IntCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.RPush(ctx, key, values...)
		return result.Err()
	})
	if err != nil {
		result = redis.NewIntCmd(ctx)
		result.SetErr(err)
	}
	rw.record(err, false, result.Err())
	return result
}

// LRange wraps Redis LRange with circuit breaker
func (rw *RedisWrapper) LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	var result *redis.StringSliceCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.LRange(ctx, key, start, stop)
		return result.Err()
	})
	if err != nil {
		result = redis.NewStringSliceCmd(ctx)
		result.SetErr(err)
	}
	rw.record(err, false, result.Err())
	return result
}

// LTrim wraps Redis LTrim with circuit breaker
func (rw *RedisWrapper) LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd {
	var result *redis.StatusCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.LTrim(ctx, key, start, stop)
		return result.Err()
	})
	if err != nil {
		result = redis.NewStatusCmd(ctx)
		result.SetErr(err)
	}
	rw.record(err, false, result.Err())
	return result
}

// Expire wraps Redis Expire with circuit breaker
func (rw *RedisWrapper) Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	var result *redis.BoolCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Expire(ctx, key, ttl)
		return result.Err()
	})
	if err != nil {
		result = redis.NewBoolCmd(ctx)
		result.SetErr(err)
	}
	rw.record(err, false, result.Err())
	return result
}

// Close wraps Redis Close
func (rw *RedisWrapper) Close() error {
	return rw.client.Close()
}

// GetClient returns the underlying Redis client for operations not covered by wrapper
func (rw *RedisWrapper) GetClient() *redis.Client {
	return rw.client
}

// IsCircuitBreakerOpen returns true if the circuit breaker is open
func (rw *RedisWrapper) IsCircuitBreakerOpen() bool {
	return rw.cb.State() == StateOpen
}
