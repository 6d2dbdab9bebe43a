package circuitbreaker

import (
	"os"
	"strconv"
	"time"
)

// CircuitBreakerConfig is the env-tunable subset of breaker settings. Each
// wrapped dependency gets its own CB_* variable family.
type CircuitBreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	SuccessThreshold uint32
}

// GetRedisConfig reads the Redis breaker tuning from the environment.
func GetRedisConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests:      getEnvUint32("CB_REDIS_MAX_REQUESTS", 5),
		Interval:         getEnvDuration("CB_REDIS_INTERVAL", 30*time.Second),
		Timeout:          getEnvDuration("CB_REDIS_TIMEOUT", 15*time.Second),
		FailureThreshold: getEnvUint32("CB_REDIS_FAILURE_THRESHOLD", 3),
		SuccessThreshold: getEnvUint32("CB_REDIS_SUCCESS_THRESHOLD", 2),
	}
}

// GetDatabaseConfig reads the Postgres breaker tuning from the environment.
func GetDatabaseConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests:      getEnvUint32("CB_DB_MAX_REQUESTS", 3),
		Interval:         getEnvDuration("CB_DB_INTERVAL", 60*time.Second),
		Timeout:          getEnvDuration("CB_DB_TIMEOUT", 30*time.Second),
		FailureThreshold: getEnvUint32("CB_DB_FAILURE_THRESHOLD", 5),
		SuccessThreshold: getEnvUint32("CB_DB_SUCCESS_THRESHOLD", 2),
	}
}

// GetHTTPConfig reads the outbound HTTP breaker tuning from the environment.
// Both the LLM and tool gateway wrappers start from these values.
func GetHTTPConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests:      getEnvUint32("CB_HTTP_MAX_REQUESTS", 5),
		Interval:         getEnvDuration("CB_HTTP_INTERVAL", 30*time.Second),
		Timeout:          getEnvDuration("CB_HTTP_TIMEOUT", 15*time.Second),
		FailureThreshold: getEnvUint32("CB_HTTP_FAILURE_THRESHOLD", 3),
		SuccessThreshold: getEnvUint32("CB_HTTP_SUCCESS_THRESHOLD", 2),
	}
}

// ToConfig expands the tunable subset into a full breaker Config. The state
// change callback is installed later by the metrics collector.
func (cbc CircuitBreakerConfig) ToConfig() Config {
	return Config{
		MaxRequests:      cbc.MaxRequests,
		Interval:         cbc.Interval,
		Timeout:          cbc.Timeout,
		FailureThreshold: cbc.FailureThreshold,
		SuccessThreshold: cbc.SuccessThreshold,
	}
}

func getEnvUint32(key string, defaultValue uint32) uint32 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseUint(val, 10, 32); err == nil {
			return uint32(parsed)
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}
