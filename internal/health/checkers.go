package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/kestrel-ops/kestrel/internal/circuitbreaker"
	"github.com/kestrel-ops/kestrel/internal/db"
)

// RedisChecker checks the session/memory Redis through its breaker wrapper.
type RedisChecker struct {
	redis *circuitbreaker.RedisWrapper
}

func NewRedisChecker(redis *circuitbreaker.RedisWrapper) *RedisChecker {
	return &RedisChecker{redis: redis}
}

func (c *RedisChecker) Name() string           { return "redis" }
func (c *RedisChecker) IsCritical() bool       { return true }
func (c *RedisChecker) Timeout() time.Duration { return 3 * time.Second }

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	if c.redis == nil {
		return CheckResult{Status: StatusUnknown, Message: "redis not configured"}
	}
	if c.redis.IsCircuitBreakerOpen() {
		return CheckResult{Status: StatusUnhealthy, Error: "circuit breaker open"}
	}
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// PostgresChecker checks the investigation history database.
type PostgresChecker struct {
	db *db.Client
}

func NewPostgresChecker(dbClient *db.Client) *PostgresChecker {
	return &PostgresChecker{db: dbClient}
}

func (c *PostgresChecker) Name() string           { return "postgres" }
func (c *PostgresChecker) IsCritical() bool       { return false } // persistence is best-effort
func (c *PostgresChecker) Timeout() time.Duration { return 3 * time.Second }

func (c *PostgresChecker) Check(ctx context.Context) CheckResult {
	if c.db == nil {
		return CheckResult{Status: StatusUnknown, Message: "database not configured"}
	}
	if err := c.db.HealthCheck(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// TemporalChecker checks the workflow service connection.
type TemporalChecker struct {
	client client.Client
}

func NewTemporalChecker(tc client.Client) *TemporalChecker {
	return &TemporalChecker{client: tc}
}

func (c *TemporalChecker) Name() string           { return "temporal" }
func (c *TemporalChecker) IsCritical() bool       { return true }
func (c *TemporalChecker) Timeout() time.Duration { return 5 * time.Second }

func (c *TemporalChecker) Check(ctx context.Context) CheckResult {
	if c.client == nil {
		return CheckResult{Status: StatusUnknown, Message: "temporal not configured"}
	}
	if _, err := c.client.CheckHealth(ctx, &client.CheckHealthRequest{}); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// HTTPServiceChecker checks an HTTP dependency (LLM service, tool gateway).
type HTTPServiceChecker struct {
	name     string
	url      string
	critical bool
	client   *http.Client
}

func NewHTTPServiceChecker(name, url string, critical bool) *HTTPServiceChecker {
	return &HTTPServiceChecker{
		name:     name,
		url:      url,
		critical: critical,
		client:   &http.Client{Timeout: 3 * time.Second},
	}
}

func (c *HTTPServiceChecker) Name() string           { return c.name }
func (c *HTTPServiceChecker) IsCritical() bool       { return c.critical }
func (c *HTTPServiceChecker) Timeout() time.Duration { return 4 * time.Second }

func (c *HTTPServiceChecker) Check(ctx context.Context) CheckResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return CheckResult{Status: StatusUnknown, Error: err.Error()}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return CheckResult{
			Status: StatusUnhealthy,
			Error:  fmt.Sprintf("%s returned %d", c.name, resp.StatusCode),
		}
	}
	return CheckResult{Status: StatusHealthy}
}
