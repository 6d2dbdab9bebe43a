package config

import (
	"fmt"
	"time"
)

// KestrelConfig is the main orchestrator configuration.
type KestrelConfig struct {
	// Service configuration
	Service ServiceConfig `json:"service" yaml:"service"`

	// Authentication configuration
	Auth AuthConfig `json:"auth" yaml:"auth"`

	// Redis connection settings
	Redis RedisConfig `json:"redis" yaml:"redis"`

	// Postgres investigation history store
	Database DatabaseConfig `json:"database" yaml:"database"`

	// Temporal workflow configuration
	Temporal TemporalConfig `json:"temporal" yaml:"temporal"`

	// LLM completion endpoint configuration
	LLM LLMConfig `json:"llm" yaml:"llm"`

	// Tool gateway configuration
	Tools ToolsConfig `json:"tools" yaml:"tools"`

	// Long-term memory store configuration
	Memory MemoryConfig `json:"memory" yaml:"memory"`

	// Session management configuration
	Session SessionConfig `json:"session" yaml:"session"`

	// Policy engine configuration
	Policy PolicyConfig `json:"policy" yaml:"policy"`

	// Health check configuration
	Health HealthConfig `json:"health" yaml:"health"`

	// Tracing configuration
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`

	// Streaming configuration (replay ring)
	Streaming StreamingConfig `json:"streaming" yaml:"streaming"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// ServiceConfig contains the HTTP API settings.
type ServiceConfig struct {
	Port            int           `json:"port" yaml:"port"`
	GracefulTimeout time.Duration `json:"graceful_timeout" yaml:"graceful_timeout"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// AuthConfig contains authentication configuration.
type AuthConfig struct {
	// Enabled turns on bearer-token verification for the API. When false
	// the middleware passes requests through unchanged.
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	PoolSize int    `json:"pool_size" yaml:"pool_size"`
}

// DatabaseConfig contains Postgres settings for the investigation history
// store.
type DatabaseConfig struct {
	Enabled         bool          `json:"enabled" yaml:"enabled"`
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	User            string        `json:"user" yaml:"user"`
	Password        string        `json:"password" yaml:"password"`
	Database        string        `json:"database" yaml:"database"`
	SSLMode         string        `json:"ssl_mode" yaml:"ssl_mode"`
	MaxConnections  int           `json:"max_connections" yaml:"max_connections"`
	IdleConnections int           `json:"idle_connections" yaml:"idle_connections"`
	MaxLifetime     time.Duration `json:"max_lifetime" yaml:"max_lifetime"`
}

// TemporalConfig contains Temporal workflow settings.
type TemporalConfig struct {
	HostPort  string        `json:"host_port" yaml:"host_port"`
	Namespace string        `json:"namespace" yaml:"namespace"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`
}

// LLMConfig contains the chat-completion endpoint settings.
type LLMConfig struct {
	BaseURL        string        `json:"base_url" yaml:"base_url"`
	APIKey         string        `json:"api_key" yaml:"api_key"`
	Model          string        `json:"model" yaml:"model"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`
	RequestsPerSec float64       `json:"requests_per_sec" yaml:"requests_per_sec"`
	Burst          int           `json:"burst" yaml:"burst"`
}

// ToolsConfig contains the tool gateway settings.
type ToolsConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	// SharedTools are available to every specialist in addition to its
	// persona allow-list.
	SharedTools []string `json:"shared_tools" yaml:"shared_tools"`
}

// MemoryConfig contains long-term memory store settings.
type MemoryConfig struct {
	TTL        time.Duration `json:"ttl" yaml:"ttl"`
	MaxRecords int64         `json:"max_records" yaml:"max_records"`
	// MaxMessageLen caps one conversation turn before truncation.
	MaxMessageLen int `json:"max_message_len" yaml:"max_message_len"`
}

// SessionConfig contains session management settings.
type SessionConfig struct {
	TTL        time.Duration `json:"ttl" yaml:"ttl"`
	MaxHistory int           `json:"max_history" yaml:"max_history"`
}

// PolicyConfig contains policy engine settings.
type PolicyConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Mode        string `json:"mode" yaml:"mode"` // "off", "dry-run", "enforce"
	Path        string `json:"path" yaml:"path"`
	FailClosed  bool   `json:"fail_closed" yaml:"fail_closed"`
	Environment string `json:"environment" yaml:"environment"`
}

// HealthConfig contains health check settings.
type HealthConfig struct {
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	CheckInterval time.Duration `json:"check_interval" yaml:"check_interval"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout"`
}

// TracingConfig contains OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	ServiceName  string `json:"service_name" yaml:"service_name"`
	OTLPEndpoint string `json:"otlp_endpoint" yaml:"otlp_endpoint"`
}

// StreamingConfig contains streaming settings (replay ring).
type StreamingConfig struct {
	RingCapacity int `json:"ring_capacity" yaml:"ring_capacity"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level       string `json:"level" yaml:"level"`
	Development bool   `json:"development" yaml:"development"`
	Encoding    string `json:"encoding" yaml:"encoding"` // "json" or "console"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *KestrelConfig {
	return &KestrelConfig{
		Service: ServiceConfig{
			Port:            8080,
			GracefulTimeout: 30 * time.Second,
			ReadTimeout:     30 * time.Second,
			IdleTimeout:     120 * time.Second,
		},
		Auth: AuthConfig{
			Enabled:   false,
			JWTSecret: "",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			DB:       0,
			PoolSize: 10,
		},
		Database: DatabaseConfig{
			Enabled:         true,
			Host:            "localhost",
			Port:            5432,
			User:            "kestrel",
			Database:        "kestrel",
			SSLMode:         "disable",
			MaxConnections:  25,
			IdleConnections: 5,
			MaxLifetime:     5 * time.Minute,
		},
		Temporal: TemporalConfig{
			HostPort:  "localhost:7233",
			Namespace: "default",
			Timeout:   30 * time.Second,
		},
		LLM: LLMConfig{
			BaseURL:        "http://localhost:8000",
			Model:          "gpt-4o-mini",
			Timeout:        60 * time.Second,
			RequestsPerSec: 5,
			Burst:          10,
		},
		Tools: ToolsConfig{
			BaseURL:     "http://localhost:8001",
			SharedTools: nil,
		},
		Memory: MemoryConfig{
			TTL:           30 * 24 * time.Hour,
			MaxRecords:    200,
			MaxMessageLen: 8192,
		},
		Session: SessionConfig{
			TTL:        30 * 24 * time.Hour,
			MaxHistory: 500,
		},
		Policy: PolicyConfig{
			Enabled:     false,
			Mode:        "dry-run",
			Path:        "config/policies",
			FailClosed:  false,
			Environment: "dev",
		},
		Health: HealthConfig{
			Enabled:       true,
			CheckInterval: 30 * time.Second,
			Timeout:       5 * time.Second,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			ServiceName:  "kestrel-orchestrator",
			OTLPEndpoint: "localhost:4317",
		},
		Streaming: StreamingConfig{
			RingCapacity: 256,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Development: false,
			Encoding:    "json",
		},
	}
}

// Validate checks cross-field constraints on a loaded configuration.
func (c *KestrelConfig) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("service port must be between 1 and 65535, got %d", c.Service.Port)
	}
	if c.Auth.Enabled && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth is enabled but jwt_secret is shorter than 32 characters")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}
	if c.Temporal.HostPort == "" {
		return fmt.Errorf("temporal host_port is required")
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm base_url is required")
	}
	if c.LLM.RequestsPerSec <= 0 {
		return fmt.Errorf("llm requests_per_sec must be positive, got %v", c.LLM.RequestsPerSec)
	}
	if c.Memory.MaxRecords < 1 {
		return fmt.Errorf("memory max_records must be at least 1, got %d", c.Memory.MaxRecords)
	}
	if c.Session.MaxHistory < 1 {
		return fmt.Errorf("session max_history must be at least 1, got %d", c.Session.MaxHistory)
	}
	switch c.Policy.Mode {
	case "off", "dry-run", "enforce":
	default:
		return fmt.Errorf("policy mode must be off, dry-run, or enforce, got %q", c.Policy.Mode)
	}
	if c.Streaming.RingCapacity < 1 {
		return fmt.Errorf("streaming ring_capacity must be at least 1, got %d", c.Streaming.RingCapacity)
	}
	return nil
}

// ValidateKestrelConfig validates a raw configuration map before it is
// applied by the hot-reload manager. Numbers arrive as int from yaml and
// float64 from json.
func ValidateKestrelConfig(config map[string]interface{}) error {
	if service, ok := config["service"].(map[string]interface{}); ok {
		if port, ok := asNumber(service["port"]); ok && (port < 1 || port > 65535) {
			return fmt.Errorf("service port must be between 1 and 65535, got %v", port)
		}
	}
	if llm, ok := config["llm"].(map[string]interface{}); ok {
		if rps, ok := asNumber(llm["requests_per_sec"]); ok && rps <= 0 {
			return fmt.Errorf("llm requests_per_sec must be positive, got %v", rps)
		}
	}
	if policy, ok := config["policy"].(map[string]interface{}); ok {
		if mode, ok := policy["mode"].(string); ok {
			switch mode {
			case "off", "dry-run", "enforce":
			default:
				return fmt.Errorf("policy mode must be off, dry-run, or enforce, got %q", mode)
			}
		}
	}
	if streaming, ok := config["streaming"].(map[string]interface{}); ok {
		if capacity, ok := asNumber(streaming["ring_capacity"]); ok && capacity < 1 {
			return fmt.Errorf("streaming ring_capacity must be at least 1, got %v", capacity)
		}
	}
	return nil
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
