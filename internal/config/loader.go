package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Load reads the orchestrator configuration. The file path comes from
// CONFIG_PATH, falling back to config/kestrel.yaml. A missing file is not an
// error; defaults plus environment overrides apply.
func Load() (*KestrelConfig, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/kestrel.yaml"
	}
	return LoadFromFile(cfgPath)
}

// LoadFromFile reads configuration from the given file, overlays it on the
// defaults, applies environment overrides, and validates the result.
func LoadFromFile(path string) (*KestrelConfig, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		v := viper.New()
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
			dc.TagName = "yaml"
		}); err != nil {
			return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides maps deployment environment variables over the file
// configuration. Env wins over file, file wins over defaults.
func applyEnvOverrides(cfg *KestrelConfig) {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			cfg.Service.Port = p
		}
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
		cfg.Auth.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("POSTGRES_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			cfg.Database.Port = p
		}
	}
	if v := os.Getenv("POSTGRES_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("POSTGRES_DB"); v != "" {
		cfg.Database.Database = v
	}
	if v := os.Getenv("TEMPORAL_HOST"); v != "" {
		cfg.Temporal.HostPort = v
	}
	if v := os.Getenv("TEMPORAL_NAMESPACE"); v != "" {
		cfg.Temporal.Namespace = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("TOOLS_BASE_URL"); v != "" {
		cfg.Tools.BaseURL = v
	}
	if v := os.Getenv("POLICY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Policy.Enabled = b
		}
	}
	if v := os.Getenv("POLICY_PATH"); v != "" {
		cfg.Policy.Path = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Tracing.OTLPEndpoint = v
		cfg.Tracing.Enabled = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
