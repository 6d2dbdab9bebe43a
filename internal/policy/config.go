package policy

import (
	"os"
	"strings"
)

// Mode defines the policy engine operating mode
type Mode string

const (
	// ModeOff disables policy evaluation entirely
	ModeOff Mode = "off"
	// ModeDryRun evaluates policies but doesn't enforce them (log only)
	ModeDryRun Mode = "dry-run"
	// ModeEnforce evaluates and enforces policies
	ModeEnforce Mode = "enforce"
)

// Config holds policy engine configuration
type Config struct {
	// Enabled controls whether the policy engine is active
	Enabled bool

	// Mode controls enforcement behavior
	Mode Mode

	// Path to the directory containing .rego policy files
	Path string

	// FailClosed determines behavior when policies can't be loaded:
	// true denies (requires approval for) everything, false allows.
	FailClosed bool

	// Environment context for policy evaluation (dev, staging, prod)
	Environment string
}

// ConfigFromEnv builds a Config from environment variables.
func ConfigFromEnv() *Config {
	cfg := &Config{
		Enabled:     getEnvBool("POLICY_ENABLED", false),
		Mode:        ModeDryRun,
		Path:        getEnv("POLICY_PATH", "config/policies"),
		FailClosed:  getEnvBool("POLICY_FAIL_CLOSED", false),
		Environment: getEnv("KESTREL_ENV", "dev"),
	}
	switch Mode(strings.ToLower(getEnv("POLICY_MODE", "dry-run"))) {
	case ModeOff:
		cfg.Mode = ModeOff
	case ModeEnforce:
		cfg.Mode = ModeEnforce
	default:
		cfg.Mode = ModeDryRun
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := strings.ToLower(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v == "1" || v == "true" || v == "yes"
}
