package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/open-policy-agent/opa/rego"
	"go.uber.org/zap"
)

// Engine defines the plan-approval policy interface.
type Engine interface {
	Evaluate(ctx context.Context, input *PlanInput) (*Decision, error)
	LoadPolicies() error
	IsEnabled() bool
	Mode() Mode
}

// PlanInput is the evaluation context for one investigation plan.
type PlanInput struct {
	UserID         string   `json:"user_id,omitempty"`
	SessionID      string   `json:"session_id"`
	Query          string   `json:"query"`
	Complexity     string   `json:"complexity"`
	AutoExecute    bool     `json:"auto_execute"`
	AutoApprove    bool     `json:"auto_approve"`
	AgentsSequence []string `json:"agents_sequence"`
	Environment    string   `json:"environment"`
}

// Decision is the policy evaluation result.
type Decision struct {
	Allow           bool   `json:"allow"`
	RequireApproval bool   `json:"require_approval"`
	Reason          string `json:"reason,omitempty"`
}

// OPAEngine implements Engine using OPA rego.
type OPAEngine struct {
	config   *Config
	logger   *zap.Logger
	compiled *rego.PreparedEvalQuery
	enabled  bool
}

// NewOPAEngine creates a new OPA-based policy engine.
func NewOPAEngine(config *Config, logger *zap.Logger) (*OPAEngine, error) {
	engine := &OPAEngine{
		config:  config,
		logger:  logger,
		enabled: config.Enabled && config.Mode != ModeOff,
	}

	if engine.enabled {
		if err := engine.LoadPolicies(); err != nil {
			if config.FailClosed {
				return nil, fmt.Errorf("failed to load policies in fail-closed mode: %w", err)
			}
			logger.Warn("Failed to load policies, running in fail-open mode", zap.Error(err))
			engine.enabled = false
		}
	}
	return engine, nil
}

// LoadPolicies loads and compiles all .rego files from the configured directory.
func (e *OPAEngine) LoadPolicies() error {
	if !e.config.Enabled {
		return nil
	}

	policies := make(map[string]string)
	err := filepath.Walk(e.config.Path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(info.Name(), ".rego") {
			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read policy file %s: %w", path, err)
			}
			relPath, _ := filepath.Rel(e.config.Path, path)
			policies[strings.TrimSuffix(relPath, ".rego")] = string(content)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk policy directory: %w", err)
	}

	if len(policies) == 0 {
		e.logger.Warn("No policy files found", zap.String("path", e.config.Path))
		if e.config.FailClosed {
			return fmt.Errorf("no policies found in fail-closed mode")
		}
		return nil
	}

	regoOptions := []func(*rego.Rego){
		rego.Query("data.kestrel.plan.decision"),
	}
	for moduleName, content := range policies {
		regoOptions = append(regoOptions, rego.Module(moduleName, content))
	}

	compiled, err := rego.New(regoOptions...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("failed to compile policies: %w", err)
	}
	e.compiled = &compiled

	e.logger.Info("Plan approval policies loaded",
		zap.Int("policy_count", len(policies)),
		zap.String("path", e.config.Path),
	)
	return nil
}

// Evaluate runs the plan-approval policy. When the engine is disabled or in
// dry-run mode the default decision applies: Complex plans without
// auto-execute require approval, everything else is allowed through.
func (e *OPAEngine) Evaluate(ctx context.Context, input *PlanInput) (*Decision, error) {
	defaultDecision := &Decision{
		Allow:           !e.config.FailClosed,
		RequireApproval: strings.EqualFold(input.Complexity, "complex") && !input.AutoExecute && !input.AutoApprove,
		Reason:          "default complexity gate",
	}

	if !e.enabled || e.compiled == nil {
		return defaultDecision, nil
	}

	if input.Environment == "" {
		input.Environment = e.config.Environment
	}

	results, err := e.compiled.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		e.logger.Error("Policy evaluation failed", zap.Error(err))
		if e.config.FailClosed {
			return &Decision{Allow: false, RequireApproval: true, Reason: "policy evaluation error"}, err
		}
		return defaultDecision, nil
	}

	decision := e.parseResults(results, defaultDecision)
	if e.config.Mode == ModeDryRun {
		if decision.RequireApproval != defaultDecision.RequireApproval {
			e.logger.Info("Dry-run policy decision differs from default",
				zap.Bool("policy_require_approval", decision.RequireApproval),
				zap.Bool("default_require_approval", defaultDecision.RequireApproval),
				zap.String("reason", decision.Reason),
			)
		}
		return defaultDecision, nil
	}
	return decision, nil
}

func (e *OPAEngine) parseResults(results rego.ResultSet, fallback *Decision) *Decision {
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return fallback
	}
	raw, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return fallback
	}

	decision := &Decision{Allow: true}
	if v, ok := raw["allow"].(bool); ok {
		decision.Allow = v
	}
	if v, ok := raw["require_approval"].(bool); ok {
		decision.RequireApproval = v
	}
	if v, ok := raw["reason"].(string); ok {
		decision.Reason = v
	}
	return decision
}

// IsEnabled reports whether policies are active.
func (e *OPAEngine) IsEnabled() bool { return e.enabled }

// Mode returns the configured enforcement mode.
func (e *OPAEngine) Mode() Mode { return e.config.Mode }
