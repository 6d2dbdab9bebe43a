package planner

import (
	"context"

	"go.uber.org/zap"

	"github.com/kestrel-ops/kestrel/internal/llm"
	"github.com/kestrel-ops/kestrel/internal/metrics"
)

// CompletionClient is the slice of the LLM client the planner needs.
type CompletionClient interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Planner produces exactly one InvestigationPlan per investigation. It never
// fails: any model or parse error resolves to the fallback plan.
type Planner struct {
	client CompletionClient
	logger *zap.Logger
}

// New creates a Planner.
func New(client CompletionClient, logger *zap.Logger) *Planner {
	return &Planner{client: client, logger: logger}
}

// CreatePlan asks the planning model for a structured plan. If the first
// call errors it is retried once with a stricter structured-output prompt;
// if the output still cannot be parsed, the fallback plan is returned.
func (p *Planner) CreatePlan(ctx context.Context, query string, memCtx *MemoryContext) *InvestigationPlan {
	prompt := BuildPlanningPrompt(query, memCtx)

	resp, err := p.client.Complete(ctx, llm.Request{
		System:      planningSystemPrompt,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		MaxTokens:   1024,
		Temperature: 0.2,
		Purpose:     "planning",
	})
	if err != nil {
		p.logger.Warn("Planning LLM call failed, retrying with structured-output prompt", zap.Error(err))
		resp, err = p.client.Complete(ctx, llm.Request{
			System:      planningSystemPrompt,
			Messages:    []llm.Message{{Role: "user", Content: prompt + "\n\nRespond with ONLY the JSON object, no prose."}},
			MaxTokens:   1024,
			Temperature: 0,
			Purpose:     "planning",
		})
		if err != nil {
			p.logger.Warn("Planning retry failed, using fallback plan", zap.Error(err))
			return p.record(FallbackPlan(query))
		}
		if plan, perr := ExtractPlan(resp.Content); perr == nil {
			plan.Source = SourceRetry
			return p.record(plan)
		} else {
			p.logger.Warn("Planning retry output unparseable, using fallback plan", zap.Error(perr))
			return p.record(FallbackPlan(query))
		}
	}

	plan, perr := ExtractPlan(resp.Content)
	if perr != nil {
		p.logger.Warn("Planner output unparseable, using fallback plan",
			zap.Error(perr),
			zap.Int("response_length", len(resp.Content)),
		)
		return p.record(FallbackPlan(query))
	}
	return p.record(plan)
}

func (p *Planner) record(plan *InvestigationPlan) *InvestigationPlan {
	metrics.PlansCreated.WithLabelValues(string(plan.Complexity), plan.Source).Inc()
	metrics.PlanSteps.Observe(float64(len(plan.Steps)))
	p.logger.Info("Investigation plan created",
		zap.String("complexity", string(plan.Complexity)),
		zap.String("source", plan.Source),
		zap.Int("steps", len(plan.Steps)),
		zap.Strings("agents", plan.AgentsSequence),
		zap.Bool("auto_execute", plan.AutoExecute),
	)
	return plan
}
