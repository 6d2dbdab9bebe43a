package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kestrel-ops/kestrel/internal/circuitbreaker"
	"github.com/kestrel-ops/kestrel/internal/metrics"
	"github.com/kestrel-ops/kestrel/internal/tracing"
)

// Client talks to an OpenAI-compatible chat completion endpoint. All calls go
// through a circuit breaker and a client-side rate limiter.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *circuitbreaker.HTTPWrapper
	limiter *rate.Limiter
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithRateLimit sets the requests-per-second budget and burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http = circuitbreaker.NewHTTPWrapper(&http.Client{Timeout: d}, "llm-http", "llm-service", c.logger)
	}
}

// NewClient creates an LLM client for the given endpoint.
func NewClient(baseURL, apiKey string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   "gpt-4o-mini",
		http:    circuitbreaker.NewHTTPWrapper(&http.Client{Timeout: 60 * time.Second}, "llm-http", "llm-service", logger),
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string          `json:"name"`
					Arguments json.RawMessage `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete sends one chat completion request and returns the model's reply.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	purpose := req.Purpose
	if purpose == "" {
		purpose = "general"
	}

	body := chatRequest{
		Model:       c.model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, chatTool{
			Type: "function",
			Function: chatFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := c.baseURL + "/v1/chat/completions"
	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, url)
	defer span.End()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	tracing.InjectTraceparent(ctx, httpReq)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.RecordLLMMetrics(purpose, "error", time.Since(start).Seconds(), 0)
		return nil, fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		metrics.RecordLLMMetrics(purpose, "error", time.Since(start).Seconds(), 0)
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.RecordLLMMetrics(purpose, "error", time.Since(start).Seconds(), 0)
		return nil, fmt.Errorf("llm service returned %d: %s", resp.StatusCode, truncateForLog(raw))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		metrics.RecordLLMMetrics(purpose, "error", time.Since(start).Seconds(), 0)
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		metrics.RecordLLMMetrics(purpose, "error", time.Since(start).Seconds(), 0)
		return nil, fmt.Errorf("llm response had no choices")
	}

	choice := parsed.Choices[0]
	out := &Response{
		Content:      choice.Message.Content,
		TokensUsed:   parsed.Usage.TotalTokens,
		FinishReason: choice.FinishReason,
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	metrics.RecordLLMMetrics(purpose, "ok", time.Since(start).Seconds(), out.TokensUsed)
	c.logger.Debug("LLM completion",
		zap.String("purpose", purpose),
		zap.Int("tokens", out.TokensUsed),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}

func truncateForLog(b []byte) string {
	const max = 512
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
