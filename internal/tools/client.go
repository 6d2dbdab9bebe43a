package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kestrel-ops/kestrel/internal/circuitbreaker"
	"github.com/kestrel-ops/kestrel/internal/tracing"
)

// Info describes one tool exposed by the gateway.
type Info struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
}

// Client talks to the external tool gateway. Specialists issue tool calls by
// name and arguments and receive a text result; which names are visible per
// persona is decided by the agent registry, not here.
type Client struct {
	baseURL string
	http    *circuitbreaker.HTTPWrapper
	logger  *zap.Logger

	listRetries int
}

// NewClient creates a tool gateway client.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http: circuitbreaker.NewHTTPWrapper(
			&http.Client{Timeout: 30 * time.Second}, "tool-gateway-http", "tool-gateway", logger),
		logger:      logger,
		listRetries: 3,
	}
}

// ListTools fetches the gateway's tool catalog. Gateway loading is retried
// with bounded exponential backoff since it runs at startup and on cache
// refresh, not on the investigation hot path.
func (c *Client) ListTools(ctx context.Context) ([]Info, error) {
	var lastErr error
	backoff := 500 * time.Millisecond
	for attempt := 0; attempt <= c.listRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		tools, err := c.listOnce(ctx)
		if err == nil {
			return tools, nil
		}
		lastErr = err
		c.logger.Warn("Tool catalog fetch failed",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return nil, fmt.Errorf("list tools after %d attempts: %w", c.listRetries+1, lastErr)
}

func (c *Client) listOnce(ctx context.Context) ([]Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tools", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tool gateway returned %d", resp.StatusCode)
	}

	var out struct {
		Tools []Info `json:"tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode tool catalog: %w", err)
	}
	return out.Tools, nil
}

// Invoke executes one tool call and returns its text result.
func (c *Client) Invoke(ctx context.Context, name string, args json.RawMessage) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", fmt.Errorf("marshal tool call: %w", err)
	}

	url := c.baseURL + "/tools/invoke"
	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, url)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("invoke tool %s: %w", name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read tool result: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tool %s returned %d: %s", name, resp.StatusCode, string(body))
	}

	var out struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		// Some tools return bare text.
		return string(body), nil
	}
	return out.Result, nil
}
