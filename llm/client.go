// Package llm provides a provider-agnostic model client used by the
// verification pipeline. Every call is a single attempt: retry and fallback
// policy belongs to the caller, so stage latency stays bounded.
package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/platewise/platewise/model"
)

// maxResponseSize limits the model response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Client is a provider-agnostic model client.
type Client struct {
	registry   *model.Registry
	httpClient *http.Client
	logger     *slog.Logger
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`    // "system", "user", or "assistant"
	Content string `json:"content"` // Message content
}

// Request defines a model completion request.
type Request struct {
	// Capability specifies the semantic capability ("generate" or "validate").
	// The registry resolves this to a configured model.
	Capability string

	// Model, when set, bypasses capability resolution and targets a specific
	// configured model. Used by adapters that resolve their model once at
	// construction.
	Model string

	// Messages is the chat history to send to the model.
	Messages []Message

	// Temperature controls randomness. nil uses endpoint default, 0 is deterministic.
	Temperature *float64

	// MaxTokens limits response length. 0 uses endpoint default.
	MaxTokens int
}

// TokenUsage represents token consumption details for a model call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response contains the model completion result.
type Response struct {
	// Content is the generated text, returned unmodified.
	Content string

	// Model is the actual model that was used.
	Model string

	// Usage contains token consumption metrics (if the provider reports them).
	Usage TokenUsage

	// FinishReason indicates why generation stopped.
	FinishReason string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// NewClient creates a new model client backed by the given registry.
func NewClient(registry *model.Registry, opts ...ClientOption) *Client {
	c := &Client{
		registry: registry,
		httpClient: &http.Client{
			Timeout: 180 * time.Second, // Outer bound; stage deadlines come from ctx
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Resolve returns the model name the registry selects for a capability.
// Selection is deterministic: first preferred model with a configured endpoint.
func (c *Client) Resolve(capability string) (string, error) {
	name := c.registry.Resolve(model.Capability(capability))
	if name == "" {
		return "", fmt.Errorf("no model configured for capability %s", capability)
	}
	return name, nil
}

// Complete sends a completion request. Exactly one endpoint is tried exactly
// once; the error classifies the failure (transient, fatal, or deadline).
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, NewFatalError(fmt.Errorf("at least one message is required"))
	}

	modelName := req.Model
	if modelName == "" {
		var err error
		modelName, err = c.Resolve(req.Capability)
		if err != nil {
			return nil, NewFatalError(err)
		}
	}

	endpoint := c.registry.GetEndpoint(modelName)
	if endpoint == nil {
		return nil, NewFatalError(fmt.Errorf("no endpoint configured for model %s", modelName))
	}

	resp, err := c.doRequest(ctx, endpoint, req)
	if err != nil {
		return nil, err
	}
	if resp.Model == "" {
		resp.Model = modelName
	}
	return resp, nil
}

// doRequest executes a single HTTP request to the model endpoint.
func (c *Client) doRequest(ctx context.Context, ep *model.EndpointConfig, req Request) (*Response, error) {
	provider := GetProvider(ep.Provider)
	if provider == nil {
		return nil, NewFatalError(fmt.Errorf("unknown provider: %s", ep.Provider))
	}

	url := provider.BuildURL(ep.URL)

	body, err := provider.BuildRequestBody(ep.Model, req.Messages, req.Temperature, req.MaxTokens)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	c.logger.Debug("Sending model request",
		"provider", ep.Provider,
		"model", ep.Model,
		"url", url,
		"messages", len(req.Messages))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, classifyTransportError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	return provider.ParseResponse(respBody, ep.Model)
}

// classifyTransportError separates deadline expiry from network failure.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewDeadlineError(fmt.Errorf("model call exceeded deadline: %w", err))
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
}

// classifyHTTPError determines if an HTTP error is transient or fatal.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("model API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewTransientError(err)
	case statusCode >= 500:
		return NewTransientError(err)
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden:
		return NewFatalError(err)
	case statusCode == http.StatusBadRequest:
		return NewFatalError(err)
	default:
		return NewFatalError(err)
	}
}
