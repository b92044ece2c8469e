package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds a JSON-RPC round trip whose context has no deadline.
	DefaultTimeout = 15 * time.Second

	maxResponseBytes = 32 << 20
)

// Options configures a Client.
type Options struct {
	// Endpoint is the MCP server URL that accepts JSON-RPC POSTs.
	Endpoint string
	// APIKey is sent on every request when set.
	APIKey string
	// APIKeyHeader names the header carrying APIKey. Empty means
	// "Authorization" with a Bearer prefix.
	APIKeyHeader string
	Timeout      time.Duration
	HTTPClient   *http.Client
	Logger       *zap.Logger
}

// Client speaks the two MCP methods the bridge needs: tools/list and tools/call.
// It keeps no per-conversation state and is safe for concurrent use.
type Client struct {
	endpoint     string
	apiKey       string
	apiKeyHeader string
	http         *http.Client
	timeout      time.Duration
	logger       *zap.Logger
	id           atomic.Uint64
}

// NewClient validates opts and returns a Client.
func NewClient(opts Options) (*Client, error) {
	u, err := url.Parse(opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("NewClient: endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("NewClient: endpoint must be http(s), got %q", opts.Endpoint)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		endpoint:     u.String(),
		apiKey:       opts.APIKey,
		apiKeyHeader: opts.APIKeyHeader,
		http:         httpClient,
		timeout:      timeout,
		logger:       logger,
	}, nil
}

// ListTools fetches the remote catalog. Every failure wraps ErrCatalogUnavailable.
// Input schemas are normalized; tools with incompatible schemas are kept
// as parameterless tools and logged.
func (c *Client) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	resp, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, resp.Error)
	}

	var result toolsListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("%w: tools/list result: %v", ErrCatalogUnavailable, err)
	}

	defs := make([]ToolDefinition, 0, len(result.Tools))
	for _, t := range result.Tools {
		if t.Name == "" {
			continue
		}
		schema, err := NormalizeSchema(t.InputSchema)
		normalized := errors.Is(err, ErrSchemaIncompatible)
		if normalized {
			c.logger.Warn("tool schema replaced with empty object schema",
				zap.String("tool_name", t.Name),
				zap.Error(err),
			)
		}
		defs = append(defs, ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
			Normalized:  normalized,
		})
	}
	return defs, nil
}

// CallTool invokes a remote tool. An RPC-level error comes back as
// *ToolInvocationError; a tool-level failure (isError) comes back as a
// result with IsError set.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (*ToolResult, error) {
	if len(bytes.TrimSpace(args)) == 0 || bytes.Equal(bytes.TrimSpace(args), []byte("null")) {
		args = json.RawMessage("{}")
	}
	params := map[string]any{
		"name":      name,
		"arguments": args,
	}

	resp, err := c.call(ctx, "tools/call", params)
	if err != nil {
		return nil, &ToolInvocationError{Tool: name, Message: err.Error(), Err: err}
	}
	if resp.Error != nil {
		return nil, &ToolInvocationError{Tool: name, Code: resp.Error.Code, Message: resp.Error.Message}
	}

	var result toolsCallResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, &ToolInvocationError{Tool: name, Message: "unreadable tools/call result: " + err.Error()}
	}
	return extractResult(result), nil
}

func extractResult(result toolsCallResult) *ToolResult {
	out := &ToolResult{IsError: result.IsError}
	var texts []string
	for _, item := range result.Content {
		switch item.Type {
		case "text":
			if item.Text != "" {
				texts = append(texts, item.Text)
			}
		case "image", "audio":
			if item.Data != "" {
				out.Images = append(out.Images, Image{Data: item.Data, MimeType: item.MimeType})
			}
		case "resource":
			if item.Resource == nil {
				continue
			}
			if item.Resource.Text != "" {
				texts = append(texts, item.Resource.Text)
			} else if item.Resource.Blob != "" && strings.HasPrefix(item.Resource.MimeType, "image/") {
				out.Images = append(out.Images, Image{Data: item.Resource.Blob, MimeType: item.Resource.MimeType})
			}
		}
	}
	out.Text = strings.Join(texts, "\n")
	return out
}

func (c *Client) call(ctx context.Context, method string, params any) (*rpcResponse, error) {
	// A caller deadline wins so the chat loop's tool timeout is the one enforced.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.id.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if c.apiKey != "" {
		if c.apiKeyHeader == "" || strings.EqualFold(c.apiKeyHeader, "Authorization") {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		} else {
			req.Header.Set(c.apiKeyHeader, c.apiKey)
		}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", method, err)
	}
	c.logger.Debug("mcp rpc",
		zap.String("method", method),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Some servers report RPC errors with a non-2xx status.
		if env, decErr := decodeEnvelope(raw); decErr == nil && env.Error != nil {
			return env, nil
		}
		return nil, fmt.Errorf("mcp rpc status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}
	return decodeEnvelope(raw)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
