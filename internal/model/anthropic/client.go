// Package anthropic implements model.Client on the Anthropic Messages API,
// either directly or through an Anthropic-compatible gateway.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/triage-ai/voice-agent/internal/model"
)

// DefaultMaxTokens caps a step when neither the request nor the options set it.
const DefaultMaxTokens = 4096

// MessagesClient is the subset of the SDK used here; *sdk.MessageService
// satisfies it.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options configures the adapter.
type Options struct {
	Model     string
	MaxTokens int
}

// Client adapts Anthropic Messages to model.Client.
type Client struct {
	msg       MessagesClient
	model     string
	maxTokens int
}

// New builds a Client from an SDK messages client.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("anthropic: model identifier is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Client{msg: msg, model: opts.Model, maxTokens: maxTokens}, nil
}

// ConnectOptions selects how the SDK client reaches the model.
type ConnectOptions struct {
	// APIKey is the gateway key when BaseURL is set, the Anthropic key otherwise.
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// MaxRetries is passed to the SDK; negative keeps the SDK default.
	MaxRetries int
	HTTPClient *http.Client
}

// Connect builds an SDK client and wraps it.
func Connect(conn ConnectOptions, opts Options) (*Client, error) {
	if conn.APIKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(conn.APIKey)}
	if conn.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(conn.BaseURL))
	}
	if conn.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(conn.Timeout))
	}
	if conn.MaxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(conn.MaxRetries))
	}
	if conn.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(conn.HTTPClient))
	}
	ac := sdk.NewClient(reqOpts...)
	return New(&ac.Messages, opts)
}

// Complete sends one Messages.New request.
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	params, err := c.prepare(req)
	if err != nil {
		return nil, err
	}
	msg, err := c.msg.New(ctx, *params)
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("anthropic messages.new: %w", err)
	}
	return translateResponse(msg)
}

func (c *Client) prepare(req *model.Request) (*sdk.MessageNewParams, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, errors.New("anthropic: messages are required")
	}
	msgs, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = encodeTools(req.Tools)
	}
	return &params, nil
}

func encodeMessages(msgs []model.Message) ([]sdk.MessageParam, error) {
	out := make([]sdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		blocks := make([]sdk.ContentBlockParamUnion, 0, 1+len(m.ToolCalls)+len(m.ToolResults))
		for _, r := range m.ToolResults {
			blocks = append(blocks, encodeToolResult(r))
		}
		if strings.TrimSpace(m.Text) != "" {
			blocks = append(blocks, sdk.NewTextBlock(m.Text))
		}
		for _, call := range m.ToolCalls {
			var input any = map[string]any{}
			if len(call.Input) > 0 {
				input = call.Input
			}
			blocks = append(blocks, sdk.NewToolUseBlock(call.ID, input, call.Name))
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case model.RoleUser:
			out = append(out, sdk.NewUserMessage(blocks...))
		case model.RoleAssistant:
			out = append(out, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("anthropic: at least one non-empty message is required")
	}
	return out, nil
}

func encodeToolResult(r model.ToolResult) sdk.ContentBlockParamUnion {
	content := r.Content
	if content == "" && len(r.Images) == 0 {
		content = "(no output)"
	}
	block := sdk.NewToolResultBlock(r.ToolCallID, content, r.IsError)
	if block.OfToolResult == nil {
		return block
	}
	for _, img := range r.Images {
		block.OfToolResult.Content = append(block.OfToolResult.Content, sdk.ToolResultBlockParamContentUnion{
			OfImage: &sdk.ImageBlockParam{
				Source: sdk.ImageBlockParamSourceUnion{
					OfBase64: &sdk.Base64ImageSourceParam{
						Data:      img.Data,
						MediaType: sdk.Base64ImageSourceMediaType(img.MimeType),
					},
				},
			},
		})
	}
	return block
}

func encodeTools(specs []model.ToolSpec) []sdk.ToolUnionParam {
	tools := make([]sdk.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		schema := sdk.ToolInputSchemaParam{ExtraFields: spec.InputSchema}
		u := sdk.ToolUnionParamOfTool(schema, spec.Name)
		if u.OfTool != nil && spec.Description != "" {
			u.OfTool.Description = sdk.String(spec.Description)
		}
		tools = append(tools, u)
	}
	return tools
}

func translateResponse(msg *sdk.Message) (*model.Response, error) {
	if msg == nil {
		return nil, errors.New("anthropic: response message is nil")
	}
	resp := &model.Response{StopReason: string(msg.StopReason)}
	var texts []string
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				texts = append(texts, block.Text)
			}
		case "tool_use":
			input := json.RawMessage(block.Input)
			if len(input) == 0 {
				input = json.RawMessage("{}")
			}
			resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: input,
			})
		}
	}
	resp.Text = strings.Join(texts, "\n")
	resp.Usage = model.Usage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	return resp, nil
}
