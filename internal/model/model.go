// Package model defines the provider-neutral request and response shapes
// used by the chat loop. Provider adapters live in subpackages.
package model

import (
	"context"
	"encoding/json"
	"errors"
)

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ErrRateLimited is returned by adapters when the provider throttles a request.
var ErrRateLimited = errors.New("model: rate limited")

// Message is one conversation entry. Assistant messages may carry tool
// calls; user messages may carry the results of the previous step's calls.
type Message struct {
	Role        Role
	Text        string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ToolCall is a model request to run a tool.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// Image is a base64 payload attached to a tool result.
type Image struct {
	Data     string
	MimeType string
}

// ToolResult answers a ToolCall by ID.
type ToolResult struct {
	ToolCallID string
	Content    string
	Images     []Image
	IsError    bool
}

// ToolSpec advertises a callable tool. InputSchema is always object-rooted.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Request is one model step.
type Request struct {
	System    string
	Messages  []Message
	Tools     []ToolSpec
	MaxTokens int
}

// Usage reports token counts for a step.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the model's answer for one step.
type Response struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason string
	Usage      Usage
}

// Client completes a single model step.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}
