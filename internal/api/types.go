package api

import (
	"github.com/triage-ai/voice-agent/internal/chat"
	"github.com/triage-ai/voice-agent/internal/gate"
	"github.com/triage-ai/voice-agent/internal/storage"
)

// ChatMessage is one prior message of the conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolHistoryEntry is a tool call from an earlier turn, echoed back from
// the previous finish event so the gate sees the whole conversation.
type ToolHistoryEntry struct {
	Name     string `json:"name"`
	IsError  bool   `json:"is_error,omitempty"`
	Rejected bool   `json:"rejected,omitempty"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	ConversationID string             `json:"conversation_id,omitempty"`
	Messages       []ChatMessage      `json:"messages"`
	ToolHistory    []ToolHistoryEntry `json:"tool_history,omitempty"`
}

// ChatResponse is the non-streaming reply of POST /api/chat.
type ChatResponse struct {
	RequestID        string            `json:"request_id"`
	ConversationID   string            `json:"conversation_id"`
	Text             string            `json:"text"`
	Steps            int               `json:"steps"`
	ToolCalls        []gate.CallRecord `json:"tool_calls"`
	StepLimitReached bool              `json:"step_limit_reached"`
	Events           []chat.Event      `json:"events,omitempty"`
}

// ToolResp describes one catalog tool for GET /api/tools.
type ToolResp struct {
	Name             string         `json:"name"`
	Description      string         `json:"description"`
	Category         string         `json:"category,omitempty"`
	Audited          bool           `json:"audited"`
	EnabledAtStart   bool           `json:"enabled_at_start"`
	SchemaNormalized bool           `json:"schema_normalized"`
	InputSchema      map[string]any `json:"input_schema"`
}

// ToolsResp is the body of GET /api/tools.
type ToolsResp struct {
	Tools           []ToolResp `json:"tools"`
	ScreenshotLimit int        `json:"screenshot_limit"`
}

// VoiceResp is the body of GET /api/voice/signed-url.
type VoiceResp struct {
	SignedURL string `json:"signed_url"`
	AgentID   string `json:"agent_id"`
}

// ErrorResp is the body of every error reply.
type ErrorResp struct {
	Detail string `json:"detail"`
}

// ToolCallsResp is the GET /api/tool-calls body.
type ToolCallsResp struct {
	ToolCalls []storage.ToolCallRow `json:"tool_calls"`
	Total     int                   `json:"total"`
}
