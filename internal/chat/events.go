package chat

import (
	"encoding/json"

	"github.com/triage-ai/voice-agent/internal/gate"
	"github.com/triage-ai/voice-agent/internal/model"
)

// EventType names a streamed chat event.
type EventType string

const (
	EventText       EventType = "text"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventFinish     EventType = "finish"
)

// Event is one streamed update of a running turn. Fields not relevant to
// Type are left empty.
type Event struct {
	Type         EventType       `json:"type"`
	Step         int             `json:"step"`
	Text         string          `json:"text,omitempty"`
	Tool         string          `json:"tool,omitempty"`
	ToolCallID   string          `json:"tool_call_id,omitempty"`
	Arguments    json.RawMessage `json:"arguments,omitempty"`
	Result       string          `json:"result,omitempty"`
	ImageCount   int             `json:"image_count,omitempty"`
	IsError      bool            `json:"is_error,omitempty"`
	EnabledTools []string        `json:"enabled_tools,omitempty"`
	Finish       *Result         `json:"finish,omitempty"`
}

// Sink receives events in order. A nil Sink discards them.
type Sink func(Event)

// Turn is one incoming conversation turn.
type Turn struct {
	RequestID      string
	ConversationID string
	Messages       []model.Message
	// History holds tool calls from earlier turns of the same conversation,
	// as echoed back by the client. Calls made during this turn are appended.
	History []gate.CallRecord
}

// Result summarizes a finished turn.
type Result struct {
	RequestID        string            `json:"request_id"`
	ConversationID   string            `json:"conversation_id"`
	Text             string            `json:"text"`
	Steps            int               `json:"steps"`
	ToolCalls        []gate.CallRecord `json:"tool_calls"`
	StepLimitReached bool              `json:"step_limit_reached,omitempty"`
	Usage            model.Usage       `json:"usage"`
}
