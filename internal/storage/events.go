package storage

import (
	"time"
	"unicode/utf8"
)

// EventWriter is the interface for writing tool call events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *ToolCallEvent)
	Close()
}

// ToolCallEvent is one tool call made by the chat loop, persisted for audit.
type ToolCallEvent struct {
	RequestID      string
	ConversationID string
	Timestamp      time.Time
	Step           int32
	ToolName       string
	Category       string // empty when the tool has no category
	Audited        bool   // true for the higher-risk categories
	ArgumentsJSON  string
	IsError        bool
	ResultExcerpt  string
	EnabledTools   []string
	LatencyMs      float32
}

// ExcerptLimit bounds ResultExcerpt so screenshots and page dumps stay out
// of the event store.
const ExcerptLimit = 2048

// Excerpt trims s to ExcerptLimit bytes without splitting a UTF-8 sequence.
func Excerpt(s string) string {
	if len(s) <= ExcerptLimit {
		return s
	}
	cut := ExcerptLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
