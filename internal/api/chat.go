package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/triage-ai/voice-agent/internal/chat"
	"github.com/triage-ai/voice-agent/internal/gate"
	"github.com/triage-ai/voice-agent/internal/model"
)

// handleChat implements POST /api/chat. The reply streams as server-sent
// events unless the client asks for application/json.
func (d *Dependencies) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	msgs, err := toModelMessages(req.Messages)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
		return
	}

	turn := chat.Turn{
		RequestID:      uuid.NewString(),
		ConversationID: req.ConversationID,
		Messages:       msgs,
	}
	for _, h := range req.ToolHistory {
		if h.Name != "" {
			turn.History = append(turn.History, gate.CallRecord{Name: h.Name, IsError: h.IsError, Rejected: h.Rejected})
		}
	}

	if wantsJSON(r) {
		d.chatJSON(w, r, turn)
		return
	}

	sse := newSSEWriter(w)
	_, err = d.Runner.Run(r.Context(), turn, sse.send)
	if err == nil {
		return
	}
	d.Logger.Error("chat turn failed",
		zap.String("request_id", turn.RequestID),
		zap.Error(err),
	)
	if !sse.started {
		writeModelError(w, err)
		return
	}
	sse.write("error", ErrorResp{Detail: modelErrorDetail(err)})
}

func (d *Dependencies) chatJSON(w http.ResponseWriter, r *http.Request, turn chat.Turn) {
	var events []chat.Event
	res, err := d.Runner.Run(r.Context(), turn, func(e chat.Event) {
		if e.Type != chat.EventFinish {
			events = append(events, e)
		}
	})
	if err != nil {
		d.Logger.Error("chat turn failed",
			zap.String("request_id", turn.RequestID),
			zap.Error(err),
		)
		writeModelError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{
		RequestID:        res.RequestID,
		ConversationID:   res.ConversationID,
		Text:             res.Text,
		Steps:            res.Steps,
		ToolCalls:        res.ToolCalls,
		StepLimitReached: res.StepLimitReached,
		Events:           events,
	})
}

func toModelMessages(in []ChatMessage) ([]model.Message, error) {
	if len(in) == 0 {
		return nil, errors.New("messages is required")
	}
	out := make([]model.Message, 0, len(in))
	for i, m := range in {
		var role model.Role
		switch strings.ToLower(m.Role) {
		case "user":
			role = model.RoleUser
		case "assistant":
			role = model.RoleAssistant
		default:
			return nil, fmt.Errorf("messages[%d]: unsupported role %q", i, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, model.Message{Role: role, Text: m.Content})
	}
	if len(out) == 0 {
		return nil, errors.New("messages must contain text")
	}
	return out, nil
}

func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/event-stream")
}

func modelErrorDetail(err error) string {
	if errors.Is(err, model.ErrRateLimited) {
		return "The language model is rate limiting requests, try again shortly"
	}
	return "The language model is unavailable, try again shortly"
}

func writeModelError(w http.ResponseWriter, err error) {
	if errors.Is(err, chat.ErrEmptyTurn) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "messages must contain text"})
		return
	}
	writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: modelErrorDetail(err)})
}

// sseWriter streams chat events. Headers go out with the first event so a
// model failure before any output can still become a plain 500.
type sseWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	return &sseWriter{w: w, rc: http.NewResponseController(w)}
}

func (s *sseWriter) send(e chat.Event) {
	s.write(string(e.Type), e)
}

func (s *sseWriter) write(event string, v any) {
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(`{}`)
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data) //nolint:errcheck
	_ = s.rc.Flush()
}
