package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/triage-ai/voice-agent/internal/automation"
	"github.com/triage-ai/voice-agent/internal/gate"
	"github.com/triage-ai/voice-agent/internal/storage"
)

// ConversationHeader optionally ties a pass-through call to a conversation
// in the audit trail.
const ConversationHeader = "X-Conversation-ID"

// handleAutomationStatus implements GET /api/automation/status.
func (d *Dependencies) handleAutomationStatus(w http.ResponseWriter, r *http.Request) {
	if d.Automation == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Automation service is not configured"})
		return
	}
	resp, err := d.Automation.Status(r.Context())
	if err != nil {
		d.writeAutomationError(w, "status", err)
		return
	}
	writeRaw(w, resp.Raw)
}

// handleAutomationAction implements POST /api/automation/{action...}.
func (d *Dependencies) handleAutomationAction(w http.ResponseWriter, r *http.Request) {
	if d.Automation == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Automation service is not configured"})
		return
	}
	action := r.PathValue("action")
	if !automation.Allowed(action) {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Unknown automation action"})
		return
	}

	defer func() { _ = r.Body.Close() }()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Unreadable body"})
		return
	}
	if len(body) > 0 && !json.Valid(body) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	start := time.Now()
	resp, err := d.Automation.Do(r.Context(), action, body)
	d.auditAutomation(r, action, body, resp, err, start)
	if err != nil {
		d.writeAutomationError(w, action, err)
		return
	}
	writeRaw(w, resp.Raw)
}

// auditAutomation records pass-through calls whose tool falls in an
// audited category, matching what the chat loop records for the same tool.
func (d *Dependencies) auditAutomation(r *http.Request, action string, body []byte, resp *automation.Response, callErr error, start time.Time) {
	tool := automation.ToolName(action)
	if tool == "" {
		return
	}
	category, _ := d.Runner.Gate().CategoryOf(tool)
	if !gate.Audited(category) {
		return
	}

	args := string(body)
	if args == "" {
		args = "{}"
	}
	result := ""
	if callErr != nil {
		result = callErr.Error()
	} else if resp != nil {
		result = string(resp.Raw)
	}
	latency := time.Since(start)
	d.Events.Write(&storage.ToolCallEvent{
		RequestID:      uuid.NewString(),
		ConversationID: r.Header.Get(ConversationHeader),
		Timestamp:      start.UTC(),
		ToolName:       tool,
		Category:       string(category),
		Audited:        true,
		ArgumentsJSON:  args,
		IsError:        callErr != nil,
		ResultExcerpt:  storage.Excerpt(result),
		LatencyMs:      float32(latency.Microseconds()) / 1000,
	})
	d.Logger.Info("automation call audited",
		zap.String("action", action),
		zap.String("tool_name", tool),
		zap.String("category", string(category)),
		zap.Bool("is_error", callErr != nil),
	)
}

func (d *Dependencies) writeAutomationError(w http.ResponseWriter, action string, err error) {
	var aerr *automation.Error
	if errors.As(err, &aerr) {
		status := aerr.Status
		if status < 400 {
			status = http.StatusBadGateway
		}
		d.Logger.Warn("automation call failed",
			zap.String("action", action),
			zap.Int("status", aerr.Status),
			zap.String("error", aerr.Message),
		)
		writeJSON(w, status, map[string]any{"success": false, "error": aerr.Message})
		return
	}
	d.Logger.Error("automation call failed", zap.String("action", action), zap.Error(err))
	writeJSON(w, http.StatusBadGateway, map[string]any{"success": false, "error": err.Error()})
}

func writeRaw(w http.ResponseWriter, raw json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}
