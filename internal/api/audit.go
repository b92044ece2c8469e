package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/triage-ai/voice-agent/internal/storage"
)

// ToolCallReader lists recorded tool call events. *storage.Reader satisfies it.
type ToolCallReader interface {
	ListToolCalls(ctx context.Context, params storage.ListToolCallsParams) ([]storage.ToolCallRow, int, error)
}

// handleListToolCalls implements GET /api/tool-calls.
func (d *Dependencies) handleListToolCalls(w http.ResponseWriter, r *http.Request) {
	if d.Audit == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "tool call history is not configured"})
		return
	}

	q := r.URL.Query()
	params := storage.ListToolCallsParams{
		AuditedOnly: q.Get("audited") == "true",
		ErrorsOnly:  q.Get("is_error") == "true",
	}
	if v := q.Get("conversation_id"); v != "" {
		params.ConversationID = &v
	}
	if v := q.Get("tool_name"); v != "" {
		params.ToolName = &v
	}
	if v := q.Get("category"); v != "" {
		params.Category = &v
	}
	var err error
	if params.StartTime, err = parseTimeParam(q.Get("start_time")); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "start_time must be RFC 3339"})
		return
	}
	if params.EndTime, err = parseTimeParam(q.Get("end_time")); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "end_time must be RFC 3339"})
		return
	}
	params.Page, _ = strconv.Atoi(q.Get("page"))
	params.PageSize, _ = strconv.Atoi(q.Get("page_size"))

	rows, total, err := d.Audit.ListToolCalls(r.Context(), params)
	if err != nil {
		d.Logger.Error("list tool calls failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "failed to list tool calls"})
		return
	}
	if rows == nil {
		rows = []storage.ToolCallRow{}
	}
	writeJSON(w, http.StatusOK, ToolCallsResp{ToolCalls: rows, Total: total})
}

func parseTimeParam(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
