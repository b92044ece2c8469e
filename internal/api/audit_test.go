package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triage-ai/voice-agent/internal/storage"
)

type stubReader struct {
	params storage.ListToolCallsParams
	rows   []storage.ToolCallRow
	err    error
}

func (s *stubReader) ListToolCalls(_ context.Context, p storage.ListToolCallsParams) ([]storage.ToolCallRow, int, error) {
	s.params = p
	return s.rows, len(s.rows), s.err
}

func getToolCalls(h http.Handler, query string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/tool-calls"+query, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestListToolCalls_NotConfigured(t *testing.T) {
	h := NewRouter(newTestDeps(t, &stubModel{}))
	rec := getToolCalls(h, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListToolCalls_PassesFilters(t *testing.T) {
	reader := &stubReader{rows: []storage.ToolCallRow{{RequestID: "r1", ToolName: "terminal_execute", Audited: 1}}}
	deps := newTestDeps(t, &stubModel{})
	deps.Audit = reader
	h := NewRouter(deps)

	rec := getToolCalls(h, "?conversation_id=c1&tool_name=terminal_execute&audited=true&start_time=2026-01-01T00:00:00Z&page=2&page_size=10")
	require.Equal(t, http.StatusOK, rec.Code)

	var body ToolCallsResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)
	require.Len(t, body.ToolCalls, 1)
	assert.Equal(t, "r1", body.ToolCalls[0].RequestID)

	require.NotNil(t, reader.params.ConversationID)
	assert.Equal(t, "c1", *reader.params.ConversationID)
	assert.Equal(t, "terminal_execute", *reader.params.ToolName)
	assert.True(t, reader.params.AuditedOnly)
	assert.False(t, reader.params.ErrorsOnly)
	require.NotNil(t, reader.params.StartTime)
	assert.True(t, reader.params.StartTime.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Nil(t, reader.params.EndTime)
	assert.Equal(t, 2, reader.params.Page)
	assert.Equal(t, 10, reader.params.PageSize)
}

func TestListToolCalls_BadTime(t *testing.T) {
	deps := newTestDeps(t, &stubModel{})
	deps.Audit = &stubReader{}
	rec := getToolCalls(NewRouter(deps), "?end_time=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListToolCalls_ReaderFailure(t *testing.T) {
	deps := newTestDeps(t, &stubModel{})
	deps.Audit = &stubReader{err: errors.New("clickhouse down")}
	rec := getToolCalls(NewRouter(deps), "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "clickhouse down")
}

func TestListToolCalls_EmptyIsArray(t *testing.T) {
	deps := newTestDeps(t, &stubModel{})
	deps.Audit = &stubReader{}
	rec := getToolCalls(NewRouter(deps), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tool_calls":[],"total":0}`, rec.Body.String())
}
