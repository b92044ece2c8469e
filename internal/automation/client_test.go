package automation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Options{BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	return c
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	_, err := NewClient(Options{BaseURL: "ftp://iview"})
	assert.Error(t, err)
	_, err = NewClient(Options{})
	assert.Error(t, err)
}

func TestToolName_CoversAllowList(t *testing.T) {
	seen := map[string]string{}
	for _, action := range Actions {
		tool := ToolName(action)
		require.NotEmpty(t, tool, action)
		prev, dup := seen[tool]
		require.False(t, dup, "%s and %s map to %s", prev, action, tool)
		seen[tool] = action
	}
	assert.Equal(t, "terminal_execute", ToolName("terminal/execute"))
	assert.Equal(t, "close_session", ToolName("sessions/close"))
	assert.Empty(t, ToolName("shutdown"))
}

func TestStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/status", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true,"browser":"ready","tabs":2}`))
	})

	resp, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.JSONEq(t, `{"success":true,"browser":"ready","tabs":2}`, string(resp.Raw))
}

func TestDo_PostsBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/tabs/list", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{}`, string(body))
		_, _ = w.Write([]byte(`{"success":true,"tabs":[]}`))
	})

	resp, err := c.Do(context.Background(), "tabs/list", nil)
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestDo_UnknownAction(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("unexpected request")
	})
	_, err := c.Do(context.Background(), "../admin", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestDo_Failures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "success false", status: 200, body: `{"success":false,"error":"element not found"}`, want: "element not found"},
		{name: "server error", status: 500, body: `{"error":"browser crashed"}`, want: "browser crashed"},
		{name: "plain text error", status: 503, body: `unavailable`, want: "unavailable"},
		{name: "not json", status: 200, body: `<html>`, want: "unreadable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := c.Do(context.Background(), "click", json.RawMessage(`{"selector":"#x"}`))
			var aerr *Error
			require.True(t, errors.As(err, &aerr))
			assert.Equal(t, "click", aerr.Action)
			assert.Contains(t, aerr.Message, tc.want)
		})
	}
}

func TestDo_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()
	c, err := NewClient(Options{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	_, err = c.Do(context.Background(), "screenshot", nil)
	var aerr *Error
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, http.StatusGatewayTimeout, aerr.Status)
}
