// Package api exposes the chat loop, the tool catalog and the automation
// and voice pass-throughs over HTTP.
package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/triage-ai/voice-agent/internal/auth"
	"github.com/triage-ai/voice-agent/internal/automation"
	"github.com/triage-ai/voice-agent/internal/chat"
	"github.com/triage-ai/voice-agent/internal/storage"
	"github.com/triage-ai/voice-agent/internal/voice"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Runner     *chat.Runner
	Automation *automation.Client // nil if IVIEW_BASE_URL is unset
	Voice      *voice.Client
	Audit      ToolCallReader // nil if CLICKHOUSE_DSN is unset
	// Events receives audit events for pass-through automation calls.
	Events storage.EventWriter
	Auth       auth.Authenticator
	Logger     *zap.Logger

	// ChatRPS and ChatBurst bound POST /api/chat per caller. Zero disables the limit.
	ChatRPS   float64
	ChatBurst int
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Events == nil {
		deps.Events = storage.NewLogWriter(deps.Logger)
	}
	if deps.Auth == nil {
		deps.Auth = auth.NewStaticAuthenticator("")
	}
	limit := newRateLimiter(deps.ChatRPS, deps.ChatBurst)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", deps.authMiddleware(limit.middleware(deps.handleChat)))
	mux.HandleFunc("GET /api/tools", deps.authMiddleware(deps.handleListTools))

	mux.HandleFunc("GET /api/tool-calls", deps.authMiddleware(deps.handleListToolCalls))

	mux.HandleFunc("GET /api/automation/status", deps.authMiddleware(deps.handleAutomationStatus))
	mux.HandleFunc("POST /api/automation/{action...}", deps.authMiddleware(deps.handleAutomationAction))

	mux.HandleFunc("GET /api/voice/signed-url", deps.authMiddleware(deps.handleVoiceSignedURL))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return corsMiddleware(requestLogging(mux, deps.Logger))
}
