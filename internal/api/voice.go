package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/triage-ai/voice-agent/internal/voice"
)

// handleVoiceSignedURL implements GET /api/voice/signed-url.
func (d *Dependencies) handleVoiceSignedURL(w http.ResponseWriter, r *http.Request) {
	if d.Voice == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Voice agent is not configured"})
		return
	}
	url, err := d.Voice.SignedURL(r.Context())
	if errors.Is(err, voice.ErrNotConfigured) {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Voice agent is not configured"})
		return
	}
	if err != nil {
		d.Logger.Error("voice signed url failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, ErrorResp{Detail: "Could not start a voice session"})
		return
	}
	writeJSON(w, http.StatusOK, VoiceResp{SignedURL: url, AgentID: d.Voice.AgentID()})
}
