package api

import (
	"net/http"

	"github.com/triage-ai/voice-agent/internal/gate"
	"github.com/triage-ai/voice-agent/internal/mcp"
)

// handleListTools implements GET /api/tools: the current catalog with the
// gate's view of each tool at the start of a conversation.
func (d *Dependencies) handleListTools(w http.ResponseWriter, r *http.Request) {
	defs := d.Runner.Catalog(r.Context())
	g := d.Runner.Gate()

	atStart := make(map[string]bool)
	for _, name := range g.Enabled(mcp.Names(defs), nil) {
		atStart[name] = true
	}

	tools := make([]ToolResp, 0, len(defs))
	for _, def := range defs {
		category, _ := g.CategoryOf(def.Name)
		tools = append(tools, ToolResp{
			Name:             def.Name,
			Description:      def.Description,
			Category:         string(category),
			Audited:          gate.Audited(category),
			EnabledAtStart:   atStart[def.Name],
			SchemaNormalized: def.Normalized,
			InputSchema:      def.InputSchema,
		})
	}
	writeJSON(w, http.StatusOK, ToolsResp{Tools: tools, ScreenshotLimit: g.Policy().ScreenshotLimit})
}
