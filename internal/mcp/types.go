// Package mcp bridges a remote MCP tool catalog, reachable over JSON-RPC
// on HTTP, into locally callable tools with object-rooted JSON schemas.
package mcp

import (
	"errors"
	"fmt"
)

// ErrCatalogUnavailable is returned when tools/list cannot be fetched or parsed.
var ErrCatalogUnavailable = errors.New("mcp: tool catalog unavailable")

// ErrSchemaIncompatible marks an input schema whose root is not an object.
// NormalizeSchema reports it alongside the substituted empty-object schema.
var ErrSchemaIncompatible = errors.New("mcp: input schema root is not an object")

// ToolDefinition is one entry of the remote catalog.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
	// Normalized is true when the remote schema was replaced with an
	// empty-object schema and the tool is treated as parameterless.
	Normalized bool `json:"normalized,omitempty"`
}

// Image is a binary payload returned by a tool, base64 encoded.
type Image struct {
	Data     string `json:"data"`
	MimeType string `json:"mime_type"`
}

// ToolResult is the extracted content of a tools/call reply.
type ToolResult struct {
	Text    string  `json:"text"`
	Images  []Image `json:"images,omitempty"`
	IsError bool    `json:"is_error,omitempty"`
}

// ToolInvocationError is returned when a tools/call fails. Err holds the
// transport cause when the request never produced an envelope.
type ToolInvocationError struct {
	Tool    string
	Code    int
	Message string
	Err     error
}

func (e *ToolInvocationError) Unwrap() error { return e.Err }

func (e *ToolInvocationError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("tool %s failed (%d): %s", e.Tool, e.Code, e.Message)
	}
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Message)
}

// Names returns the tool names of defs in order.
func Names(defs []ToolDefinition) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.Name
	}
	return out
}
