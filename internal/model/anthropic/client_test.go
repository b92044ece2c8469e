package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triage-ai/voice-agent/internal/model"
)

type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Options{Model: "m"})
	require.Error(t, err)
	_, err = New(&stubMessagesClient{}, Options{})
	require.Error(t, err)

	c, err := New(&stubMessagesClient{}, Options{Model: "anthropic/claude-sonnet-4"})
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxTokens, c.maxTokens)
}

func TestConnect_RequiresKey(t *testing.T) {
	_, err := Connect(ConnectOptions{}, Options{Model: "m"})
	require.Error(t, err)
}

func TestComplete_TextOnly(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "hello"},
			{Type: "text", Text: "world"},
		},
		StopReason: sdk.StopReasonEndTurn,
		Usage:      sdk.Usage{InputTokens: 10, OutputTokens: 5},
	}}
	c, err := New(stub, Options{Model: "claude-sonnet-4", MaxTokens: 256})
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), &model.Request{
		System:   "be brief",
		Messages: []model.Message{{Role: model.RoleUser, Text: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld", resp.Text)
	assert.Empty(t, resp.ToolCalls)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, 10, resp.Usage.InputTokens)

	assert.Equal(t, int64(256), stub.lastParams.MaxTokens)
	require.Len(t, stub.lastParams.System, 1)
	assert.Equal(t, "be brief", stub.lastParams.System[0].Text)
	assert.Empty(t, stub.lastParams.Tools)
}

func TestComplete_ToolUse(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "Opening the page."},
			{Type: "tool_use", ID: "toolu_1", Name: "navigate_browser", Input: json.RawMessage(`{"url":"https://example.com"}`)},
			{Type: "tool_use", ID: "toolu_2", Name: "get_status"},
		},
		StopReason: sdk.StopReasonToolUse,
	}}
	c, err := New(stub, Options{Model: "claude-sonnet-4"})
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), &model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Text: "open example.com"}},
		Tools: []model.ToolSpec{{
			Name:        "navigate_browser",
			Description: "Navigate",
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{"url": map[string]any{"type": "string"}}},
		}},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, "navigate_browser", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"url":"https://example.com"}`, string(resp.ToolCalls[0].Input))
	assert.JSONEq(t, `{}`, string(resp.ToolCalls[1].Input))

	require.Len(t, stub.lastParams.Tools, 1)
	tool := stub.lastParams.Tools[0].OfTool
	require.NotNil(t, tool)
	assert.Equal(t, "navigate_browser", tool.Name)
	assert.Equal(t, "Navigate", tool.Description.Value)
	assert.Contains(t, tool.InputSchema.ExtraFields, "properties")
}

func TestComplete_EncodesToolRoundTrip(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{Content: []sdk.ContentBlockUnion{{Type: "text", Text: "done"}}}}
	c, err := New(stub, Options{Model: "claude-sonnet-4"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), &model.Request{
		Messages: []model.Message{
			{Role: model.RoleUser, Text: "screenshot please"},
			{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{{ID: "t1", Name: "take_screenshot", Input: json.RawMessage(`{}`)}}},
			{Role: model.RoleUser, ToolResults: []model.ToolResult{{
				ToolCallID: "t1",
				Content:    "captured",
				Images:     []model.Image{{Data: "aGk=", MimeType: "image/png"}},
			}}},
		},
	})
	require.NoError(t, err)
	require.Len(t, stub.lastParams.Messages, 3)

	assistant := stub.lastParams.Messages[1]
	require.Len(t, assistant.Content, 1)
	require.NotNil(t, assistant.Content[0].OfToolUse)
	assert.Equal(t, "take_screenshot", assistant.Content[0].OfToolUse.Name)

	result := stub.lastParams.Messages[2].Content[0].OfToolResult
	require.NotNil(t, result)
	assert.Equal(t, "t1", result.ToolUseID)
	require.Len(t, result.Content, 2)
	require.NotNil(t, result.Content[0].OfText)
	assert.Equal(t, "captured", result.Content[0].OfText.Text)
	require.NotNil(t, result.Content[1].OfImage)
	assert.Equal(t, "aGk=", result.Content[1].OfImage.Source.OfBase64.Data)
}

func TestComplete_ErrorResultIsFlagged(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{}}
	c, err := New(stub, Options{Model: "claude-sonnet-4"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), &model.Request{
		Messages: []model.Message{
			{Role: model.RoleUser, Text: "click it"},
			{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{{ID: "t1", Name: "click_element"}}},
			{Role: model.RoleUser, ToolResults: []model.ToolResult{{ToolCallID: "t1", Content: "boom", IsError: true}}},
		},
	})
	require.NoError(t, err)
	result := stub.lastParams.Messages[2].Content[0].OfToolResult
	require.NotNil(t, result)
	assert.True(t, result.IsError.Value)
	assert.Equal(t, "boom", result.Content[0].OfText.Text)
}

func TestComplete_Errors(t *testing.T) {
	c, err := New(&stubMessagesClient{err: errors.New("gateway down")}, Options{Model: "claude-sonnet-4"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), &model.Request{})
	require.Error(t, err, "empty conversation")

	_, err = c.Complete(context.Background(), &model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Text: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway down")

	_, err = c.Complete(context.Background(), &model.Request{
		Messages: []model.Message{{Role: "system", Text: "hi"}},
	})
	require.Error(t, err, "unsupported role")
}
