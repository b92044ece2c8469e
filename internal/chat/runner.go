// Package chat runs the bounded tool-calling loop behind one chat turn.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/triage-ai/voice-agent/internal/gate"
	"github.com/triage-ai/voice-agent/internal/mcp"
	"github.com/triage-ai/voice-agent/internal/model"
	"github.com/triage-ai/voice-agent/internal/storage"
)

const (
	DefaultMaxSteps    = 10
	DefaultToolTimeout = 20 * time.Second
)

var (
	// ErrUpstreamModel wraps any failure of the model provider. It is the
	// only runtime failure Run reports; tool and catalog problems are
	// absorbed into the conversation.
	ErrUpstreamModel = errors.New("chat: upstream model error")

	// ErrEmptyTurn is returned when a turn carries no messages.
	ErrEmptyTurn = errors.New("chat: turn has no messages")
)

var tracer = otel.Tracer("github.com/triage-ai/voice-agent/internal/chat")

// ToolSource supplies the tool catalog for a turn. *mcp.Catalog implements it.
type ToolSource interface {
	Tools(ctx context.Context) []mcp.ToolDefinition
}

// Invoker executes a single tool call. *mcp.Client implements it.
type Invoker interface {
	CallTool(ctx context.Context, name string, args json.RawMessage) (*mcp.ToolResult, error)
}

// Options tunes the loop.
type Options struct {
	MaxSteps    int
	ToolTimeout time.Duration
	MaxTokens   int
	System      string
}

// Config wires a Runner.
type Config struct {
	Model   model.Client
	Tools   ToolSource // nil runs every turn without tools
	Invoker Invoker
	Gate    *gate.Gate
	Events  storage.EventWriter
	Logger  *zap.Logger
	Options Options
}

// Runner drives turns. It holds no per-conversation state and is safe for
// concurrent use.
type Runner struct {
	model   model.Client
	tools   ToolSource
	invoker Invoker
	gate    *gate.Gate
	events  storage.EventWriter
	logger  *zap.Logger
	opts    Options
}

// NewRunner validates cfg and fills defaults.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Model == nil {
		return nil, errors.New("NewRunner: model client is required")
	}
	if cfg.Tools != nil && cfg.Invoker == nil {
		return nil, errors.New("NewRunner: invoker is required when tools are configured")
	}
	opts := cfg.Options
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = DefaultToolTimeout
	}
	g := cfg.Gate
	if g == nil {
		g = gate.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	events := cfg.Events
	if events == nil {
		events = storage.NewLogWriter(logger)
	}
	return &Runner{
		model:   cfg.Model,
		tools:   cfg.Tools,
		invoker: cfg.Invoker,
		gate:    g,
		events:  events,
		logger:  logger,
		opts:    opts,
	}, nil
}

// Gate returns the gate the runner filters tools with.
func (r *Runner) Gate() *gate.Gate {
	return r.gate
}

// Catalog returns the current tool catalog, or nil when none is configured.
func (r *Runner) Catalog(ctx context.Context) []mcp.ToolDefinition {
	if r.tools == nil {
		return nil
	}
	return r.tools.Tools(ctx)
}

// turnState is the mutable state of one Run call.
type turnState struct {
	turn     Turn
	sink     Sink
	catalog  map[string]mcp.ToolDefinition
	names    []string
	history  []gate.CallRecord
	messages []model.Message
	texts    []string
	result   *Result
}

func (ts *turnState) emit(e Event) {
	if ts.sink != nil {
		ts.sink(e)
	}
}

// Run executes one turn: up to MaxSteps model steps, each offered the tools
// the gate enables for the calls made so far. Reaching the step cap is not
// an error; the partial text is returned with StepLimitReached set.
func (r *Runner) Run(ctx context.Context, turn Turn, sink Sink) (*Result, error) {
	if len(turn.Messages) == 0 {
		return nil, ErrEmptyTurn
	}
	if turn.RequestID == "" {
		turn.RequestID = uuid.NewString()
	}
	if turn.ConversationID == "" {
		turn.ConversationID = uuid.NewString()
	}

	ctx, span := tracer.Start(ctx, "chat.turn", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	span.SetAttributes(
		attribute.String("chat.request_id", turn.RequestID),
		attribute.String("chat.conversation_id", turn.ConversationID),
	)

	defs := r.Catalog(ctx)
	ts := &turnState{
		turn:     turn,
		sink:     sink,
		catalog:  make(map[string]mcp.ToolDefinition, len(defs)),
		names:    mcp.Names(defs),
		history:  append([]gate.CallRecord(nil), turn.History...),
		messages: append([]model.Message(nil), turn.Messages...),
		result:   &Result{RequestID: turn.RequestID, ConversationID: turn.ConversationID},
	}
	for _, d := range defs {
		if _, dup := ts.catalog[d.Name]; !dup {
			ts.catalog[d.Name] = d
		}
	}
	span.SetAttributes(attribute.Int("chat.catalog_size", len(defs)))

	for step := 0; step < r.opts.MaxSteps; step++ {
		done, err := r.step(ctx, ts, step)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "upstream model error")
			r.logger.Error("model step failed",
				zap.String("request_id", turn.RequestID),
				zap.Int("step", step),
				zap.Error(err),
			)
			return nil, err
		}
		ts.result.Steps = step + 1
		if done {
			return r.finish(ts), nil
		}
	}

	ts.result.StepLimitReached = true
	r.logger.Warn("step limit reached",
		zap.String("request_id", turn.RequestID),
		zap.Int("max_steps", r.opts.MaxSteps),
	)
	span.SetAttributes(attribute.Bool("chat.step_limit_reached", true))
	return r.finish(ts), nil
}

func (r *Runner) finish(ts *turnState) *Result {
	ts.result.Text = strings.Join(ts.texts, "\n\n")
	ts.result.ToolCalls = ts.history[len(ts.turn.History):]
	ts.emit(Event{Type: EventFinish, Step: ts.result.Steps, Finish: ts.result})
	return ts.result
}

// step runs one model call and any tool calls it requests. It reports
// true when the model answered without requesting tools.
func (r *Runner) step(ctx context.Context, ts *turnState, step int) (bool, error) {
	enabled := r.gate.Enabled(ts.names, ts.history)
	specs := make([]model.ToolSpec, 0, len(enabled))
	for _, name := range enabled {
		d := ts.catalog[name]
		specs = append(specs, model.ToolSpec{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
		})
	}

	resp, err := r.model.Complete(ctx, &model.Request{
		System:    r.opts.System,
		Messages:  ts.messages,
		Tools:     specs,
		MaxTokens: r.opts.MaxTokens,
	})
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrUpstreamModel, err)
	}
	ts.result.Usage.InputTokens += resp.Usage.InputTokens
	ts.result.Usage.OutputTokens += resp.Usage.OutputTokens

	if strings.TrimSpace(resp.Text) != "" {
		ts.texts = append(ts.texts, resp.Text)
		ts.emit(Event{Type: EventText, Step: step, Text: resp.Text})
	}
	ts.messages = append(ts.messages, model.Message{
		Role:      model.RoleAssistant,
		Text:      resp.Text,
		ToolCalls: resp.ToolCalls,
	})
	if len(resp.ToolCalls) == 0 {
		return true, nil
	}

	// Every call in a step is checked against the tools enabled at the
	// start of that step, so unlocks take effect on the next step.
	allowed := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		allowed[name] = true
	}
	results := make([]model.ToolResult, 0, len(resp.ToolCalls))
	for _, call := range resp.ToolCalls {
		res := r.execute(ctx, ts, step, call, allowed, enabled)
		results = append(results, res)
	}
	ts.messages = append(ts.messages, model.Message{Role: model.RoleUser, ToolResults: results})
	return false, nil
}

func (r *Runner) execute(ctx context.Context, ts *turnState, step int, call model.ToolCall, allowed map[string]bool, enabled []string) model.ToolResult {
	ctx, span := tracer.Start(ctx, "chat.tool_call", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("tool.name", call.Name),
		attribute.Int("chat.step", step),
	)

	args := call.Input
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	ts.emit(Event{Type: EventToolCall, Step: step, Tool: call.Name, ToolCallID: call.ID, Arguments: args, EnabledTools: enabled})

	start := time.Now()
	out, rejected := r.invoke(ctx, call.Name, args, ts.catalog, allowed)
	latency := time.Since(start)
	if out.IsError {
		span.SetStatus(codes.Error, "tool error")
	}

	category, _ := r.gate.CategoryOf(call.Name)
	audited := gate.Audited(category)
	r.logger.Info("tool call",
		zap.String("request_id", ts.turn.RequestID),
		zap.String("conversation_id", ts.turn.ConversationID),
		zap.String("tool_name", call.Name),
		zap.Int("step", step),
		zap.Int("enabled_tool_count", len(enabled)),
		zap.String("category", string(category)),
		zap.Bool("audited", audited),
		zap.Bool("is_error", out.IsError),
		zap.Bool("rejected", rejected),
		zap.Duration("latency", latency),
	)
	r.events.Write(&storage.ToolCallEvent{
		RequestID:      ts.turn.RequestID,
		ConversationID: ts.turn.ConversationID,
		Timestamp:      start.UTC(),
		Step:           int32(step),
		ToolName:       call.Name,
		Category:       string(category),
		Audited:        audited,
		ArgumentsJSON:  string(args),
		IsError:        out.IsError,
		ResultExcerpt:  storage.Excerpt(out.Content),
		EnabledTools:   enabled,
		LatencyMs:      float32(latency.Microseconds()) / 1000,
	})

	ts.history = append(ts.history, gate.CallRecord{
		Name:      call.Name,
		Arguments: args,
		Result:    storage.Excerpt(out.Content),
		IsError:   out.IsError,
		Rejected:  rejected,
	})
	ts.emit(Event{
		Type:       EventToolResult,
		Step:       step,
		Tool:       call.Name,
		ToolCallID: call.ID,
		Result:     out.Content,
		ImageCount: len(out.Images),
		IsError:    out.IsError,
	})
	out.ToolCallID = call.ID
	return out
}

// invoke runs a call and folds every failure into an error result so the
// model can see it and respond. rejected reports that the call was refused
// locally and never sent to the server.
func (r *Runner) invoke(ctx context.Context, name string, args json.RawMessage, catalog map[string]mcp.ToolDefinition, allowed map[string]bool) (out model.ToolResult, rejected bool) {
	def, ok := catalog[name]
	if !ok {
		return errorResult(fmt.Sprintf("tool %q does not exist", name)), true
	}
	if !allowed[name] {
		return errorResult(fmt.Sprintf("tool %q is not enabled at this step", name)), true
	}
	if err := mcp.ValidateArguments(def, args); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments for %s: %v", name, err)), true
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.ToolTimeout)
	defer cancel()
	res, err := r.invoker.CallTool(ctx, name, args)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errorResult(fmt.Sprintf("tool %s timed out after %s", name, r.opts.ToolTimeout)), false
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return errorResult(fmt.Sprintf("tool %s timed out", name)), false
		}
		return errorResult(err.Error()), false
	}

	out = model.ToolResult{Content: res.Text, IsError: res.IsError}
	for _, img := range res.Images {
		if !strings.HasPrefix(img.MimeType, "image/") {
			continue
		}
		out.Images = append(out.Images, model.Image{Data: img.Data, MimeType: img.MimeType})
	}
	return out, false
}

func errorResult(msg string) model.ToolResult {
	return model.ToolResult{Content: msg, IsError: true}
}
