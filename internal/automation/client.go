// Package automation is a typed client for the i-View Mini REST API, the
// external service that owns the browser, terminal and memory the agent drives.
package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

const (
	DefaultTimeout = 10 * time.Second

	maxBodyBytes = 16 << 20
)

// ErrUnknownAction is returned for actions outside the allow-list.
var ErrUnknownAction = errors.New("automation: unknown action")

// Actions is the allow-list of POST endpoints the API proxies.
var Actions = []string{
	"navigate", "back", "forward", "reload",
	"click", "fill", "type", "press", "scroll", "hover", "select",
	"screenshot", "page-info", "page-content",
	"tabs/new", "tabs/switch", "tabs/close", "tabs/list",
	"terminal/read", "terminal/write", "terminal/execute",
	"memory/save", "memory/query",
	"sessions/list", "sessions/close",
}

// toolNames maps each action to the MCP tool that performs the same
// operation, so pass-through calls are categorized like chat tool calls.
var toolNames = map[string]string{
	"navigate":         "navigate_browser",
	"back":             "go_back",
	"forward":          "go_forward",
	"reload":           "reload_page",
	"click":            "click_element",
	"fill":             "fill_input",
	"type":             "type_text",
	"press":            "press_key",
	"scroll":           "scroll_page",
	"hover":            "hover_element",
	"select":           "select_option",
	"screenshot":       "take_screenshot",
	"page-info":        "get_page_info",
	"page-content":     "get_page_content",
	"tabs/new":         "new_tab",
	"tabs/switch":      "switch_tab",
	"tabs/close":       "close_tab",
	"tabs/list":        "list_tabs",
	"terminal/read":    "terminal_read",
	"terminal/write":   "terminal_write",
	"terminal/execute": "terminal_execute",
	"memory/save":      "memory_save",
	"memory/query":     "memory_query",
	"sessions/list":    "list_sessions",
	"sessions/close":   "close_session",
}

// ToolName returns the MCP tool equivalent of action, or "" if there is none.
func ToolName(action string) string {
	return toolNames[action]
}

// Error is a failed automation call: a non-2xx status or success=false.
type Error struct {
	Action  string
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("automation %s failed (%d): %s", e.Action, e.Status, e.Message)
}

// Response is the uniform {success, error, ...} envelope. Fields other
// than success and error are kept in Raw.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client calls the automation service. Safe for concurrent use.
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient validates the base URL.
func NewClient(opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("NewClient: base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("NewClient: base url must be http(s), got %q", opts.BaseURL)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{base: u, http: httpClient, timeout: timeout, logger: logger}, nil
}

// Allowed reports whether action may be proxied.
func Allowed(action string) bool {
	return slices.Contains(Actions, action)
}

// Status fetches GET /api/status.
func (c *Client) Status(ctx context.Context) (*Response, error) {
	return c.do(ctx, http.MethodGet, "status", nil)
}

// Do posts body to /api/{action}. body may be nil.
func (c *Client) Do(ctx context.Context, action string, body json.RawMessage) (*Response, error) {
	if !Allowed(action) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		body = json.RawMessage("{}")
	}
	return c.do(ctx, http.MethodPost, action, body)
}

func (c *Client) do(ctx context.Context, method, action string, body []byte) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.base.JoinPath("api", action).String()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		return nil, &Error{Action: action, Status: status, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{Action: action, Status: http.StatusBadGateway, Message: err.Error()}
	}
	c.logger.Debug("automation call",
		zap.String("action", action),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	var out Response
	decodeErr := json.Unmarshal(raw, &out)
	out.Raw = raw

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := out.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return nil, &Error{Action: action, Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, &Error{Action: action, Status: http.StatusBadGateway, Message: "unreadable response: " + decodeErr.Error()}
	}
	if !out.Success && out.Error != "" {
		return nil, &Error{Action: action, Status: resp.StatusCode, Message: out.Error}
	}
	return &out, nil
}
