// Package voice issues ElevenLabs conversational-agent session URLs for the
// browser voice client.
package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.elevenlabs.io"
	DefaultTimeout = 10 * time.Second
)

// ErrNotConfigured is returned when no agent id or API key is set.
var ErrNotConfigured = errors.New("voice: elevenlabs agent is not configured")

// Options configures a Client.
type Options struct {
	AgentID    string
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client requests signed URLs from ElevenLabs.
type Client struct {
	agentID string
	apiKey  string
	baseURL string
	timeout time.Duration
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(opts Options) *Client {
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
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
	return &Client{
		agentID: opts.AgentID,
		apiKey:  opts.APIKey,
		baseURL: strings.TrimRight(base, "/"),
		timeout: timeout,
		http:    httpClient,
		logger:  logger,
	}
}

// Configured reports whether SignedURL can succeed.
func (c *Client) Configured() bool {
	return c.agentID != "" && c.apiKey != ""
}

// AgentID returns the configured agent id.
func (c *Client) AgentID() string {
	return c.agentID
}

// SignedURL returns a short-lived websocket URL for one voice session.
func (c *Client) SignedURL(ctx context.Context) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + "/v1/convai/conversation/get_signed_url?agent_id=" + url.QueryEscape(c.agentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("SignedURL: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("SignedURL: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("elevenlabs signed url rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("agent_id", c.agentID),
		)
		return "", fmt.Errorf("SignedURL: elevenlabs status %d", resp.StatusCode)
	}

	var out struct {
		SignedURL string `json:"signed_url"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("SignedURL: decode: %w", err)
	}
	if out.SignedURL == "" {
		return "", errors.New("SignedURL: empty signed_url in response")
	}
	return out.SignedURL, nil
}
