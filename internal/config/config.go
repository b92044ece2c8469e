// Package config reads the service configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultGatewayBaseURL = "https://ai-gateway.vercel.sh"
	// DefaultGatewayModel is the gateway's provider-qualified model id.
	DefaultGatewayModel = "anthropic/claude-sonnet-4"
	// DefaultDirectModel is used when talking to Anthropic without a gateway.
	DefaultDirectModel = "claude-sonnet-4-20250514"
)

// DefaultSystemPrompt is used when SYSTEM_PROMPT_FILE is unset.
const DefaultSystemPrompt = `You are a voice and chat assistant that operates a remote browser and terminal through tools.
Start by checking status or navigating; more tools become available once a page is open.
Keep answers short and spoken-friendly. If a tool fails, explain what happened and suggest a next step.`

// Config is the full service configuration.
type Config struct {
	HTTPPort  string
	AdminPort string
	LogLevel  string

	IViewBaseURL string

	MCPServerURL    string
	MCPAPIKey       string
	MCPAPIKeyHeader string
	CatalogTTL      time.Duration
	MCPTimeout      time.Duration
	ToolTimeout     time.Duration

	GatewayAPIKey   string
	GatewayBaseURL  string
	AnthropicAPIKey string
	Model           string
	MaxTokens       int
	ModelTimeout    time.Duration

	MaxSteps         int
	ChatRPS          float64
	ChatBurst        int
	SystemPromptFile string
	ToolPolicyFile   string

	ElevenLabsAgentID string
	ElevenLabsAPIKey  string

	AccessCode    string
	PostgresDSN   string
	AuthCacheTTL  time.Duration
	ClickHouseDSN string
	RedisURL      string
}

// ErrNoModelKey is returned when neither a gateway nor an Anthropic key is set.
var ErrNoModelKey = errors.New("config: AI_GATEWAY_API_KEY or ANTHROPIC_API_KEY is required")

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("LoadDotEnv: %w", err)
	}
	return nil
}

// Load reads the configuration through getenv (os.Getenv in production).
func Load(getenv func(string) string) (*Config, error) {
	e := env(getenv)
	c := &Config{
		HTTPPort:  e.orDefault("VOICE_AGENT_HTTP_PORT", "8080"),
		AdminPort: e.orDefault("VOICE_AGENT_ADMIN_PORT", "50055"),
		LogLevel:  e.orDefault("VOICE_AGENT_LOG_LEVEL", "info"),

		IViewBaseURL: e.orDefault("IVIEW_BASE_URL", ""),

		MCPServerURL:    e.orDefault("MCP_SERVER_URL", ""),
		MCPAPIKey:       e.orDefault("MCP_API_KEY", ""),
		MCPAPIKeyHeader: e.orDefault("MCP_API_KEY_HEADER", ""),
		CatalogTTL:      e.secondsOr("MCP_CATALOG_TTL_S", 60),
		MCPTimeout:      e.millisOr("MCP_TIMEOUT_MS", 15000),
		ToolTimeout:     e.millisOr("TOOL_TIMEOUT_MS", 20000),

		GatewayAPIKey:   e.orDefault("AI_GATEWAY_API_KEY", ""),
		GatewayBaseURL:  e.orDefault("AI_GATEWAY_BASE_URL", DefaultGatewayBaseURL),
		AnthropicAPIKey: e.orDefault("ANTHROPIC_API_KEY", ""),
		Model:           e.orDefault("CHAT_MODEL", ""),
		MaxTokens:       e.intOr("CHAT_MAX_TOKENS", 4096),
		ModelTimeout:    e.millisOr("MODEL_TIMEOUT_MS", 60000),

		MaxSteps:         e.intOr("CHAT_MAX_STEPS", 10),
		ChatRPS:          e.floatOr("CHAT_RATE_LIMIT_RPS", 1),
		ChatBurst:        e.intOr("CHAT_RATE_LIMIT_BURST", 5),
		SystemPromptFile: e.orDefault("SYSTEM_PROMPT_FILE", ""),
		ToolPolicyFile:   e.orDefault("TOOL_POLICY_FILE", ""),

		ElevenLabsAgentID: e.orDefault("ELEVENLABS_AGENT_ID", ""),
		ElevenLabsAPIKey:  e.orDefault("ELEVENLABS_API_KEY", ""),

		AccessCode:    e.orDefault("ACCESS_CODE", ""),
		PostgresDSN:   e.orDefault("POSTGRES_DSN", e.orDefault("SUPABASE_DB_URL", "")),
		AuthCacheTTL:  e.secondsOr("VOICE_AGENT_AUTH_CACHE_TTL_S", 30),
		ClickHouseDSN: e.orDefault("CLICKHOUSE_DSN", ""),
		RedisURL:      e.orDefault("REDIS_URL", ""),
	}
	if c.Model == "" {
		c.Model = DefaultDirectModel
		if c.GatewayAPIKey != "" {
			c.Model = DefaultGatewayModel
		}
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate reports configuration the service cannot start with. Missing
// optional integrations are not errors; they only disable features.
func (c *Config) Validate() error {
	if c.GatewayAPIKey == "" && c.AnthropicAPIKey == "" {
		return ErrNoModelKey
	}
	if c.MaxSteps < 1 {
		return fmt.Errorf("config: CHAT_MAX_STEPS must be at least 1, got %d", c.MaxSteps)
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("config: CHAT_MAX_TOKENS must be at least 1, got %d", c.MaxTokens)
	}
	return nil
}

// ModelEndpoint returns the key and base URL the model client should use.
// The gateway wins when its key is set; an empty base URL means the SDK default.
func (c *Config) ModelEndpoint() (apiKey, baseURL string) {
	if c.GatewayAPIKey != "" {
		return c.GatewayAPIKey, c.GatewayBaseURL
	}
	return c.AnthropicAPIKey, ""
}

// SystemPrompt returns the contents of SystemPromptFile, or the default prompt.
func (c *Config) SystemPrompt() (string, error) {
	if c.SystemPromptFile == "" {
		return DefaultSystemPrompt, nil
	}
	raw, err := os.ReadFile(c.SystemPromptFile)
	if err != nil {
		return "", fmt.Errorf("SystemPrompt: %w", err)
	}
	prompt := strings.TrimSpace(string(raw))
	if prompt == "" {
		return DefaultSystemPrompt, nil
	}
	return prompt, nil
}

type env func(string) string

func (e env) orDefault(key, defaultVal string) string {
	if v := strings.TrimSpace(e(key)); v != "" {
		return v
	}
	return defaultVal
}

func (e env) intOr(key string, defaultVal int) int {
	if v := e(key); v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return defaultVal
}

func (e env) floatOr(key string, defaultVal float64) float64 {
	if v := e(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func (e env) millisOr(key string, defaultVal int) time.Duration {
	return time.Duration(e.intOr(key, defaultVal)) * time.Millisecond
}

func (e env) secondsOr(key string, defaultVal int) time.Duration {
	return time.Duration(e.intOr(key, defaultVal)) * time.Second
}
