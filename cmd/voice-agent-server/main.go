package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/triage-ai/voice-agent/internal/api"
	"github.com/triage-ai/voice-agent/internal/auth"
	"github.com/triage-ai/voice-agent/internal/automation"
	"github.com/triage-ai/voice-agent/internal/chat"
	"github.com/triage-ai/voice-agent/internal/config"
	"github.com/triage-ai/voice-agent/internal/gate"
	"github.com/triage-ai/voice-agent/internal/mcp"
	"github.com/triage-ai/voice-agent/internal/model/anthropic"
	"github.com/triage-ai/voice-agent/internal/storage"
	"github.com/triage-ai/voice-agent/internal/voice"
)

const healthService = "triage.voice_agent.v1.VoiceAgent"

func main() {
	envFile := pflag.String("env-file", ".env", "optional dotenv file loaded before reading the environment")
	addr := pflag.String("addr", "", "HTTP listen address (overrides VOICE_AGENT_HTTP_PORT)")
	policyFile := pflag.String("policy", "", "tool gate policy YAML (overrides TOOL_POLICY_FILE)")
	logLevel := pflag.String("log-level", "", "debug, info, warn or error (overrides VOICE_AGENT_LOG_LEVEL)")
	pflag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, cfgErr := config.Load(os.Getenv)
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *policyFile != "" {
		cfg.ToolPolicyFile = *policyFile
	}

	// Logger
	logger := mustBuildLogger(cfg.LogLevel)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	if cfgErr != nil {
		logger.Fatal("invalid configuration", zap.Error(cfgErr))
	}

	httpAddr := *addr
	if httpAddr == "" {
		httpAddr = ":" + cfg.HTTPPort
	}

	logger.Info("starting voice agent server",
		zap.String("http_addr", httpAddr),
		zap.String("model", cfg.Model),
		zap.Int("max_steps", cfg.MaxSteps),
		zap.Bool("mcp_configured", cfg.MCPServerURL != ""),
	)

	// W3C trace context on outgoing MCP and automation calls.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// Tool gate
	policy, table := gate.DefaultPolicy(), gate.DefaultTable()
	if cfg.ToolPolicyFile != "" {
		var err error
		policy, table, err = gate.LoadPolicy(cfg.ToolPolicyFile)
		if err != nil {
			logger.Fatal("failed to load tool policy", zap.String("path", cfg.ToolPolicyFile), zap.Error(err))
		}
		logger.Info("tool policy loaded",
			zap.String("path", cfg.ToolPolicyFile),
			zap.Int("screenshot_limit", policy.ScreenshotLimit),
		)
	}
	toolGate := gate.New(table, policy)

	// Storage: ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	if cfg.ClickHouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(cfg.ClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	var audit api.ToolCallReader
	if cfg.ClickHouseDSN != "" {
		reader, err := storage.NewReader(cfg.ClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse reader unavailable, tool call history disabled", zap.Error(err))
		} else {
			defer func() { _ = reader.Close() }()
			audit = reader
		}
	}

	// MCP bridge: Redis-shared catalog snapshot if REDIS_URL is set
	var (
		tools   chat.ToolSource
		invoker chat.Invoker
	)
	if cfg.MCPServerURL != "" {
		client, err := mcp.NewClient(mcp.Options{
			Endpoint:     cfg.MCPServerURL,
			APIKey:       cfg.MCPAPIKey,
			APIKeyHeader: cfg.MCPAPIKeyHeader,
			Timeout:      cfg.MCPTimeout,
			Logger:       logger.Named("mcp"),
		})
		if err != nil {
			logger.Fatal("invalid MCP_SERVER_URL", zap.Error(err))
		}

		var cache mcp.SnapshotCache
		if cfg.RedisURL != "" {
			rdb, err := connectRedis(cfg.RedisURL)
			if err != nil {
				logger.Warn("redis unavailable, using in-process catalog cache", zap.Error(err))
			} else {
				defer func() { _ = rdb.Close() }()
				cache = mcp.NewRedisCache(rdb, "", 10*cfg.CatalogTTL)
				logger.Info("redis catalog cache connected")
			}
		}

		tools = mcp.NewCatalog(mcp.CatalogConfig{
			Lister: client,
			Cache:  cache,
			TTL:    cfg.CatalogTTL,
			Logger: logger.Named("catalog"),
		})
		invoker = client
	} else {
		logger.Warn("no MCP_SERVER_URL set, chat runs without tools")
	}

	// Model
	apiKey, baseURL := cfg.ModelEndpoint()
	llm, err := anthropic.Connect(anthropic.ConnectOptions{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Timeout:    cfg.ModelTimeout,
		MaxRetries: 2,
	}, anthropic.Options{Model: cfg.Model, MaxTokens: cfg.MaxTokens})
	if err != nil {
		logger.Fatal("failed to build model client", zap.Error(err))
	}

	system, err := cfg.SystemPrompt()
	if err != nil {
		logger.Fatal("failed to read system prompt", zap.Error(err))
	}

	runner, err := chat.NewRunner(chat.Config{
		Model:   llm,
		Tools:   tools,
		Invoker: invoker,
		Gate:    toolGate,
		Events:  writer,
		Logger:  logger.Named("chat"),
		Options: chat.Options{
			MaxSteps:    cfg.MaxSteps,
			ToolTimeout: cfg.ToolTimeout,
			MaxTokens:   cfg.MaxTokens,
			System:      system,
		},
	})
	if err != nil {
		logger.Fatal("failed to build chat runner", zap.Error(err))
	}

	// Auth: Postgres access keys if DSN provided, otherwise the static access code
	var authenticator auth.Authenticator
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(context.Background()); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
		authenticator = auth.NewPostgresAuthenticator(auth.PostgresAuthConfig{
			DB:       db,
			CacheTTL: cfg.AuthCacheTTL,
			Logger:   logger,
		})
		logger.Info("postgres authenticator connected")
	} else {
		authenticator = auth.NewStaticAuthenticator(cfg.AccessCode)
		if cfg.AccessCode == "" {
			logger.Warn("no ACCESS_CODE or POSTGRES_DSN set, API is open")
		}
	}

	// Automation pass-through
	var automationClient *automation.Client
	if cfg.IViewBaseURL != "" {
		automationClient, err = automation.NewClient(automation.Options{
			BaseURL: cfg.IViewBaseURL,
			Logger:  logger.Named("automation"),
		})
		if err != nil {
			logger.Fatal("invalid IVIEW_BASE_URL", zap.Error(err))
		}
	}

	voiceClient := voice.NewClient(voice.Options{
		AgentID: cfg.ElevenLabsAgentID,
		APIKey:  cfg.ElevenLabsAPIKey,
		Logger:  logger.Named("voice"),
	})

	router := api.NewRouter(&api.Dependencies{
		Runner:     runner,
		Automation: automationClient,
		Voice:      voiceClient,
		Audit:      audit,
		Events:     writer,
		Auth:       authenticator,
		Logger:     logger,
		ChatRPS:    cfg.ChatRPS,
		ChatBurst:  cfg.ChatBurst,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Chat streams run a whole tool loop.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Admin gRPC server: health for the load balancer, reflection for grpcurl
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	adminLis, err := net.Listen("tcp", ":"+cfg.AdminPort)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("port", cfg.AdminPort), zap.Error(err))
	}
	httpLis, err := net.Listen("tcp", httpAddr)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", httpAddr), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("voice agent server listening",
		zap.String("http_addr", httpLis.Addr().String()),
		zap.String("admin_addr", adminLis.Addr().String()),
	)
	// serve returns only after in-flight turns have drained, so the deferred
	// audit writer and connection closes run last.
	if err := serve(ctx, servers{
		http:     httpServer,
		httpLis:  httpLis,
		grpc:     grpcServer,
		adminLis: adminLis,
		health:   healthServer,
	}, shutdownTimeout, logger); err != nil {
		logger.Error("server failed", zap.Error(err))
	}
	logger.Info("voice agent server stopped")
}

const shutdownTimeout = 30 * time.Second

type servers struct {
	http     *http.Server
	httpLis  net.Listener
	grpc     *grpc.Server
	adminLis net.Listener
	health   *health.Server
}

// serve runs both listeners until ctx is done or one of them fails, then
// shuts both down and waits for them.
func serve(ctx context.Context, s servers, timeout time.Duration, logger *zap.Logger) error {
	errCh := make(chan error, 2)
	go func() {
		if err := s.grpc.Serve(s.adminLis); err != nil {
			errCh <- fmt.Errorf("admin grpc server: %w", err)
		}
	}()
	go func() {
		if err := s.http.Serve(s.httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
	case runErr = <-errCh:
	}

	s.health.SetServingStatus(healthService, healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	s.grpc.GracefulStop()
	return runErr
}

func connectRedis(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}
