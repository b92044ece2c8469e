package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Reader provides read access to the tool_call_events table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(dsn string, logger *zap.Logger) (*Reader, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if opts.TLS == nil && strings.HasSuffix(firstAddr(opts.Addr), ":9440") {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	return &Reader{conn: conn, logger: logger}, nil
}

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// ToolCallRow is a single row of tool_call_events.
type ToolCallRow struct {
	RequestID      string    `json:"request_id"`
	ConversationID string    `json:"conversation_id"`
	Timestamp      time.Time `json:"timestamp"`
	Step           int32     `json:"step"`
	ToolName       string    `json:"tool_name"`
	Category       string    `json:"category"`
	Audited        uint8     `json:"audited"`
	ArgumentsJSON  string    `json:"arguments_json"`
	IsError        uint8     `json:"is_error"`
	ResultExcerpt  string    `json:"result_excerpt"`
	EnabledTools   []string  `json:"enabled_tools"`
	LatencyMs      float32   `json:"latency_ms"`
}

// ListToolCallsParams holds filters and pagination for ListToolCalls.
type ListToolCallsParams struct {
	ConversationID *string
	ToolName       *string
	Category       *string
	AuditedOnly    bool
	ErrorsOnly     bool
	StartTime      *time.Time
	EndTime        *time.Time
	Page           int
	PageSize       int
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

const toolCallColumns = "request_id, conversation_id, timestamp, step, tool_name, category, " +
	"audited, arguments_json, is_error, result_excerpt, enabled_tools, latency_ms"

// buildToolCallFilter turns params into a WHERE clause with named args.
func buildToolCallFilter(params ListToolCallsParams) (string, []any) {
	conditions := []string{"1 = 1"}
	var args []any

	if params.ConversationID != nil {
		conditions = append(conditions, "conversation_id = @conversation_id")
		args = append(args, clickhouse.Named("conversation_id", *params.ConversationID))
	}
	if params.ToolName != nil {
		conditions = append(conditions, "tool_name = @tool_name")
		args = append(args, clickhouse.Named("tool_name", *params.ToolName))
	}
	if params.Category != nil {
		conditions = append(conditions, "category = @category")
		args = append(args, clickhouse.Named("category", *params.Category))
	}
	if params.AuditedOnly {
		conditions = append(conditions, "audited = 1")
	}
	if params.ErrorsOnly {
		conditions = append(conditions, "is_error = 1")
	}
	if params.StartTime != nil {
		conditions = append(conditions, "timestamp >= @start_time")
		args = append(args, clickhouse.Named("start_time", *params.StartTime))
	}
	if params.EndTime != nil {
		conditions = append(conditions, "timestamp <= @end_time")
		args = append(args, clickhouse.Named("end_time", *params.EndTime))
	}
	return strings.Join(conditions, " AND "), args
}

// normalizePage clamps page and page size to usable values.
func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// ListToolCalls returns paginated, filtered tool call events, newest first,
// and the total count.
func (r *Reader) ListToolCalls(ctx context.Context, params ListToolCallsParams) ([]ToolCallRow, int, error) {
	where, args := buildToolCallFilter(params)
	page, size := normalizePage(params.Page, params.PageSize)
	offset := (page - 1) * size

	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM tool_call_events WHERE %s", where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListToolCalls count: %w", err)
	}

	dataQuery := fmt.Sprintf(
		"SELECT %s FROM tool_call_events WHERE %s ORDER BY timestamp DESC, step DESC LIMIT @limit OFFSET @offset",
		toolCallColumns, where,
	)
	args = append(args,
		clickhouse.Named("limit", uint32(size)),
		clickhouse.Named("offset", uint32(offset)),
	)

	rows, err := r.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListToolCalls query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ToolCallRow
	for rows.Next() {
		var e ToolCallRow
		if err := rows.Scan(
			&e.RequestID, &e.ConversationID, &e.Timestamp, &e.Step,
			&e.ToolName, &e.Category, &e.Audited, &e.ArgumentsJSON,
			&e.IsError, &e.ResultExcerpt, &e.EnabledTools, &e.LatencyMs,
		); err != nil {
			return nil, 0, fmt.Errorf("ListToolCalls scan: %w", err)
		}
		out = append(out, e)
	}
	return out, int(total), rows.Err()
}
