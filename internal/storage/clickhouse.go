package storage

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	bufferSize    = 4096
	flushInterval = 500 * time.Millisecond
	flushBatch    = 500
	drainTimeout  = 2 * time.Second
)

const insertToolCallEvents = `
	INSERT INTO tool_call_events (
		request_id, conversation_id, timestamp, step,
		tool_name, category, audited, arguments_json,
		is_error, result_excerpt, enabled_tools, latency_ms
	)
`

// batchConn is the part of driver.Conn the writer uses.
type batchConn interface {
	PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
}

// ClickHouseWriter buffers tool call events and batch-inserts them from a
// background goroutine. Write never blocks; a full buffer drops the event.
type ClickHouseWriter struct {
	conn    batchConn
	buffer  chan *ToolCallEvent
	done    chan struct{}
	flushed chan struct{}
	logger  *zap.Logger
}

// NewClickHouseWriter connects to ClickHouse and starts the flush loop.
func NewClickHouseWriter(dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	// secure=true in the DSN already sets TLS; ClickHouse Cloud serves 9440 only over TLS.
	if opts.TLS == nil && strings.HasSuffix(firstAddr(opts.Addr), ":9440") {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return nil, err
	}
	return newClickHouseWriter(conn, logger), nil
}

func newClickHouseWriter(conn batchConn, logger *zap.Logger) *ClickHouseWriter {
	w := &ClickHouseWriter{
		conn:    conn,
		buffer:  make(chan *ToolCallEvent, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}
	go w.flushLoop()
	return w
}

func firstAddr(addrs []string) string {
	if len(addrs) == 0 {
		return ""
	}
	return addrs[0]
}

// Write queues an event for insertion.
func (w *ClickHouseWriter) Write(event *ToolCallEvent) {
	select {
	case w.buffer <- event:
	default:
		w.logger.Warn("clickhouse buffer full, dropping event",
			zap.String("request_id", event.RequestID),
			zap.String("tool_name", event.ToolName),
		)
	}
}

// Close drains buffered events and stops the flush loop.
func (w *ClickHouseWriter) Close() {
	close(w.done)
	<-w.flushed
}

func (w *ClickHouseWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*ToolCallEvent, 0, flushBatch)
	for {
		select {
		case event := <-w.buffer:
			batch = append(batch, event)
			if len(batch) >= flushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
			deadline := time.After(drainTimeout)
		drain:
			for {
				select {
				case event := <-w.buffer:
					batch = append(batch, event)
				case <-deadline:
					break drain
				default:
					break drain
				}
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

func (w *ClickHouseWriter) flush(events []*ToolCallEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, insertToolCallEvents)
	if err != nil {
		w.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, e := range events {
		if err := batch.Append(
			e.RequestID,
			e.ConversationID,
			e.Timestamp,
			e.Step,
			e.ToolName,
			e.Category,
			boolToUint8(e.Audited),
			e.ArgumentsJSON,
			boolToUint8(e.IsError),
			e.ResultExcerpt,
			e.EnabledTools,
			e.LatencyMs,
		); err != nil {
			w.logger.Error("clickhouse append event failed",
				zap.String("request_id", e.RequestID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		w.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(events)),
			zap.Error(err),
		)
	}
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// LogWriter is a fallback EventWriter for local development.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs events to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *ToolCallEvent) {
	w.logger.Info("tool_call_event",
		zap.String("request_id", event.RequestID),
		zap.String("conversation_id", event.ConversationID),
		zap.Int32("step", event.Step),
		zap.String("tool_name", event.ToolName),
		zap.String("category", event.Category),
		zap.Bool("audited", event.Audited),
		zap.Bool("is_error", event.IsError),
		zap.Int("enabled_tool_count", len(event.EnabledTools)),
		zap.Float32("latency_ms", event.LatencyMs),
	)
}

func (w *LogWriter) Close() {}
