package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventChatRequest      AuditEventType = "chat.request"
	AuditEventChatResponse     AuditEventType = "chat.response"
	AuditEventChatError        AuditEventType = "chat.error"
	AuditEventRetrievalSearch  AuditEventType = "retrieval.search"
	AuditEventLLMRequest       AuditEventType = "llm.request"
	AuditEventLLMResponse      AuditEventType = "llm.response"
	AuditEventLLMError         AuditEventType = "llm.error"
	AuditEventIngestBatch      AuditEventType = "ingest.batch"
	AuditEventIngestComplete   AuditEventType = "ingest.complete"
	AuditEventCollectionCreate AuditEventType = "collection.create"
	AuditEventSessionCreate    AuditEventType = "session.create"
	AuditEventSessionClear     AuditEventType = "session.clear"
)

// AuditEvent is a single audit log entry, written as one JSON line.
type AuditEvent struct {
	Timestamp   time.Time      `json:"timestamp"`
	EventType   AuditEventType `json:"event_type"`
	SessionID   string         `json:"session_id,omitempty"`
	Success     bool           `json:"success"`
	Duration    time.Duration  `json:"duration_ms,omitempty"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	ErrorDetail string         `json:"error_detail,omitempty"`
}

// AuditLogger writes audit events as JSONL. Safe for concurrent use.
type AuditLogger struct {
	mu      sync.Mutex
	writer  io.Writer
	enabled bool
}

// AuditConfig configures the audit logger.
type AuditConfig struct {
	Enabled    bool
	OutputPath string // File path or "stdout"/"stderr"
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(config *AuditConfig) (*AuditLogger, error) {
	if config == nil {
		config = &AuditConfig{Enabled: true, OutputPath: "stdout"}
	}

	var writer io.Writer
	switch config.OutputPath {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		f, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		writer = f
	}

	return &AuditLogger{
		writer:  writer,
		enabled: config.Enabled,
	}, nil
}

// Log writes an audit event.
func (l *AuditLogger) Log(event *AuditEvent) error {
	if !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	_, err = fmt.Fprintf(l.writer, "%s\n", data)
	return err
}

// LogChatRequest logs an incoming chat query.
func (l *AuditLogger) LogChatRequest(ctx context.Context, sessionID, query string) {
	l.Log(&AuditEvent{
		EventType: AuditEventChatRequest,
		SessionID: sessionID,
		Success:   true,
		Message:   "chat request received",
		Details: map[string]any{
			"query_length": len(query),
		},
	})
}

// LogChatResponse logs a completed chat turn.
func (l *AuditLogger) LogChatResponse(ctx context.Context, sessionID string, sourceCount int, duration time.Duration) {
	l.Log(&AuditEvent{
		EventType: AuditEventChatResponse,
		SessionID: sessionID,
		Success:   true,
		Duration:  duration,
		Message:   fmt.Sprintf("chat answered with %d sources", sourceCount),
		Details: map[string]any{
			"source_count": sourceCount,
		},
	})
}

// LogChatError logs a degraded chat turn.
func (l *AuditLogger) LogChatError(ctx context.Context, sessionID string, err error) {
	l.Log(&AuditEvent{
		EventType:   AuditEventChatError,
		SessionID:   sessionID,
		Success:     false,
		Message:     "chat request degraded",
		ErrorDetail: err.Error(),
	})
}

// LogRetrievalSearch logs one similarity search.
func (l *AuditLogger) LogRetrievalSearch(ctx context.Context, sessionID, mode string, resultCount int, topScore float32) {
	l.Log(&AuditEvent{
		EventType: AuditEventRetrievalSearch,
		SessionID: sessionID,
		Success:   true,
		Message:   fmt.Sprintf("%s search returned %d results", mode, resultCount),
		Details: map[string]any{
			"mode":         mode,
			"result_count": resultCount,
			"top_score":    topScore,
		},
	})
}

// LogLLMRequest logs an outgoing model request.
func (l *AuditLogger) LogLLMRequest(ctx context.Context, provider, model string) {
	l.Log(&AuditEvent{
		EventType: AuditEventLLMRequest,
		Success:   true,
		Message:   fmt.Sprintf("LLM request to %s/%s", provider, model),
		Details: map[string]any{
			"provider": provider,
			"model":    model,
		},
	})
}

// LogLLMResponse logs a model response with token usage.
func (l *AuditLogger) LogLLMResponse(ctx context.Context, provider, model string, duration time.Duration, inputTokens, outputTokens int) {
	l.Log(&AuditEvent{
		EventType: AuditEventLLMResponse,
		Success:   true,
		Duration:  duration,
		Message:   fmt.Sprintf("LLM response from %s/%s", provider, model),
		Details: map[string]any{
			"provider":      provider,
			"model":         model,
			"input_tokens":  inputTokens,
			"output_tokens": outputTokens,
			"total_tokens":  inputTokens + outputTokens,
		},
	})
}

// LogLLMError logs a model failure.
func (l *AuditLogger) LogLLMError(ctx context.Context, provider, model string, err error) {
	l.Log(&AuditEvent{
		EventType:   AuditEventLLMError,
		Success:     false,
		Message:     fmt.Sprintf("LLM error from %s/%s", provider, model),
		ErrorDetail: err.Error(),
		Details: map[string]any{
			"provider": provider,
			"model":    model,
		},
	})
}

// LogIngestBatch logs one indexed batch.
func (l *AuditLogger) LogIngestBatch(ctx context.Context, batch, vectors int) {
	l.Log(&AuditEvent{
		EventType: AuditEventIngestBatch,
		Success:   true,
		Message:   fmt.Sprintf("indexed batch %d", batch),
		Details: map[string]any{
			"batch":   batch,
			"vectors": vectors,
		},
	})
}

// LogIngestComplete logs a finished knowledge-base load.
func (l *AuditLogger) LogIngestComplete(ctx context.Context, rows, chunks, vectors int, duration time.Duration) {
	l.Log(&AuditEvent{
		EventType: AuditEventIngestComplete,
		Success:   true,
		Duration:  duration,
		Message:   fmt.Sprintf("ingested %d rows as %d vectors", rows, vectors),
		Details: map[string]any{
			"rows":    rows,
			"chunks":  chunks,
			"vectors": vectors,
		},
	})
}

// LogCollectionCreate logs a collection recreation.
func (l *AuditLogger) LogCollectionCreate(ctx context.Context, collection string, vectorSize uint64) {
	l.Log(&AuditEvent{
		EventType: AuditEventCollectionCreate,
		Success:   true,
		Message:   fmt.Sprintf("recreated collection %s", collection),
		Details: map[string]any{
			"collection":  collection,
			"vector_size": vectorSize,
		},
	})
}

// LogSessionCreate logs a new chat session.
func (l *AuditLogger) LogSessionCreate(ctx context.Context, sessionID string) {
	l.Log(&AuditEvent{
		EventType: AuditEventSessionCreate,
		SessionID: sessionID,
		Success:   true,
		Message:   "session created",
	})
}

// LogSessionClear logs a history deletion.
func (l *AuditLogger) LogSessionClear(ctx context.Context, sessionID string, existed bool) {
	l.Log(&AuditEvent{
		EventType: AuditEventSessionClear,
		SessionID: sessionID,
		Success:   true,
		Message:   "session history cleared",
		Details: map[string]any{
			"existed": existed,
		},
	})
}

// Close closes the audit logger (if using a file).
func (l *AuditLogger) Close() error {
	if closer, ok := l.writer.(io.Closer); ok {
		if closer != os.Stdout && closer != os.Stderr {
			return closer.Close()
		}
	}
	return nil
}
