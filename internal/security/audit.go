package security

import (
	"encoding/json"
	"io"
	"maps"
	"sync"
	"time"
)

// Application context names of the shared security components.
const (
	ServiceRedactor    = "security.redactor"
	ServiceAuditLogger = "security.audit"
)

// EventType categorizes audit events.
type EventType string

// Audit event types.
const (
	EventAuthSuccess       EventType = "auth_success"
	EventAuthFailure       EventType = "auth_failure"
	EventRateLimit         EventType = "rate_limit"
	EventMemoryWrite       EventType = "memory_write"
	EventMemoryDelete      EventType = "memory_delete"
	EventConversationClear EventType = "conversation_clear"
)

// AuditEvent is one line of the audit trail. Item contents are never
// recorded, only identifiers.
type AuditEvent struct {
	Timestamp      time.Time         `json:"timestamp"`
	Type           EventType         `json:"type"`
	OwnerID        string            `json:"owner_id,omitempty"`
	ConversationID string            `json:"conversation_id,omitempty"`
	ItemID         string            `json:"item_id,omitempty"`
	RemoteAddr     string            `json:"remote_addr,omitempty"`
	Detail         string            `json:"detail,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// AuditLoggerConfig configures an AuditLogger.
type AuditLoggerConfig struct {
	// Writer receives one JSON object per line. Nil discards output.
	Writer io.Writer

	// Redactor is applied to Detail and Metadata values when set.
	Redactor *Redactor

	// OnEvent observes every event after redaction.
	OnEvent func(AuditEvent)

	// Now defaults to time.Now.
	Now func() time.Time
}

// AuditLogger writes audit events as JSONL. A nil *AuditLogger discards
// events.
type AuditLogger struct {
	cfg AuditLoggerConfig
	mu  sync.Mutex
}

// NewAuditLogger creates an audit logger.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &AuditLogger{cfg: cfg}
}

// Log stamps and writes event. The caller's Metadata map is not modified.
func (l *AuditLogger) Log(event AuditEvent) {
	if l == nil {
		return
	}
	event.Timestamp = l.cfg.Now().UTC()
	event.Metadata = maps.Clone(event.Metadata)
	if r := l.cfg.Redactor; r != nil {
		event.Detail = r.Redact(event.Detail)
		for k, v := range event.Metadata {
			event.Metadata[k] = r.Redact(v)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cfg.OnEvent != nil {
		l.cfg.OnEvent(event)
	}
	if l.cfg.Writer != nil {
		_ = json.NewEncoder(l.cfg.Writer).Encode(event)
	}
}
