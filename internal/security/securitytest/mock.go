// Package securitytest provides test doubles for the security package.
package securitytest

import (
	"sync"

	"github.com/flemzord/recall/internal/security"
)

// NewTestRedactor returns a Redactor without default patterns, so test
// fixtures that look like keys stay readable.
func NewTestRedactor(literals ...string) *security.Redactor {
	r := &security.Redactor{}
	for _, l := range literals {
		r.AddLiteral(l)
	}
	return r
}

// AuditRecorder collects audit events for assertions.
type AuditRecorder struct {
	mu     sync.Mutex
	events []security.AuditEvent
}

// Logger returns an AuditLogger that records into a.
func (a *AuditRecorder) Logger() *security.AuditLogger {
	return security.NewAuditLogger(security.AuditLoggerConfig{OnEvent: a.record})
}

func (a *AuditRecorder) record(e security.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

// Events returns a copy of the recorded events.
func (a *AuditRecorder) Events() []security.AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]security.AuditEvent, len(a.events))
	copy(out, a.events)
	return out
}

// Types returns the recorded event types in order.
func (a *AuditRecorder) Types() []security.EventType {
	events := a.Events()
	out := make([]security.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}
