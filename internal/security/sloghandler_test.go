package security

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newRedactingLogger(literals ...string) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	r := NewRedactor()
	for _, l := range literals {
		r.AddLiteral(l)
	}
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewRedactingHandler(inner, r)), &buf
}

func TestRedactingHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		log  func(*slog.Logger)
	}{
		{"message", func(l *slog.Logger) { l.Info("key is sk-ant-REDACTED") }},
		{"attribute", func(l *slog.Logger) { l.Info("provider ready", "key", "literal-secret-value") }},
		{"with attrs", func(l *slog.Logger) { l.With("key", "literal-secret-value").Info("ready") }},
		{"group", func(l *slog.Logger) {
			l.Info("ready", slog.Group("auth", slog.String("token", "literal-secret-value")))
		}},
		{"with group", func(l *slog.Logger) { l.WithGroup("cfg").Info("ready", "key", "literal-secret-value") }},
		{"error", func(l *slog.Logger) { l.Error("failed", "error", errors.New("bad key literal-secret-value")) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			logger, buf := newRedactingLogger("literal-secret-value")
			tt.log(logger)
			out := buf.String()
			if strings.Contains(out, "literal-secret-value") || strings.Contains(out, "abcdefghijklmnop") {
				t.Errorf("secret leaked: %s", out)
			}
			if !strings.Contains(out, RedactPlaceholder) {
				t.Errorf("placeholder missing: %s", out)
			}
		})
	}
}

func TestRedactingHandler_LeavesSafeValues(t *testing.T) {
	t.Parallel()

	logger, buf := newRedactingLogger()
	logger.Info("item stored", "id", "0b7c", "section", "event", "count", 3)
	out := buf.String()
	for _, want := range []string{"id=0b7c", "section=event", "count=3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}
