package telemetry

import (
	"context"
	"log/slog"
)

// nopHandler discards every record. Enabled returns false so slog skips
// formatting.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// NopLogger returns a logger that writes nothing. Components fall back to it
// when no logger is injected.
func NopLogger() *slog.Logger {
	return slog.New(nopHandler{})
}
