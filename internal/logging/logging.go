// Package logging provides the structured logging conventions used across
// the engine.
//
// Loggers are dependency-injected, never global: every component receives a
// *slog.Logger at construction time and scopes it once with its own
// attributes. When a caller passes nil, a discard logger is substituted so
// components never nil-check before logging.
//
// Logging is sparse on purpose. Record-level code paths (filter evaluation,
// value extraction, aggregation counting) never log; lifecycle boundaries
// (store/remove/purge, collection open/close) are the intended log points.
// Global configuration (output format, level, destination) belongs only in
// main().
package logging

import (
	"context"
	"log/slog"
)

// discardHandler drops all records.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Discard returns a logger that discards all output.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// Default returns the provided logger if non-nil, otherwise a discard
// logger. Standard pattern for optional logger parameters:
//
//	func NewDB(st store.Store, logger *slog.Logger) *DB {
//	    logger = logging.Default(logger)
//	    return &DB{logger: logger.With("component", "active")}
//	}
func Default(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return Discard()
}
