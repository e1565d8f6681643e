package logging

import (
	"context"
	"log/slog"
)

// LogFields represents structured logging key/value pairs used by Streamflow.
type LogFields map[string]any

// ServiceLogger is the minimal logging contract required by Streamflow
// services. Applications can adapt their existing loggers without depending
// on slog.
type ServiceLogger interface {
	With(fields LogFields) ServiceLogger
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Error(msg string, err error, fields LogFields)
}

// NewSlogServiceLogger wraps a slog.Logger so it satisfies the ServiceLogger
// interface.
func NewSlogServiceLogger(log *slog.Logger) ServiceLogger {
	if log == nil {
		panic("streamflow: slog logger cannot be nil")
	}
	return &slogServiceLogger{inner: log}
}

// Nop returns a logger that discards everything. Useful in tests.
func Nop() ServiceLogger {
	return &slogServiceLogger{inner: slog.New(discardHandler{})}
}

type slogServiceLogger struct {
	inner *slog.Logger
}

func (s *slogServiceLogger) With(fields LogFields) ServiceLogger {
	if len(fields) == 0 {
		return s
	}
	return &slogServiceLogger{inner: s.inner.With(toAttrs(fields)...)}
}

func (s *slogServiceLogger) Debug(msg string, fields LogFields) {
	s.inner.Debug(msg, toAttrs(fields)...)
}

func (s *slogServiceLogger) Info(msg string, fields LogFields) {
	s.inner.Info(msg, toAttrs(fields)...)
}

func (s *slogServiceLogger) Error(msg string, err error, fields LogFields) {
	attrs := toAttrs(fields)
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}
	s.inner.Error(msg, attrs...)
}

func toAttrs(fields LogFields) []any {
	if len(fields) == 0 {
		return nil
	}
	attrs := make([]any, 0, len(fields))
	for key, value := range fields {
		attrs = append(attrs, slog.Any(key, value))
	}
	return attrs
}

// BrokerAdapter converts a ServiceLogger into the plain-map logging surface
// broker backends expect, so the same logger flows through the whole stack.
type BrokerAdapter struct {
	base ServiceLogger
}

// NewBrokerAdapter wraps a ServiceLogger for use by broker backends.
func NewBrokerAdapter(log ServiceLogger) *BrokerAdapter {
	if log == nil {
		panic("streamflow: ServiceLogger cannot be nil")
	}
	return &BrokerAdapter{base: log}
}

func (b *BrokerAdapter) Debug(msg string, fields map[string]any) {
	b.base.Debug(msg, LogFields(fields))
}

func (b *BrokerAdapter) Info(msg string, fields map[string]any) {
	b.base.Info(msg, LogFields(fields))
}

func (b *BrokerAdapter) Error(msg string, err error, fields map[string]any) {
	b.base.Error(msg, err, LogFields(fields))
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }
