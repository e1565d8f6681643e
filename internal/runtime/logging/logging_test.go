package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger() (*bytes.Buffer, ServiceLogger) {
	buf := &bytes.Buffer{}
	handler := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return buf, NewSlogServiceLogger(slog.New(handler))
}

func TestSlogServiceLoggerLevels(t *testing.T) {
	buf, logger := newBufferLogger()

	logger.Debug("debug message", LogFields{"key": "value"})
	logger.Info("info message", nil)
	logger.Error("error message", errors.New("boom"), LogFields{"stream": "orders"})

	out := buf.String()
	assert.Contains(t, out, "debug message")
	assert.Contains(t, out, "key=value")
	assert.Contains(t, out, "info message")
	assert.Contains(t, out, "error message")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "stream=orders")
}

func TestWithAttachesFields(t *testing.T) {
	buf, logger := newBufferLogger()

	scoped := logger.With(LogFields{"consumer": "billing-1"})
	scoped.Info("scoped message", nil)

	assert.Contains(t, buf.String(), "consumer=billing-1")
}

func TestWithEmptyFieldsReturnsSameLogger(t *testing.T) {
	_, logger := newBufferLogger()
	assert.Equal(t, logger, logger.With(nil))
}

func TestNewSlogServiceLoggerNilPanics(t *testing.T) {
	assert.Panics(t, func() { NewSlogServiceLogger(nil) })
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := Nop()
	logger.Debug("ignored", nil)
	logger.Info("ignored", LogFields{"a": 1})
	logger.Error("ignored", errors.New("boom"), nil)
}

func TestBrokerAdapter(t *testing.T) {
	buf, logger := newBufferLogger()
	adapter := NewBrokerAdapter(logger)

	adapter.Debug("broker debug", map[string]any{"stream": "orders"})
	adapter.Info("broker info", nil)
	adapter.Error("broker error", errors.New("down"), map[string]any{"group": "billing"})

	out := buf.String()
	assert.Contains(t, out, "broker debug")
	assert.Contains(t, out, "stream=orders")
	assert.Contains(t, out, "broker info")
	assert.Contains(t, out, "down")
	assert.Contains(t, out, "group=billing")
}

func TestNewBrokerAdapterNilPanics(t *testing.T) {
	require.Panics(t, func() { NewBrokerAdapter(nil) })
}
