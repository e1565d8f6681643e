// Package broker defines the stream client contract shared by all backends:
// append-only streams of flat string-field entries, idempotent consumer
// group creation, blocking group reads, and explicit per-entry
// acknowledgement. Backend packages register themselves with the Registry
// and are selected by Config.GetBroker().
package broker

import (
	"context"
	"time"
)

// FieldData is the entry field holding the serialized event envelope. By
// convention it is the only field business entries carry.
const FieldData = "data"

// Entry is one unit appended to a stream. IDs are opaque but strictly
// increasing in append order within a stream.
type Entry struct {
	ID     string
	Fields map[string]string
}

// Data returns the serialized envelope carried by the entry, or an empty
// string when the data field is absent.
func (e Entry) Data() string {
	return e.Fields[FieldData]
}

// Client is the narrow broker interface the pipeline is built on.
//
// All operations apply bounded timeouts; a hung broker must never block a
// caller indefinitely. Connection and timeout failures are reported as
// *UnavailableError so the pipeline can account and retry them.
type Client interface {
	// Append adds an entry to the stream and returns its id.
	Append(ctx context.Context, stream string, fields map[string]string) (string, error)

	// EnsureGroup creates the consumer group at the stream tail, creating
	// the stream itself when absent. Creating an existing group is success,
	// not an error.
	EnsureGroup(ctx context.Context, stream, group string) error

	// ReadGroup blocks up to block for undelivered entries and returns at
	// most count of them. A timeout with no entries returns an empty slice
	// and a nil error.
	ReadGroup(ctx context.Context, stream, group, consumer string, count int, block time.Duration) ([]Entry, error)

	// Ack marks a delivered entry as processed. Acknowledging an unknown or
	// already-acknowledged id is a no-op.
	Ack(ctx context.Context, stream, group, id string) error

	// Ping reports broker reachability for health checks.
	Ping(ctx context.Context) error

	Close() error
}

// Config captures the settings backends read during Build. The runtime
// config type implements it via getters so backend packages stay decoupled
// from the internal config package.
type Config interface {
	GetBroker() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetNATSURL() string
	GetConnectTimeout() time.Duration
	GetOpTimeout() time.Duration
	GetAckWait() time.Duration
}

// Logger is the minimal logging surface backends use. It matches the
// runtime ServiceLogger so the same logger can be passed straight through.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Error(msg string, err error, fields map[string]any)
}

// Builder constructs a backend client from configuration.
type Builder func(ctx context.Context, cfg Config, logger Logger) (Client, error)
