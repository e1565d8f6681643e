// Package memory provides an in-process broker backend with full consumer
// group semantics: per-group cursors, pending entries, ack-wait based
// redelivery, and blocking reads. It backs local development and tests the
// same way a real broker backs production.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/drblury/streamflow/broker"
)

// BackendName is the name used to register this backend.
const BackendName = "memory"

func init() {
	broker.RegisterWithCapabilities(BackendName, Build, broker.MemoryCapabilities)
}

// Build creates a new in-process broker from the shared configuration.
func Build(_ context.Context, cfg broker.Config, _ broker.Logger) (broker.Client, error) {
	return New(Config{AckWait: cfg.GetAckWait()}), nil
}

// Config holds memory-backend specific configuration.
type Config struct {
	// AckWait is the visibility window after which an unacknowledged entry
	// becomes eligible for redelivery on a subsequent group read. Zero
	// makes unacknowledged entries redeliverable immediately, which is what
	// redelivery tests want.
	AckWait time.Duration
}

// Broker is an in-process implementation of broker.Client. Streams and
// groups are created lazily; group cursors start at the stream tail.
type Broker struct {
	mu      sync.Mutex
	streams map[string]*memStream
	ackWait time.Duration
	closed  bool
	notify  chan struct{}
}

type memStream struct {
	seq     int64
	entries []broker.Entry
	groups  map[string]*memGroup
}

type memGroup struct {
	cursor  int
	pending map[string]*pendingEntry
	order   []string
}

type pendingEntry struct {
	entry       broker.Entry
	consumer    string
	deliveredAt time.Time
	deliveries  int
}

// New creates an in-process broker.
func New(cfg Config) *Broker {
	return &Broker{
		streams: make(map[string]*memStream),
		ackWait: cfg.AckWait,
		notify:  make(chan struct{}),
	}
}

// Append adds an entry to the stream, creating the stream when absent.
// Entry ids are strictly increasing in append order.
func (b *Broker) Append(_ context.Context, stream string, fields map[string]string) (string, error) {
	if stream == "" {
		return "", &broker.UnavailableError{Op: "append", Err: errors.New("stream name is empty")}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return "", &broker.UnavailableError{Op: "append", Stream: stream, Err: errors.New("broker closed")}
	}

	st := b.getOrCreateStreamLocked(stream)
	st.seq++
	id := fmt.Sprintf("%d-0", st.seq)

	cloned := make(map[string]string, len(fields))
	for k, v := range fields {
		cloned[k] = v
	}
	st.entries = append(st.entries, broker.Entry{ID: id, Fields: cloned})

	b.broadcastLocked()
	return id, nil
}

// EnsureGroup creates the consumer group at the stream tail. Creating an
// existing group is a no-op.
func (b *Broker) EnsureGroup(_ context.Context, stream, group string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return &broker.UnavailableError{Op: "ensure_group", Stream: stream, Err: errors.New("broker closed")}
	}

	st := b.getOrCreateStreamLocked(stream)
	if _, ok := st.groups[group]; ok {
		return nil
	}
	st.groups[group] = &memGroup{
		cursor:  len(st.entries),
		pending: make(map[string]*pendingEntry),
	}
	return nil
}

// ReadGroup returns up to count undelivered entries for the group, blocking
// up to block when none are available. Unacknowledged entries past the
// ack-wait window are redelivered first, in original delivery order. A read
// on an unknown group creates it at the stream tail.
func (b *Broker) ReadGroup(ctx context.Context, stream, group, consumer string, count int, block time.Duration) ([]broker.Entry, error) {
	if count <= 0 {
		count = 1
	}

	deadline := time.Now().Add(block)
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return nil, &broker.UnavailableError{Op: "read_group", Stream: stream, Err: errors.New("broker closed")}
		}
		st := b.getOrCreateStreamLocked(stream)
		g, ok := st.groups[group]
		if !ok {
			g = &memGroup{cursor: len(st.entries), pending: make(map[string]*pendingEntry)}
			st.groups[group] = g
		}
		entries := b.takeLocked(st, g, consumer, count)
		notify := b.notify
		b.mu.Unlock()

		if len(entries) > 0 {
			return entries, nil
		}
		if block <= 0 {
			return nil, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-notify:
			timer.Stop()
		case <-timer.C:
			return nil, nil
		}
	}
}

func (b *Broker) takeLocked(st *memStream, g *memGroup, consumer string, count int) []broker.Entry {
	now := time.Now()
	var out []broker.Entry

	// Redeliver pending entries whose visibility window has elapsed, in the
	// order they were first delivered.
	for _, id := range g.order {
		if len(out) >= count {
			return out
		}
		p := g.pending[id]
		if now.Sub(p.deliveredAt) < b.ackWait {
			continue
		}
		p.deliveredAt = now
		p.consumer = consumer
		p.deliveries++
		out = append(out, p.entry)
	}

	for g.cursor < len(st.entries) && len(out) < count {
		entry := st.entries[g.cursor]
		g.cursor++
		g.pending[entry.ID] = &pendingEntry{
			entry:       entry,
			consumer:    consumer,
			deliveredAt: now,
			deliveries:  1,
		}
		g.order = append(g.order, entry.ID)
		out = append(out, entry)
	}
	return out
}

// Ack marks a delivered entry as processed. Unknown or already-acknowledged
// ids are a no-op.
func (b *Broker) Ack(_ context.Context, stream, group, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return &broker.UnavailableError{Op: "ack", Stream: stream, Err: errors.New("broker closed")}
	}

	st, ok := b.streams[stream]
	if !ok {
		return nil
	}
	g, ok := st.groups[group]
	if !ok {
		return nil
	}
	if _, ok := g.pending[id]; !ok {
		return nil
	}
	delete(g.pending, id)
	for i, pid := range g.order {
		if pid == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return nil
}

// Ping reports whether the broker is still open.
func (b *Broker) Ping(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return &broker.UnavailableError{Op: "ping", Err: errors.New("broker closed")}
	}
	return nil
}

// Close shuts the broker down and wakes all blocked readers.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.broadcastLocked()
	return nil
}

// PendingCount returns the number of delivered-but-unacknowledged entries
// for the group. Diagnostic helper.
func (b *Broker) PendingCount(stream, group string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.streams[stream]
	if !ok {
		return 0
	}
	g, ok := st.groups[group]
	if !ok {
		return 0
	}
	return len(g.pending)
}

// Len returns the number of entries appended to the stream.
func (b *Broker) Len(stream string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.streams[stream]
	if !ok {
		return 0
	}
	return len(st.entries)
}

func (b *Broker) getOrCreateStreamLocked(name string) *memStream {
	st, ok := b.streams[name]
	if !ok {
		st = &memStream{groups: make(map[string]*memGroup)}
		b.streams[name] = st
	}
	return st
}

// broadcastLocked wakes every blocked ReadGroup by replacing the shared
// notification channel.
func (b *Broker) broadcastLocked() {
	close(b.notify)
	b.notify = make(chan struct{})
}
