// Package ledger implements the in-memory resilience ledger: counters and a
// bounded window of recent publish/consume outcomes. The ledger is volatile
// by design; it describes the running process, not history across restarts.
package ledger

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultCapacity is the size of the recent-events window.
const DefaultCapacity = 100

// Event is one recorded outcome in the recent-events window.
type Event struct {
	Timestamp     time.Time `json:"ts"`
	Kind          string    `json:"kind"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// ErrorRecord captures the most recent failure.
type ErrorRecord struct {
	Timestamp time.Time `json:"ts"`
	Message   string    `json:"error"`
}

// Snapshot is a read-only copy of the ledger state. Recent is ordered
// oldest-first and never exceeds the configured capacity.
type Snapshot struct {
	Op                  string       `json:"op"`
	SuccessCount        uint64       `json:"success_count"`
	FailureCount        uint64       `json:"failure_count"`
	ConsecutiveFailures uint64       `json:"consecutive_failures"`
	LastSuccess         *time.Time   `json:"last_success,omitempty"`
	LastError           *ErrorRecord `json:"last_error,omitempty"`
	Recent              []Event      `json:"recent"`
}

// Ledger records success/failure outcomes for one operation class
// ("publish", "consume"). All methods are safe for concurrent use; every
// mutation holds the single lock for O(1) work.
type Ledger struct {
	mu sync.Mutex

	op       string
	capacity int

	successCount        uint64
	failureCount        uint64
	consecutiveFailures uint64
	lastSuccess         time.Time
	lastError           *ErrorRecord

	ring   []Event
	next   int
	filled int

	successCounter prometheus.Counter
	failureCounter prometheus.Counter
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithCapacity sets the recent-events window size.
func WithCapacity(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.capacity = n
		}
	}
}

// WithCounters attaches Prometheus counters incremented alongside the
// ledger's own counts.
func WithCounters(success, failure prometheus.Counter) Option {
	return func(l *Ledger) {
		l.successCounter = success
		l.failureCounter = failure
	}
}

// New constructs a Ledger for the named operation class.
func New(op string, opts ...Option) *Ledger {
	l := &Ledger{op: op, capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(l)
	}
	l.ring = make([]Event, l.capacity)
	return l
}

// RecordSuccess counts a successful operation and resets the consecutive
// failure streak.
func (l *Ledger) RecordSuccess(correlationID string) {
	now := time.Now().UTC()

	l.mu.Lock()
	l.successCount++
	l.consecutiveFailures = 0
	l.lastSuccess = now
	l.pushLocked(Event{
		Timestamp:     now,
		Kind:          l.op + "_success",
		CorrelationID: correlationID,
	})
	l.mu.Unlock()

	if l.successCounter != nil {
		l.successCounter.Inc()
	}
}

// RecordFailure counts a failed operation. The consecutive failure count is
// the basis for external alerting.
func (l *Ledger) RecordFailure(err error, correlationID string) {
	now := time.Now().UTC()
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	l.mu.Lock()
	l.failureCount++
	l.consecutiveFailures++
	l.lastError = &ErrorRecord{Timestamp: now, Message: msg}
	l.pushLocked(Event{
		Timestamp:     now,
		Kind:          l.op + "_failure",
		CorrelationID: correlationID,
		Error:         msg,
	})
	l.mu.Unlock()

	if l.failureCounter != nil {
		l.failureCounter.Inc()
	}
}

// Snapshot returns a copy of the ledger state without mutating it.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := Snapshot{
		Op:                  l.op,
		SuccessCount:        l.successCount,
		FailureCount:        l.failureCount,
		ConsecutiveFailures: l.consecutiveFailures,
		Recent:              make([]Event, 0, l.filled),
	}
	if !l.lastSuccess.IsZero() {
		ts := l.lastSuccess
		snap.LastSuccess = &ts
	}
	if l.lastError != nil {
		rec := *l.lastError
		snap.LastError = &rec
	}
	for i := 0; i < l.filled; i++ {
		idx := l.next - l.filled + i
		if idx < 0 {
			idx += len(l.ring)
		}
		snap.Recent = append(snap.Recent, l.ring[idx])
	}
	return snap
}

// pushLocked inserts into the fixed ring, evicting the oldest event once
// the window is full.
func (l *Ledger) pushLocked(ev Event) {
	l.ring[l.next] = ev
	l.next = (l.next + 1) % len(l.ring)
	if l.filled < len(l.ring) {
		l.filled++
	}
}
