// Package ids mints the identifiers the pipeline stamps onto entries and
// causal chains.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// generator serializes access to a monotonic entropy source so ids minted
// within the same millisecond still sort in mint order.
type generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

var defaultGenerator = &generator{entropy: ulid.Monotonic(rand.Reader, 0)}

func (g *generator) next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
func CreateULID() string {
	return defaultGenerator.next()
}

// NewCorrelationID mints a correlation identifier for a new causal chain.
// ULIDs keep ids sortable by trigger time, which makes tracing across
// services easier to eyeball than random UUIDs.
func NewCorrelationID() string {
	return defaultGenerator.next()
}
