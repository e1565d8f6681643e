// Package correlation carries the per-unit-of-work correlation identifier.
// The carrier is the context tree itself: setting the id derives a child
// context for the unit of work, and release is guaranteed because the id
// never outlives that context, even on error paths. Ids never leak across
// concurrent units.
package correlation

import (
	"context"

	"github.com/drblury/streamflow/internal/runtime/ids"
)

// DefaultHeader is the HTTP header carrying inbound correlation ids.
const DefaultHeader = "x-correlation-id"

type contextKey struct{}

// WithID returns a context carrying the correlation id. An empty id returns
// the context unchanged.
func WithID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, id)
}

// ID returns the correlation id carried by the context, if any.
func ID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}

// Ensure returns a context that carries a correlation id, minting a new one
// when the context has none.
func Ensure(ctx context.Context) (context.Context, string) {
	if id, ok := ID(ctx); ok {
		return ctx, id
	}
	id := ids.NewCorrelationID()
	return WithID(ctx, id), id
}
