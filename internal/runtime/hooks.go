package runtime

import (
	"context"
	"time"

	"github.com/drblury/streamflow/internal/runtime/correlation"
	handlerpkg "github.com/drblury/streamflow/internal/runtime/handlers"
	loggingpkg "github.com/drblury/streamflow/internal/runtime/logging"
)

// EntryContext provides information about an entry execution to hooks.
type EntryContext struct {
	// EntryID is the broker-assigned identifier of the entry.
	EntryID string
	// Kind is the event kind carried by the envelope.
	Kind string
	// CorrelationID is the correlation id active while the entry is handled.
	CorrelationID string
	// Context is the context the handler runs under.
	Context context.Context
	// StartedAt is when handling started.
	StartedAt time.Time
	// Duration is how long handling took (only set in OnEntryDone and OnEntryError).
	Duration time.Duration
}

// EntryHooks defines callbacks for entry lifecycle events.
// All hooks are optional - nil hooks are simply not called.
type EntryHooks struct {
	// OnEntryStart is called before the handler function is invoked.
	OnEntryStart func(ctx EntryContext)

	// OnEntryDone is called when a handler successfully completes.
	// Duration will be set to how long the handler took.
	OnEntryDone func(ctx EntryContext)

	// OnEntryError is called when a handler returns an error.
	// Duration will be set to how long the handler took before failing.
	OnEntryError func(ctx EntryContext, err error)
}

// Merge combines two EntryHooks, creating a new EntryHooks that calls both.
// The hooks from 'other' are called after the hooks from 'h'.
func (h EntryHooks) Merge(other EntryHooks) EntryHooks {
	return EntryHooks{
		OnEntryStart: chainStartHooks(h.OnEntryStart, other.OnEntryStart),
		OnEntryDone:  chainDoneHooks(h.OnEntryDone, other.OnEntryDone),
		OnEntryError: chainErrorHooks(h.OnEntryError, other.OnEntryError),
	}
}

func chainStartHooks(a, b func(EntryContext)) func(EntryContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx EntryContext) {
		a(ctx)
		b(ctx)
	}
}

func chainDoneHooks(a, b func(EntryContext)) func(EntryContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx EntryContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(EntryContext, error)) func(EntryContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx EntryContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

// EntryHooksMiddleware creates a middleware that invokes the provided hooks
// at appropriate points in the entry lifecycle.
func EntryHooksMiddleware(hooks EntryHooks) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "entry_hooks",
		Middleware: entryHooksMiddleware(hooks),
	}
}

func entryHooksMiddleware(hooks EntryHooks) handlerpkg.Middleware {
	return func(h handlerpkg.HandlerFunc) handlerpkg.HandlerFunc {
		return func(ctx context.Context, delivery handlerpkg.Delivery) error {
			startTime := time.Now()

			entryCtx := EntryContext{
				EntryID:   delivery.EntryID,
				Kind:      delivery.Envelope.Kind,
				Context:   ctx,
				StartedAt: startTime,
			}
			if id, ok := correlation.ID(ctx); ok {
				entryCtx.CorrelationID = id
			} else {
				entryCtx.CorrelationID = delivery.Envelope.CorrelationID
			}

			if hooks.OnEntryStart != nil {
				hooks.OnEntryStart(entryCtx)
			}

			err := h(ctx, delivery)

			entryCtx.Duration = time.Since(startTime)

			if err != nil {
				if hooks.OnEntryError != nil {
					hooks.OnEntryError(entryCtx, err)
				}
			} else {
				if hooks.OnEntryDone != nil {
					hooks.OnEntryDone(entryCtx)
				}
			}

			return err
		}
	}
}

// LoggingHooks returns pre-built hooks that log entry lifecycle events.
func LoggingHooks(logger loggingpkg.ServiceLogger) EntryHooks {
	return EntryHooks{
		OnEntryStart: func(ctx EntryContext) {
			logger.Info("Entry started", loggingpkg.LogFields{
				"entry_id":       ctx.EntryID,
				"event_kind":     ctx.Kind,
				"correlation_id": ctx.CorrelationID,
			})
		},
		OnEntryDone: func(ctx EntryContext) {
			logger.Info("Entry completed", loggingpkg.LogFields{
				"entry_id":       ctx.EntryID,
				"event_kind":     ctx.Kind,
				"correlation_id": ctx.CorrelationID,
				"duration_ms":    ctx.Duration.Milliseconds(),
			})
		},
		OnEntryError: func(ctx EntryContext, err error) {
			logger.Error("Entry failed", err, loggingpkg.LogFields{
				"entry_id":       ctx.EntryID,
				"event_kind":     ctx.Kind,
				"correlation_id": ctx.CorrelationID,
				"duration_ms":    ctx.Duration.Milliseconds(),
			})
		},
	}
}

// MetricsHooks returns pre-built hooks that record entry metrics.
func MetricsHooks(onStart, onDone, onError func(kind string)) EntryHooks {
	return EntryHooks{
		OnEntryStart: func(ctx EntryContext) {
			if onStart != nil {
				onStart(ctx.Kind)
			}
		},
		OnEntryDone: func(ctx EntryContext) {
			if onDone != nil {
				onDone(ctx.Kind)
			}
		},
		OnEntryError: func(ctx EntryContext, err error) {
			if onError != nil {
				onError(ctx.Kind)
			}
		},
	}
}

// AlertingHooks returns pre-built hooks that trigger alerts on entry errors.
func AlertingHooks(alertFunc func(ctx EntryContext, err error)) EntryHooks {
	return EntryHooks{
		OnEntryError: alertFunc,
	}
}
