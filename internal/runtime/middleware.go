package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/drblury/streamflow/internal/runtime/correlation"
	errspkg "github.com/drblury/streamflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/streamflow/internal/runtime/handlers"
	loggingpkg "github.com/drblury/streamflow/internal/runtime/logging"
)

// MiddlewareBuilder constructs a handler middleware using the provided service instance.
type MiddlewareBuilder func(*Service) (handlerpkg.Middleware, error)

// MiddlewareRegistration captures how a middleware should be registered on a Service.
type MiddlewareRegistration struct {
	Name       string
	Middleware handlerpkg.Middleware
	Builder    MiddlewareBuilder
}

// DefaultMiddlewares returns the standard middleware chain used by the Service constructor.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		CorrelationIDMiddleware(),
		LogEntriesMiddleware(nil),
		TracerMiddleware(),
		MetricsMiddleware(),
		RecovererMiddleware(),
	}
}

// CorrelationIDMiddleware ensures each processed entry runs under a context
// that carries a correlation identifier, minting one when the envelope had
// none.
func CorrelationIDMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "correlation_id",
		Middleware: func(h handlerpkg.HandlerFunc) handlerpkg.HandlerFunc {
			return func(ctx context.Context, delivery handlerpkg.Delivery) error {
				ctx, _ = correlation.Ensure(ctx)
				return h(ctx, delivery)
			}
		},
	}
}

// LogEntriesMiddleware logs every handled entry with its kind and correlation id.
func LogEntriesMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_entries",
		Builder: func(s *Service) (handlerpkg.Middleware, error) {
			l := logger
			if l == nil {
				l = s.Logger
			}
			if l == nil {
				return nil, errors.New("log entries middleware requires a logger")
			}
			return logEntriesMiddleware(l), nil
		},
	}
}

func logEntriesMiddleware(logger loggingpkg.ServiceLogger) handlerpkg.Middleware {
	return func(h handlerpkg.HandlerFunc) handlerpkg.HandlerFunc {
		return func(ctx context.Context, delivery handlerpkg.Delivery) error {
			logger.Debug("Processing entry", loggingpkg.LogFields{
				"entry_id":       delivery.EntryID,
				"event_kind":     delivery.Envelope.Kind,
				"correlation_id": delivery.Envelope.CorrelationID,
			})
			return h(ctx, delivery)
		}
	}
}

// TracerMiddleware wraps handler execution in an OpenTelemetry span.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "tracer",
		Middleware: func(h handlerpkg.HandlerFunc) handlerpkg.HandlerFunc {
			return func(ctx context.Context, delivery handlerpkg.Delivery) error {
				tracer := otel.Tracer("streamflow-tracer")
				ctx, span := tracer.Start(ctx, "ProcessEntry")
				defer span.End()

				attrs := []attribute.KeyValue{
					attribute.String("entry.id", delivery.EntryID),
					attribute.String("event.kind", delivery.Envelope.Kind),
				}
				if id, ok := correlation.ID(ctx); ok {
					attrs = append(attrs, attribute.String("correlation.id", id))
				}
				span.SetAttributes(attrs...)
				return h(ctx, delivery)
			}
		},
	}
}

// MetricsMiddleware counts handled entries by event kind and outcome. It also
// exposes the Prometheus scrape endpoint when a metrics port is configured.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(s *Service) (handlerpkg.Middleware, error) {
			if !s.Conf.MetricsEnabled || s.metrics == nil {
				return nil, nil
			}

			if s.Conf.MetricsPort > 0 {
				s.RegisterHTTPHandler(s.Conf.MetricsPort, "/metrics", promhttp.Handler())
			}

			entries := s.metrics.entriesTotal
			return func(h handlerpkg.HandlerFunc) handlerpkg.HandlerFunc {
				return func(ctx context.Context, delivery handlerpkg.Delivery) error {
					err := h(ctx, delivery)
					outcome := "success"
					if err != nil {
						outcome = "failure"
					}
					entries.WithLabelValues(delivery.Envelope.Kind, outcome).Inc()
					return err
				}
			}, nil
		},
	}
}

// RecovererMiddleware converts handler panics into handler errors so the
// entry stays unacknowledged and is redelivered.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "recoverer",
		Middleware: func(h handlerpkg.HandlerFunc) handlerpkg.HandlerFunc {
			return func(ctx context.Context, delivery handlerpkg.Delivery) (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = &errspkg.HandlerError{
							Kind:    delivery.Envelope.Kind,
							EntryID: delivery.EntryID,
							Err:     fmt.Errorf("panic: %v", r),
						}
					}
				}()
				return h(ctx, delivery)
			}
		},
	}
}

// RegisterMiddleware appends the supplied middleware to the service chain.
// Middlewares run in registration order, the first registered outermost.
func (s *Service) RegisterMiddleware(cfg MiddlewareRegistration) error {
	var mw handlerpkg.Middleware
	switch {
	case cfg.Middleware != nil:
		mw = cfg.Middleware
	case cfg.Builder != nil:
		var err error
		mw, err = cfg.Builder(s)
		if err != nil {
			return err
		}
	default:
		return errors.New("middleware registration requires Middleware or Builder")
	}

	if mw == nil {
		return nil
	}

	s.middlewares = append(s.middlewares, mw)
	return nil
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("failed to register middleware %s: %w", name, err)
		}
	}
	return nil
}
