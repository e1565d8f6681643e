package runtime

import (
	"errors"

	handlerpkg "github.com/drblury/streamflow/internal/runtime/handlers"
)

// JSONHandlerRegistration binds one typed JSON handler to an event kind on a
// consumer group. T must be a pointer type.
type JSONHandlerRegistration[T any] struct {
	Stream   string
	Group    string
	Consumer string
	Kind     string
	Handler  handlerpkg.JSONHandler[T]
}

// RegisterJSONHandler registers a typed JSON handler on the consumer for the
// given stream/group/consumer triple, creating the consumer when it does not
// exist yet.
func RegisterJSONHandler[T any](svc *Service, cfg JSONHandlerRegistration[T]) error {
	if svc == nil {
		return errors.New("streamflow: service is required")
	}

	registry, err := svc.RegisterConsumer(ConsumerRegistration{
		Stream:   cfg.Stream,
		Group:    cfg.Group,
		Consumer: cfg.Consumer,
	})
	if err != nil {
		return err
	}

	return handlerpkg.RegisterJSON(registry, cfg.Kind, cfg.Handler)
}
