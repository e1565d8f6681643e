package handlers

import (
	"context"
	"fmt"
	"reflect"

	errspkg "github.com/drblury/streamflow/internal/runtime/errors"
	"github.com/drblury/streamflow/internal/runtime/jsoncodec"
)

// JSONHandler processes the typed view of an envelope payload. T must be a
// pointer type; each invocation receives a freshly allocated value decoded
// from the envelope JSON.
type JSONHandler[T any] func(ctx context.Context, event T) error

// RegisterJSON binds a typed JSON handler to an event kind. The reserved
// envelope keys are visible to T if it declares matching fields; unknown
// fields are ignored.
func RegisterJSON[T any](r *Registry, kind string, handler JSONHandler[T]) error {
	if handler == nil {
		return errspkg.ErrHandlerRequired
	}

	prototypeFactory, err := jsonPrototypeFactory[T]()
	if err != nil {
		return err
	}

	return r.Register(kind, func(ctx context.Context, delivery Delivery) error {
		typed := prototypeFactory()
		if err := jsoncodec.Unmarshal(delivery.Envelope.Payload, typed); err != nil {
			return fmt.Errorf("failed to unmarshal JSON payload: %w", err)
		}
		return handler(ctx, typed)
	})
}

func jsonPrototypeFactory[T any]() (func() T, error) {
	var zero T
	typ := reflect.TypeOf(zero)
	if typ == nil {
		return nil, errspkg.ErrPayloadRequired
	}
	if typ.Kind() != reflect.Ptr {
		return nil, errspkg.ErrPayloadPointer
	}
	elem := typ.Elem()
	return func() T {
		clone := reflect.New(elem).Interface()
		return clone.(T)
	}, nil
}
