package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/streamflow/internal/runtime/envelope"
	errspkg "github.com/drblury/streamflow/internal/runtime/errors"
)

func noopHandler(ctx context.Context, delivery Delivery) error { return nil }

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register("OrderPaid", noopHandler))

	handler, ok := r.Lookup("OrderPaid")
	assert.True(t, ok)
	assert.NotNil(t, handler)

	_, ok = r.Lookup("Unknown")
	assert.False(t, ok)
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()

	assert.ErrorIs(t, r.Register("", noopHandler), errspkg.ErrEventKindRequired)
	assert.ErrorIs(t, r.Register("OrderPaid", nil), errspkg.ErrHandlerRequired)
}

func TestRegisterDuplicateKind(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register("OrderPaid", noopHandler))
	err := r.Register("OrderPaid", noopHandler)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestKindsSorted(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("ShipmentSent", noopHandler))
	require.NoError(t, r.Register("OrderPaid", noopHandler))

	assert.Equal(t, []string{"OrderPaid", "ShipmentSent"}, r.Kinds())
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(h HandlerFunc) HandlerFunc {
			return func(ctx context.Context, delivery Delivery) error {
				order = append(order, name)
				return h(ctx, delivery)
			}
		}
	}

	chained := Chain(mw("outer"), mw("middle"), mw("inner"))
	handler := chained(func(ctx context.Context, delivery Delivery) error {
		order = append(order, "handler")
		return nil
	})

	err := handler(context.Background(), Delivery{Envelope: &envelope.Envelope{Kind: "OrderPaid"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "middle", "inner", "handler"}, order)
}

func TestChainPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	chained := Chain(func(h HandlerFunc) HandlerFunc { return h })
	handler := chained(func(ctx context.Context, delivery Delivery) error { return boom })

	assert.ErrorIs(t, handler(context.Background(), Delivery{}), boom)
}
