package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/streamflow/internal/runtime/envelope"
	errspkg "github.com/drblury/streamflow/internal/runtime/errors"
)

type orderPaid struct {
	OrderID string  `json:"order_id"`
	Amount  float64 `json:"amount"`
}

func TestRegisterJSONDecodesPayload(t *testing.T) {
	r := NewRegistry()

	var got *orderPaid
	err := RegisterJSON(r, "OrderPaid", func(ctx context.Context, order *orderPaid) error {
		got = order
		return nil
	})
	require.NoError(t, err)

	data, err := envelope.Encode("OrderPaid", "corr-1", &orderPaid{OrderID: "ord-1", Amount: 12.5})
	require.NoError(t, err)
	env, err := envelope.Decode(data)
	require.NoError(t, err)

	handler, ok := r.Lookup("OrderPaid")
	require.True(t, ok)
	require.NoError(t, handler(context.Background(), Delivery{EntryID: "1-0", Envelope: env}))

	require.NotNil(t, got)
	assert.Equal(t, "ord-1", got.OrderID)
	assert.Equal(t, 12.5, got.Amount)
}

func TestRegisterJSONAllocatesFreshValuePerDelivery(t *testing.T) {
	r := NewRegistry()

	var seen []*orderPaid
	err := RegisterJSON(r, "OrderPaid", func(ctx context.Context, order *orderPaid) error {
		seen = append(seen, order)
		return nil
	})
	require.NoError(t, err)

	data, err := envelope.Encode("OrderPaid", "", &orderPaid{OrderID: "ord-1"})
	require.NoError(t, err)
	env, err := envelope.Decode(data)
	require.NoError(t, err)

	handler, _ := r.Lookup("OrderPaid")
	require.NoError(t, handler(context.Background(), Delivery{Envelope: env}))
	require.NoError(t, handler(context.Background(), Delivery{Envelope: env}))

	require.Len(t, seen, 2)
	assert.NotSame(t, seen[0], seen[1])
}

func TestRegisterJSONRequiresPointerType(t *testing.T) {
	r := NewRegistry()

	err := RegisterJSON(r, "OrderPaid", func(ctx context.Context, order orderPaid) error {
		return nil
	})
	assert.ErrorIs(t, err, errspkg.ErrPayloadPointer)
}

func TestRegisterJSONRequiresConcreteType(t *testing.T) {
	r := NewRegistry()

	err := RegisterJSON(r, "OrderPaid", func(ctx context.Context, payload any) error {
		return nil
	})
	assert.ErrorIs(t, err, errspkg.ErrPayloadRequired)
}

func TestRegisterJSONRequiresHandler(t *testing.T) {
	r := NewRegistry()

	var handler JSONHandler[*orderPaid]
	assert.ErrorIs(t, RegisterJSON(r, "OrderPaid", handler), errspkg.ErrHandlerRequired)
}

func TestRegisterJSONUndecodablePayload(t *testing.T) {
	r := NewRegistry()

	err := RegisterJSON(r, "OrderPaid", func(ctx context.Context, order *orderPaid) error {
		return nil
	})
	require.NoError(t, err)

	handler, _ := r.Lookup("OrderPaid")
	env := &envelope.Envelope{Kind: "OrderPaid", Payload: []byte(`{"order_id":42}`)}
	assert.Error(t, handler(context.Background(), Delivery{Envelope: env}))
}
