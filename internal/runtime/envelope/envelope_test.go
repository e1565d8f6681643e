package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/streamflow/internal/runtime/errors"
	"github.com/drblury/streamflow/internal/runtime/jsoncodec"
)

type orderPaid struct {
	OrderID string  `json:"order_id"`
	Amount  float64 `json:"amount"`
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	data, err := Encode("OrderPaid", "corr-123", &orderPaid{OrderID: "ord-1", Amount: 9.5})
	require.NoError(t, err)

	env, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "OrderPaid", env.Kind)
	assert.Equal(t, "corr-123", env.CorrelationID)

	var payload orderPaid
	require.NoError(t, jsoncodec.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "ord-1", payload.OrderID)
	assert.Equal(t, 9.5, payload.Amount)
}

func TestEncodeFlattensPayloadFields(t *testing.T) {
	data, err := Encode("OrderPaid", "corr-123", &orderPaid{OrderID: "ord-1"})
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, jsoncodec.Unmarshal(data, &flat))
	assert.Equal(t, "OrderPaid", flat[KeyEventKind])
	assert.Equal(t, "corr-123", flat[KeyCorrelationID])
	assert.Equal(t, "ord-1", flat["order_id"], "payload fields live at the top level")
}

func TestEncodeWithoutCorrelationID(t *testing.T) {
	data, err := Encode("OrderPaid", "", &orderPaid{OrderID: "ord-1"})
	require.NoError(t, err)

	env, err := Decode(data)
	require.NoError(t, err)
	assert.Empty(t, env.CorrelationID)
}

func TestEncodeNilPayload(t *testing.T) {
	data, err := Encode("Heartbeat", "corr-1", nil)
	require.NoError(t, err)

	env, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "Heartbeat", env.Kind)
}

func TestEncodeRequiresKind(t *testing.T) {
	_, err := Encode("", "corr-1", &orderPaid{})
	assert.ErrorIs(t, err, errspkg.ErrEventKindRequired)
}

func TestEncodeRejectsNonObjectPayload(t *testing.T) {
	_, err := Encode("OrderPaid", "corr-1", []string{"not", "an", "object"})
	assert.True(t, errspkg.IsSerialization(err))

	_, err = Encode("OrderPaid", "corr-1", 42)
	assert.True(t, errspkg.IsSerialization(err))
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string][]byte{
		"empty":              nil,
		"not json":           []byte("{{{"),
		"missing event kind": []byte(`{"order_id":"ord-1"}`),
		"blank event kind":   []byte(`{"event_kind":""}`),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(raw)
			assert.True(t, errspkg.IsMalformedEntry(err))
		})
	}
}

func TestDecodeNullCorrelationID(t *testing.T) {
	env, err := Decode([]byte(`{"event_kind":"OrderPaid","correlation_id":null}`))
	require.NoError(t, err)
	assert.Empty(t, env.CorrelationID)
}
