package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/streamflow/broker"
	"github.com/drblury/streamflow/broker/memory"
	"github.com/drblury/streamflow/internal/runtime/correlation"
	"github.com/drblury/streamflow/internal/runtime/envelope"
	errspkg "github.com/drblury/streamflow/internal/runtime/errors"
	ledgerpkg "github.com/drblury/streamflow/internal/runtime/ledger"
	loggingpkg "github.com/drblury/streamflow/internal/runtime/logging"
)

// failingClient simulates an unreachable broker.
type failingClient struct {
	err error
}

func (f *failingClient) Append(ctx context.Context, stream string, fields map[string]string) (string, error) {
	return "", f.err
}

func (f *failingClient) EnsureGroup(ctx context.Context, stream, group string) error { return f.err }

func (f *failingClient) ReadGroup(ctx context.Context, stream, group, consumer string, count int, block time.Duration) ([]broker.Entry, error) {
	return nil, f.err
}

func (f *failingClient) Ack(ctx context.Context, stream, group, id string) error { return f.err }
func (f *failingClient) Ping(ctx context.Context) error                          { return f.err }
func (f *failingClient) Close() error                                            { return nil }

func TestProducerPublish(t *testing.T) {
	b := memory.New(memory.Config{AckWait: time.Minute})
	ldg := ledgerpkg.New("publish")
	p, err := NewProducer(b, ldg, loggingpkg.Nop())
	require.NoError(t, err)

	ctx := correlation.WithID(context.Background(), "corr-1")
	require.NoError(t, p.Publish(ctx, "orders", "OrderPaid", &orderPaidEvent{OrderID: "ord-1"}))

	snap := ldg.Snapshot()
	assert.Equal(t, uint64(1), snap.SuccessCount)
	require.Len(t, snap.Recent, 1)
	assert.Equal(t, "corr-1", snap.Recent[0].CorrelationID)

	assert.Equal(t, 1, b.Len("orders"))
}

func TestProducerPublishEnvelopeContents(t *testing.T) {
	b := memory.New(memory.Config{AckWait: time.Minute})
	p, err := NewProducer(b, ledgerpkg.New("publish"), loggingpkg.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.EnsureGroup(ctx, "orders", "audit"))

	pubCtx := correlation.WithID(ctx, "corr-9")
	require.NoError(t, p.Publish(pubCtx, "orders", "OrderPaid", &orderPaidEvent{OrderID: "ord-9"}))

	entries, err := b.ReadGroup(ctx, "orders", "audit", "a1", 1, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	env, err := envelope.Decode([]byte(entries[0].Data()))
	require.NoError(t, err)
	assert.Equal(t, "OrderPaid", env.Kind)
	assert.Equal(t, "corr-9", env.CorrelationID)
}

func TestProducerPublishWithoutCorrelationID(t *testing.T) {
	b := memory.New(memory.Config{AckWait: time.Minute})
	p, err := NewProducer(b, ledgerpkg.New("publish"), loggingpkg.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.EnsureGroup(ctx, "orders", "audit"))
	require.NoError(t, p.Publish(ctx, "orders", "OrderPaid", &orderPaidEvent{OrderID: "ord-1"}))

	entries, err := b.ReadGroup(ctx, "orders", "audit", "a1", 1, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	env, err := envelope.Decode([]byte(entries[0].Data()))
	require.NoError(t, err)
	assert.Empty(t, env.CorrelationID)
}

func TestProducerSerializationFailureDropsEvent(t *testing.T) {
	b := memory.New(memory.Config{})
	ldg := ledgerpkg.New("publish")
	p, err := NewProducer(b, ldg, loggingpkg.Nop())
	require.NoError(t, err)

	err = p.Publish(context.Background(), "orders", "OrderPaid", []int{1, 2, 3})
	require.Error(t, err)
	assert.True(t, errspkg.IsSerialization(err))

	snap := ldg.Snapshot()
	assert.Equal(t, uint64(1), snap.FailureCount)
	assert.Equal(t, 0, b.Len("orders"), "nothing valid to append")
}

func TestProducerBrokerFailureIsRecordedAndReturned(t *testing.T) {
	boom := &broker.UnavailableError{Op: "append", Stream: "orders", Err: errors.New("connection refused")}
	ldg := ledgerpkg.New("publish")
	p, err := NewProducer(&failingClient{err: boom}, ldg, loggingpkg.Nop())
	require.NoError(t, err)

	err = p.Publish(context.Background(), "orders", "OrderPaid", &orderPaidEvent{OrderID: "ord-1"})
	require.Error(t, err)
	assert.True(t, broker.IsUnavailable(err))

	snap := ldg.Snapshot()
	assert.Equal(t, uint64(1), snap.FailureCount)
	assert.Equal(t, uint64(1), snap.ConsecutiveFailures)
}

func TestProducerValidation(t *testing.T) {
	b := memory.New(memory.Config{})
	p, err := NewProducer(b, ledgerpkg.New("publish"), loggingpkg.Nop())
	require.NoError(t, err)

	assert.ErrorIs(t, p.Publish(context.Background(), "", "OrderPaid", nil), errspkg.ErrStreamRequired)
	assert.ErrorIs(t, p.Publish(context.Background(), "orders", "", nil), errspkg.ErrEventKindRequired)

	_, err = NewProducer(nil, ledgerpkg.New("publish"), loggingpkg.Nop())
	assert.ErrorIs(t, err, errspkg.ErrClientRequired)
}
