package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/streamflow/internal/runtime/correlation"
	handlerpkg "github.com/drblury/streamflow/internal/runtime/handlers"
)

func TestEntryHooks_OnEntryStart(t *testing.T) {
	var called bool
	var capturedCtx EntryContext

	hooks := EntryHooks{
		OnEntryStart: func(ctx EntryContext) {
			called = true
			capturedCtx = ctx
		},
	}

	mw := entryHooksMiddleware(hooks)
	handler := mw(func(ctx context.Context, delivery handlerpkg.Delivery) error {
		return nil
	})

	require.NoError(t, handler(context.Background(), testDelivery()))
	assert.True(t, called)
	assert.Equal(t, "1-0", capturedCtx.EntryID)
	assert.Equal(t, "OrderPaid", capturedCtx.Kind)
	assert.False(t, capturedCtx.StartedAt.IsZero())
}

func TestEntryHooks_OnEntryDone(t *testing.T) {
	var called bool
	var capturedCtx EntryContext

	hooks := EntryHooks{
		OnEntryDone: func(ctx EntryContext) {
			called = true
			capturedCtx = ctx
		},
	}

	mw := entryHooksMiddleware(hooks)
	handler := mw(func(ctx context.Context, delivery handlerpkg.Delivery) error {
		time.Sleep(10 * time.Millisecond)
		return nil
	})

	require.NoError(t, handler(context.Background(), testDelivery()))
	assert.True(t, called)
	assert.True(t, capturedCtx.Duration >= 10*time.Millisecond)
}

func TestEntryHooks_OnEntryError(t *testing.T) {
	var called bool
	var capturedErr error
	expectedErr := errors.New("handler error")

	hooks := EntryHooks{
		OnEntryError: func(ctx EntryContext, err error) {
			called = true
			capturedErr = err
		},
	}

	mw := entryHooksMiddleware(hooks)
	handler := mw(func(ctx context.Context, delivery handlerpkg.Delivery) error {
		return expectedErr
	})

	assert.Error(t, handler(context.Background(), testDelivery()))
	assert.True(t, called)
	assert.Equal(t, expectedErr, capturedErr)
}

func TestEntryHooksCorrelationIDFromContext(t *testing.T) {
	var capturedCtx EntryContext
	hooks := EntryHooks{
		OnEntryStart: func(ctx EntryContext) {
			capturedCtx = ctx
		},
	}

	mw := entryHooksMiddleware(hooks)
	handler := mw(func(ctx context.Context, delivery handlerpkg.Delivery) error {
		return nil
	})

	ctx := correlation.WithID(context.Background(), "corr-hooks")
	require.NoError(t, handler(ctx, testDelivery()))
	assert.Equal(t, "corr-hooks", capturedCtx.CorrelationID)
}

func TestEntryHooksMerge(t *testing.T) {
	var order []string

	first := EntryHooks{
		OnEntryStart: func(ctx EntryContext) { order = append(order, "first_start") },
		OnEntryDone:  func(ctx EntryContext) { order = append(order, "first_done") },
	}
	second := EntryHooks{
		OnEntryStart: func(ctx EntryContext) { order = append(order, "second_start") },
		OnEntryError: func(ctx EntryContext, err error) { order = append(order, "second_error") },
	}

	merged := first.Merge(second)

	mw := entryHooksMiddleware(merged)
	handler := mw(func(ctx context.Context, delivery handlerpkg.Delivery) error {
		return nil
	})

	require.NoError(t, handler(context.Background(), testDelivery()))
	assert.Equal(t, []string{"first_start", "second_start", "first_done"}, order)

	order = nil
	failing := mw(func(ctx context.Context, delivery handlerpkg.Delivery) error {
		return errors.New("boom")
	})
	assert.Error(t, failing(context.Background(), testDelivery()))
	assert.Equal(t, []string{"first_start", "second_start", "second_error"}, order)
}

func TestMetricsHooks(t *testing.T) {
	var started, completed, failed []string

	hooks := MetricsHooks(
		func(kind string) { started = append(started, kind) },
		func(kind string) { completed = append(completed, kind) },
		func(kind string) { failed = append(failed, kind) },
	)

	mw := entryHooksMiddleware(hooks)

	ok := mw(func(ctx context.Context, delivery handlerpkg.Delivery) error { return nil })
	require.NoError(t, ok(context.Background(), testDelivery()))

	bad := mw(func(ctx context.Context, delivery handlerpkg.Delivery) error { return errors.New("boom") })
	assert.Error(t, bad(context.Background(), testDelivery()))

	assert.Equal(t, []string{"OrderPaid", "OrderPaid"}, started)
	assert.Equal(t, []string{"OrderPaid"}, completed)
	assert.Equal(t, []string{"OrderPaid"}, failed)
}

func TestAlertingHooks(t *testing.T) {
	var alerted bool
	hooks := AlertingHooks(func(ctx EntryContext, err error) { alerted = true })

	mw := entryHooksMiddleware(hooks)
	handler := mw(func(ctx context.Context, delivery handlerpkg.Delivery) error {
		return errors.New("boom")
	})

	assert.Error(t, handler(context.Background(), testDelivery()))
	assert.True(t, alerted)
}
