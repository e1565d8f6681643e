package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConfig struct {
	broker string
}

func (s stubConfig) GetBroker() string                { return s.broker }
func (s stubConfig) GetRedisAddr() string             { return "" }
func (s stubConfig) GetRedisPassword() string         { return "" }
func (s stubConfig) GetRedisDB() int                  { return 0 }
func (s stubConfig) GetNATSURL() string               { return "" }
func (s stubConfig) GetConnectTimeout() time.Duration { return time.Second }
func (s stubConfig) GetOpTimeout() time.Duration      { return time.Second }
func (s stubConfig) GetAckWait() time.Duration        { return time.Second }

type stubClient struct{}

func (stubClient) Append(ctx context.Context, stream string, fields map[string]string) (string, error) {
	return "1-0", nil
}
func (stubClient) EnsureGroup(ctx context.Context, stream, group string) error { return nil }
func (stubClient) ReadGroup(ctx context.Context, stream, group, consumer string, count int, block time.Duration) ([]Entry, error) {
	return nil, nil
}
func (stubClient) Ack(ctx context.Context, stream, group, id string) error { return nil }
func (stubClient) Ping(ctx context.Context) error                          { return nil }
func (stubClient) Close() error                                            { return nil }

func TestRegistryBuild(t *testing.T) {
	r := NewRegistry()
	r.Register("stub", func(ctx context.Context, cfg Config, logger Logger) (Client, error) {
		return stubClient{}, nil
	})

	client, err := r.Build(context.Background(), stubConfig{broker: "stub"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestRegistryBuildUnknownBroker(t *testing.T) {
	r := NewRegistry()
	_, err := r.Build(context.Background(), stubConfig{broker: "missing"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown broker")
}

func TestRegistryBuildNilConfig(t *testing.T) {
	r := NewRegistry()
	_, err := r.Build(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestRegistryHasAndNames(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Has("stub"))

	r.Register("stub", func(ctx context.Context, cfg Config, logger Logger) (Client, error) {
		return stubClient{}, nil
	})
	assert.True(t, r.Has("stub"))
	assert.Contains(t, r.Names(), "stub")
}

func TestRegistryCapabilities(t *testing.T) {
	r := NewRegistry()
	caps := Capabilities{Name: "stub", SupportsPendingRedelivery: true}
	r.RegisterWithCapabilities("stub", func(ctx context.Context, cfg Config, logger Logger) (Client, error) {
		return stubClient{}, nil
	}, caps)

	got := r.GetCapabilities("stub")
	assert.True(t, got.SupportsAtLeastOnce())

	unknown := r.GetCapabilities("nope")
	assert.Equal(t, "nope", unknown.Name)
	assert.False(t, unknown.SupportsAtLeastOnce())
}

func TestUnavailableError(t *testing.T) {
	inner := errors.New("connection refused")
	err := &UnavailableError{Op: "append", Stream: "orders", Err: inner}

	assert.Contains(t, err.Error(), "append")
	assert.Contains(t, err.Error(), "orders")
	assert.ErrorIs(t, err, inner)
	assert.True(t, IsUnavailable(err))
	assert.False(t, IsUnavailable(inner))
}

func TestEntryData(t *testing.T) {
	e := Entry{ID: "1-0", Fields: map[string]string{FieldData: "payload"}}
	assert.Equal(t, "payload", e.Data())

	empty := Entry{ID: "2-0"}
	assert.Empty(t, empty.Data())
}
