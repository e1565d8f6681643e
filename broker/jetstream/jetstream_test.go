package jetstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, DefaultAckWait, cfg.AckWait)
	assert.Equal(t, 1, cfg.Replicas)
	assert.Equal(t, 0, cfg.MaxDeliver, "redelivery stays uncapped by default")

	explicit := Config{ConnectTimeout: time.Second, AckWait: time.Minute, Replicas: 3}.withDefaults()
	assert.Equal(t, time.Second, explicit.ConnectTimeout)
	assert.Equal(t, time.Minute, explicit.AckWait)
	assert.Equal(t, 3, explicit.Replicas)
}

func TestNamingHelpers(t *testing.T) {
	assert.Equal(t, "ORDERS", streamNameFor("orders"))
	assert.Equal(t, "ORDER_EVENTS", streamNameFor("order.events"))
	assert.Equal(t, "streamflow.orders", subjectFor("orders"))
	assert.Equal(t, "streamflow.order_events", subjectFor("order.events"))
	assert.Equal(t, "billing_group", durableFor("billing_group"))
	assert.Equal(t, "billing_group", durableFor("billing group"))
}

func TestFlightKey(t *testing.T) {
	assert.Equal(t, "orders/billing/42", flightKey("orders", "billing", "42"))
}
