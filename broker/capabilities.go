package broker

// Capabilities describes the features supported by a broker backend.
// Use this to introspect what delivery guarantees are available at runtime.
type Capabilities struct {
	// Name is the human-readable name of the backend.
	Name string

	// SupportsBlockingRead indicates ReadGroup blocks server-side for new
	// entries. When false, the consumer loop degrades to pure polling.
	SupportsBlockingRead bool

	// SupportsPendingRedelivery indicates unacknowledged entries become
	// redeliverable after the ack-wait window without application help.
	SupportsPendingRedelivery bool

	// SupportsOrdering indicates entries within a stream are delivered in
	// append order.
	SupportsOrdering bool

	// Durable indicates entries survive a broker restart.
	Durable bool

	// MaxEntrySize is the maximum entry size in bytes (0 = unlimited/unknown).
	MaxEntrySize int64
}

// SupportsAtLeastOnce reports whether the backend can honor the pipeline's
// at-least-once contract without application-level recovery.
func (c Capabilities) SupportsAtLeastOnce() bool {
	return c.SupportsPendingRedelivery
}

// Predefined capability sets for the built-in backends.
var (
	// MemoryCapabilities for the in-process broker.
	MemoryCapabilities = Capabilities{
		Name:                      "memory",
		SupportsBlockingRead:      true,
		SupportsPendingRedelivery: true,
		SupportsOrdering:          true,
		Durable:                   false,
	}

	// RedisStreamCapabilities for the Redis Streams backend.
	RedisStreamCapabilities = Capabilities{
		Name:                      "redis",
		SupportsBlockingRead:      true,
		SupportsPendingRedelivery: true,
		SupportsOrdering:          true,
		Durable:                   true,
	}

	// JetStreamCapabilities for the NATS JetStream backend.
	JetStreamCapabilities = Capabilities{
		Name:                      "nats-jetstream",
		SupportsBlockingRead:      true,
		SupportsPendingRedelivery: true,
		SupportsOrdering:          true,
		Durable:                   true,
		MaxEntrySize:              1048576, // Default 1MB
	}
)

// GetCapabilities returns the capabilities for a backend by name. Uses the
// default registry to look up capabilities registered by each backend
// package. Returns a zero Capabilities struct if the backend is unknown.
func GetCapabilities(name string) Capabilities {
	return DefaultRegistry.GetCapabilities(name)
}
