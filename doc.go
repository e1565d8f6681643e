// Package streamflow is a small event-propagation layer for services that
// publish domain events onto shared append-only streams and consume them
// through competing-consumer groups with explicit acknowledgement. It wires
// broker clients (Redis Streams, NATS JetStream, or an in-process broker),
// an envelope codec, correlation-id propagation, and an in-memory resilience
// ledger tracking publish and consume outcomes.
//
// Service hosts the consumer loops and exposes typed helpers:
// RegisterJSONHandler takes care of envelope decoding and dispatch by event
// kind, while Service.Publish lets HTTP/RPC handlers emit events without
// touching low-level broker APIs. A minimal setup therefore involves filling
// Config, creating a Service, registering handlers, and calling Start; see
// examples/orders for a copy/paste quick start snippet.
//
// # Brokers
//
// Streamflow supports 3 broker backends out of the box:
//   - memory: In-process streams with full group semantics for testing
//   - redis: Redis Streams consumer groups (XADD/XREADGROUP/XACK)
//   - nats-jetstream: JetStream streams with durable pull consumers
//
// Delivery is at-least-once: an entry stays pending until acknowledged, and
// acknowledgement happens only after the handler succeeds. Handlers must
// therefore tolerate duplicate delivery of the same entry.
//
// # Middleware
//
// The default middleware chain around handler execution includes structured
// entry logging, OpenTelemetry tracing, Prometheus counters, and panic
// recovery. Custom middleware can be added via ServiceDependencies.
//
// # Entry Hooks
//
// EntryHooksMiddleware provides OnEntryStart, OnEntryDone, and OnEntryError
// callbacks for custom logging, metrics collection, and alerting around
// handler execution.
//
// Failures never stop a consumer loop: broker outages back off and re-poll,
// handler errors leave the entry pending for redelivery, and malformed or
// unrecognized entries are acknowledged and skipped. Every outcome is
// recorded in the resilience ledger, queryable via Service.Snapshot or the
// optional /resilience endpoint.
package streamflow
