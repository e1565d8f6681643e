package runtime

import (
	"context"
	"time"

	"github.com/drblury/streamflow/broker"
	"github.com/drblury/streamflow/internal/runtime/correlation"
	"github.com/drblury/streamflow/internal/runtime/envelope"
	errspkg "github.com/drblury/streamflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/streamflow/internal/runtime/handlers"
	ledgerpkg "github.com/drblury/streamflow/internal/runtime/ledger"
	loggingpkg "github.com/drblury/streamflow/internal/runtime/logging"
)

// loopState is the explicit consumer loop state. Keeping the state machine
// visible makes the loop auditable: every transition below is deliberate.
type loopState int

const (
	// stateStarting ensures the consumer group exists before the first
	// read. Entered exactly once; a broker error here is logged and the
	// loop moves on to statePolling, where the error resurfaces.
	stateStarting loopState = iota
	// statePolling blocks on the broker waiting for undelivered entries.
	statePolling
	// stateProcessing dispatches a fetched batch entry by entry.
	stateProcessing
)

// ConsumerConfig wires one competing consumer onto a stream group.
type ConsumerConfig struct {
	Client   broker.Client
	Registry *handlerpkg.Registry
	Ledger   *ledgerpkg.Ledger
	Logger   loggingpkg.ServiceLogger

	Stream   string
	Group    string
	Consumer string

	// Chain wraps every dispatched handler. Optional.
	Chain handlerpkg.Middleware

	BlockDuration  time.Duration
	BatchSize      int
	IdlePause      time.Duration
	ErrorBackoff   time.Duration
	HandlerTimeout time.Duration
}

// Consumer reads a stream as a member of a consumer group and dispatches
// entries to registered handlers. Acknowledgement happens only after the
// handler succeeds, so delivery is at least once and handlers must tolerate
// duplicates.
type Consumer struct {
	client   broker.Client
	registry *handlerpkg.Registry
	ledger   *ledgerpkg.Ledger
	logger   loggingpkg.ServiceLogger

	stream   string
	group    string
	consumer string

	chain handlerpkg.Middleware

	blockDuration  time.Duration
	batchSize      int
	idlePause      time.Duration
	errorBackoff   time.Duration
	handlerTimeout time.Duration

	batch []broker.Entry
}

// NewConsumer validates the configuration and constructs a Consumer.
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if cfg.Client == nil {
		return nil, errspkg.ErrClientRequired
	}
	if cfg.Registry == nil {
		return nil, errspkg.ErrHandlerRequired
	}
	if cfg.Logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if cfg.Stream == "" {
		return nil, errspkg.ErrStreamRequired
	}
	if cfg.Group == "" {
		return nil, errspkg.ErrGroupRequired
	}
	if cfg.Consumer == "" {
		return nil, errspkg.ErrConsumerRequired
	}

	ldg := cfg.Ledger
	if ldg == nil {
		ldg = ledgerpkg.New("consume")
	}

	c := &Consumer{
		client:         cfg.Client,
		registry:       cfg.Registry,
		ledger:         ldg,
		logger:         cfg.Logger,
		stream:         cfg.Stream,
		group:          cfg.Group,
		consumer:       cfg.Consumer,
		chain:          cfg.Chain,
		blockDuration:  cfg.BlockDuration,
		batchSize:      cfg.BatchSize,
		idlePause:      cfg.IdlePause,
		errorBackoff:   cfg.ErrorBackoff,
		handlerTimeout: cfg.HandlerTimeout,
	}
	if c.blockDuration <= 0 {
		c.blockDuration = 2 * time.Second
	}
	if c.batchSize <= 0 {
		c.batchSize = 16
	}
	if c.idlePause <= 0 {
		c.idlePause = 200 * time.Millisecond
	}
	if c.errorBackoff <= 0 {
		c.errorBackoff = time.Second
	}
	if c.handlerTimeout <= 0 {
		c.handlerTimeout = 30 * time.Second
	}
	return c, nil
}

// Run drives the consumer loop until the context is cancelled. Cancellation
// is checked at the top of every iteration, so shutdown latency is bounded
// by one blocking read plus one handler invocation.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Starting consumer", loggingpkg.LogFields{
		"stream":   c.stream,
		"group":    c.group,
		"consumer": c.consumer,
	})

	state := stateStarting
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch state {
		case stateStarting:
			if err := c.client.EnsureGroup(ctx, c.stream, c.group); err != nil {
				// Polling surfaces the same broker error class, records
				// the failure, and backs off, so group creation does not
				// get its own retry loop.
				c.logger.Error("Failed to ensure consumer group", err, loggingpkg.LogFields{
					"stream": c.stream,
					"group":  c.group,
				})
			}
			state = statePolling

		case statePolling:
			entries, err := c.client.ReadGroup(ctx, c.stream, c.group, c.consumer, c.batchSize, c.blockDuration)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.ledger.RecordFailure(err, "")
				c.logger.Error("Failed to read from stream", err, loggingpkg.LogFields{
					"stream": c.stream,
					"group":  c.group,
				})
				if !sleep(ctx, c.errorBackoff) {
					return ctx.Err()
				}
				continue
			}
			if len(entries) == 0 {
				// Idle is not a failure; nothing is recorded.
				if !sleep(ctx, c.idlePause) {
					return ctx.Err()
				}
				continue
			}
			c.batch = entries
			state = stateProcessing

		case stateProcessing:
			for _, entry := range c.batch {
				if err := ctx.Err(); err != nil {
					c.batch = nil
					return err
				}
				c.processEntry(ctx, entry)
			}
			c.batch = nil
			state = statePolling
		}
	}
}

// processEntry dispatches one entry. Malformed entries and entries of
// unregistered kinds are acknowledged and dropped without touching the
// ledger; only attempted handler executions count as consume outcomes.
func (c *Consumer) processEntry(ctx context.Context, entry broker.Entry) {
	env, err := envelope.Decode([]byte(entry.Data()))
	if err != nil {
		c.logger.Error("Discarding malformed entry", err, loggingpkg.LogFields{
			"stream":   c.stream,
			"entry_id": entry.ID,
		})
		c.ack(ctx, entry.ID)
		return
	}

	handler, ok := c.registry.Lookup(env.Kind)
	if !ok {
		c.logger.Debug("Skipping entry of unregistered kind", loggingpkg.LogFields{
			"stream":     c.stream,
			"entry_id":   entry.ID,
			"event_kind": env.Kind,
		})
		c.ack(ctx, entry.ID)
		return
	}

	entryCtx := correlation.WithID(ctx, env.CorrelationID)
	entryCtx, cancel := context.WithTimeout(entryCtx, c.handlerTimeout)
	defer cancel()

	final := handler
	if c.chain != nil {
		final = c.chain(handler)
	}

	if err := final(entryCtx, handlerpkg.Delivery{EntryID: entry.ID, Envelope: env}); err != nil {
		// No ack: the broker redelivers the entry after its visibility
		// window and the handler's idempotency absorbs the replay.
		c.ledger.RecordFailure(&errspkg.HandlerError{
			Kind:    env.Kind,
			EntryID: entry.ID,
			Err:     err,
		}, env.CorrelationID)
		c.logger.Error("Handler failed, entry will be redelivered", err, loggingpkg.LogFields{
			"stream":         c.stream,
			"entry_id":       entry.ID,
			"event_kind":     env.Kind,
			"correlation_id": env.CorrelationID,
		})
		return
	}

	c.ack(ctx, entry.ID)
	c.ledger.RecordSuccess(env.CorrelationID)
}

// ack acknowledges an entry, logging failures. A failed ack means the entry
// is redelivered later; the handler already succeeded, so the duplicate is
// absorbed by idempotency rather than treated as a processing failure.
func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.Ack(ctx, c.stream, c.group, id); err != nil {
		c.logger.Error("Failed to acknowledge entry", err, loggingpkg.LogFields{
			"stream":   c.stream,
			"group":    c.group,
			"entry_id": id,
		})
	}
}

// sleep pauses for d or until the context is cancelled. Returns false when
// cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
