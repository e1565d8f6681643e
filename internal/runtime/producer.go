package runtime

import (
	"context"
	"fmt"

	"github.com/drblury/streamflow/broker"
	"github.com/drblury/streamflow/internal/runtime/correlation"
	"github.com/drblury/streamflow/internal/runtime/envelope"
	errspkg "github.com/drblury/streamflow/internal/runtime/errors"
	ledgerpkg "github.com/drblury/streamflow/internal/runtime/ledger"
	loggingpkg "github.com/drblury/streamflow/internal/runtime/logging"
)

// Producer appends event envelopes onto streams and records every outcome in
// the publish ledger.
//
// Publication is best effort: a failed append is recorded and reported to
// the caller, but the caller's own state change has already committed and
// must not be rolled back. Downstream absence of the event is what the
// ledger makes visible.
type Producer struct {
	client broker.Client
	ledger *ledgerpkg.Ledger
	logger loggingpkg.ServiceLogger
}

// NewProducer constructs a Producer. All collaborators are required.
func NewProducer(client broker.Client, ledger *ledgerpkg.Ledger, logger loggingpkg.ServiceLogger) (*Producer, error) {
	if client == nil {
		return nil, errspkg.ErrClientRequired
	}
	if ledger == nil {
		return nil, fmt.Errorf("streamflow: publish ledger is required")
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	return &Producer{client: client, ledger: ledger, logger: logger}, nil
}

// Publish encodes the payload into an envelope carrying the event kind and
// the context's correlation id, then appends it to the stream.
//
// A serialization failure drops the event: there is nothing valid to put on
// the wire and nothing to retry against. Both serialization and append
// failures are recorded before the error is returned.
func (p *Producer) Publish(ctx context.Context, stream, kind string, payload any) error {
	if stream == "" {
		return errspkg.ErrStreamRequired
	}
	if kind == "" {
		return errspkg.ErrEventKindRequired
	}

	correlationID, _ := correlation.ID(ctx)

	data, err := envelope.Encode(kind, correlationID, payload)
	if err != nil {
		p.ledger.RecordFailure(err, correlationID)
		p.logger.Error("Failed to encode event envelope", err, loggingpkg.LogFields{
			"stream":     stream,
			"event_kind": kind,
		})
		return err
	}

	id, err := p.client.Append(ctx, stream, map[string]string{broker.FieldData: string(data)})
	if err != nil {
		p.ledger.RecordFailure(err, correlationID)
		p.logger.Error("Failed to append event to stream", err, loggingpkg.LogFields{
			"stream":     stream,
			"event_kind": kind,
		})
		return fmt.Errorf("streamflow: publish to stream %s failed: %w", stream, err)
	}

	p.ledger.RecordSuccess(correlationID)
	p.logger.Debug("Published event", loggingpkg.LogFields{
		"stream":         stream,
		"event_kind":     kind,
		"entry_id":       id,
		"correlation_id": correlationID,
	})
	return nil
}
