// Package envelope implements the wire format carried in an entry's data
// field: flat UTF-8 JSON holding the event kind, an optional correlation
// id, and the kind-specific payload fields at the top level.
package envelope

import (
	sterrors "errors"
	"fmt"

	errspkg "github.com/drblury/streamflow/internal/runtime/errors"
	"github.com/drblury/streamflow/internal/runtime/jsoncodec"
)

// Reserved envelope keys. Payloads may not redefine them.
const (
	KeyEventKind     = "event_kind"
	KeyCorrelationID = "correlation_id"
)

// Envelope is the decoded logical message. Payload holds the full original
// JSON object so typed handlers can unmarshal their own view of it.
type Envelope struct {
	Kind          string
	CorrelationID string
	Payload       []byte
}

// Encode flattens the payload into a JSON object and injects the reserved
// event-kind and correlation-id keys. Payloads that do not encode to a JSON
// object cannot be carried in a flat entry field and yield a
// SerializationError.
func Encode(kind, correlationID string, payload any) ([]byte, error) {
	if kind == "" {
		return nil, errspkg.ErrEventKindRequired
	}

	fields := map[string]any{}
	if payload != nil {
		raw, err := jsoncodec.Marshal(payload)
		if err != nil {
			return nil, &errspkg.SerializationError{Kind: kind, Err: err}
		}
		if err := jsoncodec.Unmarshal(raw, &fields); err != nil {
			return nil, &errspkg.SerializationError{Kind: kind, Err: fmt.Errorf("payload is not a JSON object: %w", err)}
		}
	}

	fields[KeyEventKind] = kind
	if correlationID != "" {
		fields[KeyCorrelationID] = correlationID
	} else {
		fields[KeyCorrelationID] = nil
	}

	data, err := jsoncodec.Marshal(fields)
	if err != nil {
		return nil, &errspkg.SerializationError{Kind: kind, Err: err}
	}
	return data, nil
}

// Decode parses the data field of an entry. Undecodable JSON or a missing
// event kind yields a MalformedEntryError; such entries are acknowledged
// and discarded by the consumer without ledger mutation.
func Decode(raw []byte) (*Envelope, error) {
	if len(raw) == 0 {
		return nil, &errspkg.MalformedEntryError{Err: sterrors.New("empty data field")}
	}

	var head struct {
		EventKind     string  `json:"event_kind"`
		CorrelationID *string `json:"correlation_id"`
	}
	if err := jsoncodec.Unmarshal(raw, &head); err != nil {
		return nil, &errspkg.MalformedEntryError{Err: err}
	}
	if head.EventKind == "" {
		return nil, &errspkg.MalformedEntryError{Err: sterrors.New("missing event_kind")}
	}

	env := &Envelope{Kind: head.EventKind, Payload: raw}
	if head.CorrelationID != nil {
		env.CorrelationID = *head.CorrelationID
	}
	return env, nil
}
