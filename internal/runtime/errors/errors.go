package errors

import sterrors "errors"

var (
	ErrConfigRequired    = sterrors.New("streamflow: config is required")
	ErrLoggerRequired    = sterrors.New("streamflow: logger is required")
	ErrClientRequired    = sterrors.New("streamflow: broker client is required")
	ErrStreamRequired    = sterrors.New("streamflow: stream name is required")
	ErrGroupRequired     = sterrors.New("streamflow: group name is required")
	ErrConsumerRequired  = sterrors.New("streamflow: consumer name is required")
	ErrEventKindRequired = sterrors.New("streamflow: event kind is required")
	ErrHandlerRequired   = sterrors.New("streamflow: handler function is required")
	ErrPayloadRequired   = sterrors.New("streamflow: event payload is required")
	ErrPayloadPointer    = sterrors.New("streamflow: event payload type must be a pointer")
)

// SerializationError wraps envelopes that cannot be encoded as flat string
// fields. On publish the event is dropped: the caller's transaction has
// already committed, so there is nothing to retry against.
type SerializationError struct {
	Kind string
	Err  error
}

func (e *SerializationError) Error() string {
	return "streamflow: cannot serialize envelope for kind " + e.Kind + ": " + e.Err.Error()
}

func (e *SerializationError) Unwrap() error { return e.Err }

// MalformedEntryError marks entries whose data field does not decode to an
// envelope with an event kind. Malformed entries are acknowledged and
// discarded without ledger mutation.
type MalformedEntryError struct {
	EntryID string
	Err     error
}

func (e *MalformedEntryError) Error() string {
	msg := "streamflow: malformed entry"
	if e.EntryID != "" {
		msg += " " + e.EntryID
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedEntryError) Unwrap() error { return e.Err }

// HandlerError wraps a business handler failure. The entry is left
// unacknowledged so the broker redelivers it.
type HandlerError struct {
	Kind    string
	EntryID string
	Err     error
}

func (e *HandlerError) Error() string {
	return "streamflow: handler for kind " + e.Kind + " failed on entry " + e.EntryID + ": " + e.Err.Error()
}

func (e *HandlerError) Unwrap() error { return e.Err }

// IsSerialization reports whether err is a SerializationError.
func IsSerialization(err error) bool {
	var target *SerializationError
	return sterrors.As(err, &target)
}

// IsMalformedEntry reports whether err is a MalformedEntryError.
func IsMalformedEntry(err error) bool {
	var target *MalformedEntryError
	return sterrors.As(err, &target)
}

// IsHandler reports whether err is a HandlerError.
func IsHandler(err error) bool {
	var target *HandlerError
	return sterrors.As(err, &target)
}
