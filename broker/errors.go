package broker

import "errors"

// UnavailableError wraps connection and timeout failures against the stream
// backend. The pipeline records it in the resilience ledger and retries via
// the natural poll loop; it is never process-fatal.
type UnavailableError struct {
	Op     string
	Stream string
	Err    error
}

func (e *UnavailableError) Error() string {
	msg := "streamflow: broker unavailable during " + e.Op
	if e.Stream != "" {
		msg += " on stream " + e.Stream
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err is an UnavailableError.
func IsUnavailable(err error) bool {
	var target *UnavailableError
	return errors.As(err, &target)
}
