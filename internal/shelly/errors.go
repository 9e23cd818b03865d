package shelly

import (
	"errors"
	"fmt"
)

// Sentinel errors for actuator operations.
//
// These can be checked with errors.Is() for specific handling:
//
//	if errors.Is(err, shelly.ErrUnknownRelay) {
//	    // relay index not present on the device
//	}
var (
	// ErrUnknownRelay indicates a relay index outside the device's relay list.
	ErrUnknownRelay = errors.New("shelly: unknown relay index")

	// ErrDecode indicates the device returned a response that could not be parsed.
	ErrDecode = errors.New("shelly: malformed device response")
)

// TransportError indicates the device was unreachable, timed out, or
// returned a non-OK HTTP status. The wrapped error carries the cause.
type TransportError struct {
	// Op is the logical operation that failed ("status" or "relay").
	Op string

	// URL is the request URL that failed.
	URL string

	// Err is the underlying cause.
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("shelly: %s request failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
