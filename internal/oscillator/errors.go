package oscillator

import "errors"

// Sentinel errors for oscillation operations.
//
// Parameter errors are returned before any actuator call or goroutine
// launch, so a rejected request has no side effects. Check with
// errors.Is():
//
//	if errors.Is(err, oscillator.ErrSessionActive) {
//	    // relay already has a running session
//	}
var (
	// ErrPeriodTooShort indicates a period below MinPeriod. Sub-50ms
	// periods are rejected because the transport's round-trip latency
	// makes them unreliable.
	ErrPeriodTooShort = errors.New("oscillator: period below minimum")

	// ErrInvalidRelayID indicates a negative relay id.
	ErrInvalidRelayID = errors.New("oscillator: relay id must be non-negative")

	// ErrInvalidCycles indicates a non-positive cycle count.
	ErrInvalidCycles = errors.New("oscillator: cycles must be positive")

	// ErrInvalidTimeout indicates a non-positive timeout.
	ErrInvalidTimeout = errors.New("oscillator: timeout must be positive")

	// ErrSessionActive indicates the relay already has a running session.
	// The existing session must be stopped before a new one can start.
	ErrSessionActive = errors.New("oscillator: session already active for relay")

	// ErrNotStarted indicates the controller has not been started.
	ErrNotStarted = errors.New("oscillator: controller not started")

	// ErrAlreadyStarted indicates a second Start call.
	ErrAlreadyStarted = errors.New("oscillator: controller already started")

	// ErrControllerClosed indicates the controller has been shut down
	// and refuses new sessions.
	ErrControllerClosed = errors.New("oscillator: controller closed")
)
