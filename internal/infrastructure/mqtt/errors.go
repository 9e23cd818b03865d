package mqtt

import "errors"

// Sentinel errors for broker operations. Callers branch with errors.Is;
// wrapped forms carry the underlying paho cause.
var (
	// ErrNotConnected is returned when a relay state, session event, or
	// ack is published before Connect, or after the broker link drops.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when the initial broker
	// connection cannot be established. Drops after a successful
	// Connect are retried by paho and surface through the disconnect
	// callback instead.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed wraps a state, event, or ack publish that the
	// broker did not take.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed wraps a failed command-topic subscription.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed wraps a failed unsubscription.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS rejects QoS levels above 2 before any broker
	// traffic happens.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic rejects empty topics before any broker traffic
	// happens.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrTimeout is returned when a broker operation exceeds its
	// deadline.
	ErrTimeout = errors.New("mqtt: operation timed out")
)
