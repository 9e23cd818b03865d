package mqtt

import "fmt"

// DefaultTopicPrefix is the leading segment of every Gray Pulse topic
// when no override is configured.
const DefaultTopicPrefix = "graypulse"

// Topics provides builders for Gray Pulse MQTT topics. Using these
// helpers ensures consistent topic naming across the codebase.
//
// The zero value uses DefaultTopicPrefix; set Prefix when
// mqtt.topic_prefix is overridden in config:
//
//	topics := mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix}
//	stateTopic := topics.RelayState(0)
//	// Returns: "graypulse/relay/0/state"
type Topics struct {
	Prefix string
}

// prefix returns the configured prefix, falling back to the default.
func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the service status topic. Online and offline
// payloads are published here retained, and the broker publishes the
// LWT here on an unexpected disconnect.
//
// Example: graypulse/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix())
}

// =============================================================================
// Relay Topics
// =============================================================================

// RelayState returns the state topic for one relay. State is published
// retained on every observed change so new subscribers immediately see
// the current state.
//
// Example: graypulse/relay/0/state
func (t Topics) RelayState(relayID int) string {
	return fmt.Sprintf("%s/relay/%d/state", t.prefix(), relayID)
}

// RelayCommand returns the inbound command topic for one relay.
// External systems publish here to drive the relay over MQTT.
//
// Example: graypulse/command/relay/0
func (t Topics) RelayCommand(relayID int) string {
	return fmt.Sprintf("%s/command/relay/%d", t.prefix(), relayID)
}

// RelayAck returns the command acknowledgement topic for one relay.
// Every command received on RelayCommand gets exactly one ack here.
//
// Example: graypulse/ack/relay/0
func (t Topics) RelayAck(relayID int) string {
	return fmt.Sprintf("%s/ack/relay/%d", t.prefix(), relayID)
}

// =============================================================================
// Session Topics
// =============================================================================

// SessionEvent returns the oscillation session lifecycle topic.
// Session started/ended events are published here, not retained.
//
// Example: graypulse/session/event
func (t Topics) SessionEvent() string {
	return fmt.Sprintf("%s/session/event", t.prefix())
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllRelayCommands returns a pattern matching command topics for every
// relay.
//
// Pattern: graypulse/command/relay/+
func (t Topics) AllRelayCommands() string {
	return fmt.Sprintf("%s/command/relay/+", t.prefix())
}

// AllRelayStates returns a pattern matching every relay state topic.
//
// Pattern: graypulse/relay/+/state
func (t Topics) AllRelayStates() string {
	return fmt.Sprintf("%s/relay/+/state", t.prefix())
}

// AllTopics returns a pattern matching all Gray Pulse topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: graypulse/#
func (t Topics) AllTopics() string {
	return fmt.Sprintf("%s/#", t.prefix())
}
