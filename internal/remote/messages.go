package remote

import "time"

// Command actions accepted on {prefix}/command/relay/{id}.
const (
	ActionOscillate = "oscillate"
	ActionStop      = "stop"
	ActionPower     = "power"
	ActionToggle    = "toggle"
)

// Ack error codes.
const (
	ErrCodeInvalidPayload    = "invalid_payload"
	ErrCodeInvalidAction     = "invalid_action"
	ErrCodeInvalidParameters = "invalid_parameters"
	ErrCodeSessionActive     = "session_active"
	ErrCodeDeviceUnreachable = "device_unreachable"
	ErrCodeInternal          = "internal_error"
)

// AckStatus is the outcome of a command.
type AckStatus string

// Ack statuses.
const (
	// AckAccepted means an oscillation session was started; completion
	// arrives later on the session event topic.
	AckAccepted AckStatus = "accepted"

	// AckOK means a synchronous command (stop, power, toggle) completed.
	AckOK AckStatus = "ok"

	// AckError means the command was rejected or failed.
	AckError AckStatus = "error"
)

// Command is an inbound command message. The relay is addressed by the
// topic, not the payload.
type Command struct {
	// ID is an optional caller-chosen correlation id, echoed in the ack.
	ID string `json:"id,omitempty"`

	// Action is one of oscillate, stop, power, toggle.
	Action string `json:"action"`

	// Params carries action-specific parameters.
	Params *CommandParams `json:"params,omitempty"`
}

// CommandParams holds the union of per-action parameters.
type CommandParams struct {
	// PeriodS is the oscillation half-period in seconds. Required for
	// oscillate.
	PeriodS float64 `json:"period_s,omitempty"`

	// TimeoutS bounds an oscillation by wall clock. Mutually exclusive
	// with Cycles; omit both for an unbounded session.
	TimeoutS float64 `json:"timeout_s,omitempty"`

	// Cycles bounds an oscillation by full on/off cycles.
	Cycles int `json:"cycles,omitempty"`

	// StartState is the state the relay settles to before the first
	// toggle of a bounded session. Defaults to on.
	StartState *bool `json:"start_state,omitempty"`

	// FinalState is the state enforced when a bounded session ends.
	// Defaults to off.
	FinalState *bool `json:"final_state,omitempty"`

	// On is the target state for the power action.
	On *bool `json:"on,omitempty"`
}

// Ack is the response published to {prefix}/ack/relay/{id} for every
// processed command.
type Ack struct {
	ID      string    `json:"id,omitempty"`
	RelayID int       `json:"relay_id"`
	Action  string    `json:"action,omitempty"`
	Status  AckStatus `json:"status"`

	// SessionID identifies the started oscillation session.
	SessionID string `json:"session_id,omitempty"`

	// Stopped reports whether a stop command found a session to stop.
	Stopped *bool `json:"stopped,omitempty"`

	// On is the relay's reported state after power or toggle.
	On *bool `json:"on,omitempty"`

	// Code and Message describe an error outcome.
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// newAck builds a success ack echoing the command's correlation id.
func newAck(cmd Command, relayID int, status AckStatus) Ack {
	return Ack{
		ID:        cmd.ID,
		RelayID:   relayID,
		Action:    cmd.Action,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
}

// newAckError builds an error ack.
func newAckError(cmd Command, relayID int, code, message string) Ack {
	return Ack{
		ID:        cmd.ID,
		RelayID:   relayID,
		Action:    cmd.Action,
		Status:    AckError,
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}
