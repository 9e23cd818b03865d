package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-pulse/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-pulse/internal/oscillator"
	"github.com/nerrad567/gray-pulse/internal/shelly"
)

// Bridge operation constants.
const (
	// minTopicParts is the minimum number of parts in a command topic
	// (command/relay/{id}, before any prefix).
	minTopicParts = 3

	// commandTimeout bounds synchronous device commands.
	commandTimeout = 5 * time.Second
)

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Controller starts and stops oscillation sessions. Implemented by
// *oscillator.Controller.
type Controller interface {
	Begin(relayID int, period time.Duration) (*oscillator.Session, error)
	BeginTimeout(relayID int, period, timeout time.Duration, startState, finalState bool) (*oscillator.Session, error)
	BeginCycles(relayID int, period time.Duration, cycles int, startState, finalState bool) (*oscillator.Session, error)
	StopOscillation(relayID int) bool
}

// Actuator performs direct relay commands. Implemented by
// *shelly.Client.
type Actuator interface {
	SetRelay(ctx context.Context, relayID int, on bool) (bool, error)
	Toggle(ctx context.Context, relayID int) (bool, error)
}

// Notifier receives command-driven relay changes. Implemented by
// *events.Publisher.
type Notifier interface {
	RelayCommanded(relayID int, on bool)
}

// Logger defines the logging interface for the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Bridge accepts relay commands over MQTT and acknowledges every one.
// Commands arrive on {prefix}/command/relay/{id} and acks go out on
// {prefix}/ack/relay/{id}; the relay is addressed by topic, so one
// subscription covers all relays.
//
// Thread Safety: all methods are safe for concurrent use.
type Bridge struct {
	mqtt       MQTTClient
	controller Controller
	actuator   Actuator
	notifier   Notifier
	topics     mqtt.Topics
	qos        byte

	// Shutdown coordination (stopOnce prevents double-cancel races)
	ctx       context.Context
	ctxCancel context.CancelFunc
	stopOnce  sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// Options holds configuration for creating a bridge.
type Options struct {
	// MQTT is the broker connection. Required.
	MQTT MQTTClient

	// Controller runs oscillation sessions. Required.
	Controller Controller

	// Actuator performs direct relay commands. Required.
	Actuator Actuator

	// Notifier receives command-driven state changes. Optional.
	Notifier Notifier

	// Topics builds topic names; carries the configured prefix.
	Topics mqtt.Topics

	// QoS for ack publishes.
	QoS byte

	// Logger is an optional structured logger.
	Logger Logger
}

// NewBridge creates a bridge. Call Start to subscribe.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("remote: MQTT client is required")
	}
	if opts.Controller == nil {
		return nil, fmt.Errorf("remote: controller is required")
	}
	if opts.Actuator == nil {
		return nil, fmt.Errorf("remote: actuator is required")
	}

	// Bridge-level context aborts in-flight device commands on Stop.
	ctx, cancel := context.WithCancel(context.Background())

	return &Bridge{
		mqtt:       opts.MQTT,
		controller: opts.Controller,
		actuator:   opts.Actuator,
		notifier:   opts.Notifier,
		topics:     opts.Topics,
		qos:        opts.QoS,
		ctx:        ctx,
		ctxCancel:  cancel,
		logger:     opts.Logger,
	}, nil
}

// Start subscribes to the command topics.
func (b *Bridge) Start() error {
	topic := b.topics.AllRelayCommands()
	if err := b.mqtt.Subscribe(topic, b.qos, b.handleMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to relay commands", "topic", topic)
	return nil
}

// Stop aborts in-flight commands. Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()
		b.logInfo("command bridge stopped")
	})
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

// handleMessage parses the relay id out of the command topic and
// dispatches the payload. The topic prefix may contain slashes, so the
// id is taken from the end: .../command/relay/{id}.
func (b *Bridge) handleMessage(topic string, payload []byte) error {
	parts := strings.Split(topic, "/")
	n := len(parts)
	if n < minTopicParts || parts[n-3] != "command" || parts[n-2] != "relay" {
		return fmt.Errorf("remote: unexpected command topic %q", topic)
	}

	relayID, err := strconv.Atoi(parts[n-1])
	if err != nil || relayID < 0 {
		return fmt.Errorf("remote: invalid relay id in topic %q", topic)
	}

	b.handleCommand(relayID, payload)
	return nil
}

// handleCommand executes one command and always publishes an ack.
func (b *Bridge) handleCommand(relayID int, payload []byte) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logError("failed to parse command", err)
		b.publishAck(newAckError(cmd, relayID, ErrCodeInvalidPayload, "malformed command payload"))
		return
	}

	b.logInfo("received command",
		"command_id", cmd.ID,
		"relay_id", relayID,
		"action", cmd.Action,
	)

	switch cmd.Action {
	case ActionOscillate:
		b.execOscillate(relayID, cmd)
	case ActionStop:
		b.execStop(relayID, cmd)
	case ActionPower:
		b.execPower(relayID, cmd)
	case ActionToggle:
		b.execToggle(relayID, cmd)
	default:
		b.publishAck(newAckError(cmd, relayID, ErrCodeInvalidAction,
			fmt.Sprintf("unknown action: %q", cmd.Action)))
	}
}

// execOscillate starts an oscillation session in the mode implied by
// the parameters: cycles, timeout, or unbounded when neither is given.
func (b *Bridge) execOscillate(relayID int, cmd Command) {
	params := cmd.Params
	if params == nil || params.PeriodS <= 0 {
		b.publishAck(newAckError(cmd, relayID, ErrCodeInvalidParameters,
			"period_s is required and must be positive"))
		return
	}
	// A negative bound must not read as "absent" and fall through to an
	// unbounded session.
	if params.TimeoutS < 0 {
		b.publishAck(newAckError(cmd, relayID, ErrCodeInvalidParameters,
			"timeout_s must be positive"))
		return
	}
	if params.Cycles < 0 {
		b.publishAck(newAckError(cmd, relayID, ErrCodeInvalidParameters,
			"cycles must be positive"))
		return
	}
	if params.TimeoutS > 0 && params.Cycles > 0 {
		b.publishAck(newAckError(cmd, relayID, ErrCodeInvalidParameters,
			"timeout_s and cycles are mutually exclusive"))
		return
	}

	period := time.Duration(params.PeriodS * float64(time.Second))

	// Bounded sessions default to starting on and finishing off.
	startState := true
	if params.StartState != nil {
		startState = *params.StartState
	}
	finalState := false
	if params.FinalState != nil {
		finalState = *params.FinalState
	}

	var (
		session *oscillator.Session
		err     error
	)
	switch {
	case params.Cycles > 0:
		session, err = b.controller.BeginCycles(relayID, period, params.Cycles, startState, finalState)
	case params.TimeoutS > 0:
		timeout := time.Duration(params.TimeoutS * float64(time.Second))
		session, err = b.controller.BeginTimeout(relayID, period, timeout, startState, finalState)
	default:
		session, err = b.controller.Begin(relayID, period)
	}
	if err != nil {
		code, message := errorCode(err)
		b.publishAck(newAckError(cmd, relayID, code, message))
		return
	}

	ack := newAck(cmd, relayID, AckAccepted)
	ack.SessionID = session.ID()
	b.publishAck(ack)
}

// execStop latches stop for the relay's active session. Stopping a
// relay with no session is not an error; the ack reports what happened.
func (b *Bridge) execStop(relayID int, cmd Command) {
	stopped := b.controller.StopOscillation(relayID)

	ack := newAck(cmd, relayID, AckOK)
	ack.Stopped = &stopped
	b.publishAck(ack)
}

// execPower sets the relay to an explicit state.
func (b *Bridge) execPower(relayID int, cmd Command) {
	if cmd.Params == nil || cmd.Params.On == nil {
		b.publishAck(newAckError(cmd, relayID, ErrCodeInvalidParameters,
			"power requires params.on"))
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	state, err := b.actuator.SetRelay(ctx, relayID, *cmd.Params.On)
	if err != nil {
		code, message := errorCode(err)
		b.publishAck(newAckError(cmd, relayID, code, message))
		return
	}

	if b.notifier != nil {
		b.notifier.RelayCommanded(relayID, state)
	}
	ack := newAck(cmd, relayID, AckOK)
	ack.On = &state
	b.publishAck(ack)
}

// execToggle flips the relay.
func (b *Bridge) execToggle(relayID int, cmd Command) {
	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	state, err := b.actuator.Toggle(ctx, relayID)
	if err != nil {
		code, message := errorCode(err)
		b.publishAck(newAckError(cmd, relayID, code, message))
		return
	}

	if b.notifier != nil {
		b.notifier.RelayCommanded(relayID, state)
	}
	ack := newAck(cmd, relayID, AckOK)
	ack.On = &state
	b.publishAck(ack)
}

// publishAck publishes a command acknowledgment.
func (b *Bridge) publishAck(ack Ack) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}

	topic := b.topics.RelayAck(ack.RelayID)
	if err := b.mqtt.Publish(topic, payload, b.qos, false); err != nil {
		b.logError("failed to publish ack", err)
	}

	if ack.Status == AckError {
		b.logWarn("command rejected",
			"command_id", ack.ID,
			"relay_id", ack.RelayID,
			"code", ack.Code,
			"message", ack.Message,
		)
	}
}

// errorCode maps an execution error to an ack error code.
func errorCode(err error) (code, message string) {
	switch {
	case errors.Is(err, oscillator.ErrSessionActive):
		return ErrCodeSessionActive, "relay already has an active session"
	case errors.Is(err, oscillator.ErrPeriodTooShort),
		errors.Is(err, oscillator.ErrInvalidRelayID),
		errors.Is(err, oscillator.ErrInvalidCycles),
		errors.Is(err, oscillator.ErrInvalidTimeout),
		errors.Is(err, shelly.ErrUnknownRelay):
		return ErrCodeInvalidParameters, err.Error()
	}

	var transportErr *shelly.TransportError
	if errors.As(err, &transportErr) {
		return ErrCodeDeviceUnreachable, err.Error()
	}
	return ErrCodeInternal, err.Error()
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.log(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning message if logger is set.
func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.log(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error) {
	if logger := b.log(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (b *Bridge) log() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}
