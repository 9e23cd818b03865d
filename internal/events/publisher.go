package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-pulse/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-pulse/internal/oscillator"
)

// eventQueueSize bounds the delivery pump's backlog. At a 100ms toggle
// period this absorbs over ten seconds of a stalled broker before
// events start being shed.
const eventQueueSize = 128

// WebSocket channels clients can subscribe to.
const (
	// ChannelRelayState carries relay on/off changes from any source.
	ChannelRelayState = "relay.state_changed"

	// ChannelSessionStarted carries oscillation session start events.
	ChannelSessionStarted = "session.started"

	// ChannelSessionEnded carries oscillation session completion events.
	ChannelSessionEnded = "session.ended"
)

// Sources attached to relay state events, identifying what changed the
// relay.
const (
	// SourceSession marks toggles performed by an oscillation session.
	SourceSession = "session"

	// SourceCommand marks changes from a direct API or MQTT command.
	SourceCommand = "command"

	// SourceMonitor marks changes observed by the background poller,
	// typically the device's button or its own web UI.
	SourceMonitor = "monitor"
)

// MessagePublisher is the MQTT capability the publisher needs.
// Implemented by *mqtt.Client.
type MessagePublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Broadcaster is the WebSocket capability the publisher needs.
// Implemented by *api.Hub.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Logger is the minimal logging interface the publisher needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// RelayStateEvent is the payload for relay state changes, published to
// {prefix}/relay/{id}/state (retained) and the relay.state_changed
// WebSocket channel.
type RelayStateEvent struct {
	RelayID   int    `json:"relay_id"`
	On        bool   `json:"on"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

// SessionEvent is the payload for session lifecycle changes, published
// to {prefix}/session/event and the session.* WebSocket channels.
type SessionEvent struct {
	Event     string              `json:"event"`
	Session   oscillator.Snapshot `json:"session"`
	Timestamp string              `json:"timestamp"`
}

// Deps contains the publisher's dependencies. MQTT and Hub are both
// optional; a nil sink is skipped so the service degrades to whichever
// transports are configured.
type Deps struct {
	MQTT   MessagePublisher
	Hub    Broadcaster
	Logger Logger

	// Topics builds MQTT topic names; carries the configured prefix.
	Topics mqtt.Topics

	// QoS for MQTT publishes.
	QoS byte
}

// Publisher fans relay and session events out to MQTT and WebSocket
// clients. It implements oscillator.Notifier, so wiring it with
// Controller.SetNotifier makes every toggle and session transition
// visible to external consumers.
//
// Start launches a pump goroutine that carries the MQTT publishes, so a
// slow broker backs up the pump's queue instead of the oscillation
// loop; a full queue sheds the oldest event first, and the state topic
// is retained, so subscribers still converge on the newest state.
// Before Start and after Close, publishes run on the caller. Delivery
// on either path is best effort: a failed publish is logged and
// dropped, never retried. WebSocket broadcasts are always handed to the
// hub inline; the hub never blocks.
type Publisher struct {
	mqtt   MessagePublisher
	hub    Broadcaster
	logger Logger
	topics mqtt.Topics
	qos    byte

	queue    chan outbound
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	started bool
}

// outbound is one queued MQTT publish, marshalled at event time so the
// timestamp reflects when the change happened, not when the broker got
// around to it.
type outbound struct {
	topic    string
	payload  []byte
	retained bool
}

// New creates a publisher. Nil sinks are allowed.
func New(deps Deps) *Publisher {
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Publisher{
		mqtt:   deps.MQTT,
		hub:    deps.Hub,
		logger: logger,
		topics: deps.Topics,
		qos:    deps.QoS,
		queue:  make(chan outbound, eventQueueSize),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the delivery pump. Calling it more than once, or after
// Close, is a no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	select {
	case <-p.stopCh:
		return
	default:
	}
	p.started = true
	go p.pump()
}

// Close stops the pump after it has flushed the queued publishes. Safe
// to call multiple times, and without a prior Start. Events published
// after Close deliver synchronously, so late session completions still
// reach the broker while it is connected.
func (p *Publisher) Close() error {
	p.stopOnce.Do(func() { close(p.stopCh) })

	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if started {
		<-p.done
	}
	return nil
}

// pump carries queued publishes to the broker on its own goroutine. On
// stop it drains whatever is queued before exiting, so the retained
// state topic ends on the last observed state.
func (p *Publisher) pump() {
	defer close(p.done)
	for {
		select {
		case o := <-p.queue:
			p.publish(o)
		case <-p.stopCh:
			for {
				select {
				case o := <-p.queue:
					p.publish(o)
				default:
					return
				}
			}
		}
	}
}

// deliver routes one publish to the pump when it is running, or to the
// broker directly when it is not.
func (p *Publisher) deliver(o outbound) {
	if !p.pumping() {
		p.publish(o)
		return
	}

	select {
	case p.queue <- o:
		return
	default:
	}

	// Queue full: shed the oldest publish so the newest state wins. If
	// a concurrent producer refills the freed slot first, this event
	// gives way instead.
	select {
	case <-p.queue:
	default:
	}
	select {
	case p.queue <- o:
	default:
	}
	p.logger.Warn("event queue full, shedding", "topic", o.topic)
}

// pumping reports whether the pump goroutine is accepting publishes.
func (p *Publisher) pumping() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return false
	}
	select {
	case <-p.stopCh:
		return false
	default:
		return true
	}
}

// publish performs one MQTT publish, logging failures.
func (p *Publisher) publish(o outbound) {
	if err := p.mqtt.Publish(o.topic, o.payload, p.qos, o.retained); err != nil {
		p.logger.Warn("event publish failed", "topic", o.topic, "error", err)
	}
}

// SessionStarted publishes a session_started event.
func (p *Publisher) SessionStarted(snap oscillator.Snapshot) {
	p.sessionEvent("session_started", ChannelSessionStarted, snap)
}

// SessionEnded publishes a session_ended event. For bounded sessions
// that completed cleanly it also publishes the enforced final state,
// which the per-toggle events never carry. Errored sessions leave the
// relay in an unknown state; the monitor reconciles those on its next
// poll.
func (p *Publisher) SessionEnded(snap oscillator.Snapshot) {
	p.sessionEvent("session_ended", ChannelSessionEnded, snap)

	if snap.Mode != oscillator.ModeUnbounded && snap.Error == "" {
		p.RelayState(snap.RelayID, snap.FinalState, SourceSession)
	}
}

// RelayToggled publishes a relay state change caused by an oscillation
// session.
func (p *Publisher) RelayToggled(relayID int, on bool) {
	p.RelayState(relayID, on, SourceSession)
}

// RelayObserved publishes a relay state change observed by the
// background monitor, i.e. one made outside this service.
func (p *Publisher) RelayObserved(relayID int, on bool) {
	p.RelayState(relayID, on, SourceMonitor)
}

// RelayCommanded publishes a relay state change caused by a direct
// power or toggle command, whether it arrived over HTTP or MQTT.
func (p *Publisher) RelayCommanded(relayID int, on bool) {
	p.RelayState(relayID, on, SourceCommand)
}

// RelayState publishes a relay state change from the given source. The
// MQTT message is retained so new subscribers see the current state.
func (p *Publisher) RelayState(relayID int, on bool, source string) {
	event := RelayStateEvent{
		RelayID:   relayID,
		On:        on,
		Source:    source,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if p.hub != nil {
		p.hub.Broadcast(ChannelRelayState, event)
	}

	if p.mqtt != nil {
		payload, err := json.Marshal(event)
		if err != nil {
			p.logger.Warn("failed to marshal relay state event", "relay_id", relayID, "error", err)
			return
		}
		p.deliver(outbound{topic: p.topics.RelayState(relayID), payload: payload, retained: true})
	}
}

// sessionEvent publishes one session lifecycle event to both sinks.
func (p *Publisher) sessionEvent(event, channel string, snap oscillator.Snapshot) {
	e := SessionEvent{
		Event:     event,
		Session:   snap,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if p.hub != nil {
		p.hub.Broadcast(channel, e)
	}

	if p.mqtt != nil {
		payload, err := json.Marshal(e)
		if err != nil {
			p.logger.Warn("failed to marshal session event", "session_id", snap.ID, "error", err)
			return
		}
		p.deliver(outbound{topic: p.topics.SessionEvent(), payload: payload})
	}

	p.logger.Debug("session event published",
		"event", event,
		"session_id", snap.ID,
		"relay_id", snap.RelayID,
	)
}
