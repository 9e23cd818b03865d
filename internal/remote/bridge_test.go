package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/gray-pulse/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-pulse/internal/oscillator"
	"github.com/nerrad567/gray-pulse/internal/shelly"
)

// ============================================================
// Test Fixtures
// ============================================================

type publishedMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type subscription struct {
	topic   string
	qos     byte
	handler mqtt.MessageHandler
}

type fakeMQTT struct {
	mu        sync.Mutex
	subs      []subscription
	published []publishedMessage
	subErr    error
}

func (f *fakeMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMessage{topic: topic, payload: payload, qos: qos, retained: retained})
	return nil
}

func (f *fakeMQTT) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return f.subErr
	}
	f.subs = append(f.subs, subscription{topic: topic, qos: qos, handler: handler})
	return nil
}

// deliver invokes the bridge's subscribed handler as the broker would.
func (f *fakeMQTT) deliver(t *testing.T, topic string, payload []byte) error {
	t.Helper()
	f.mu.Lock()
	if len(f.subs) == 0 {
		f.mu.Unlock()
		t.Fatal("no subscription registered")
	}
	handler := f.subs[0].handler
	f.mu.Unlock()
	return handler(topic, payload)
}

func (f *fakeMQTT) acks(t *testing.T) []Ack {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Ack, 0, len(f.published))
	for _, msg := range f.published {
		var ack Ack
		if err := json.Unmarshal(msg.payload, &ack); err != nil {
			t.Fatalf("unparsable ack on %s: %v", msg.topic, err)
		}
		out = append(out, ack)
	}
	return out
}

func (f *fakeMQTT) lastPublished(t *testing.T) publishedMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.published) == 0 {
		t.Fatal("nothing published")
	}
	return f.published[len(f.published)-1]
}

// fakeActuator satisfies both this package's Actuator and
// oscillator.Actuator, so the bridge and a real controller can share
// it.
type fakeActuator struct {
	mu     sync.Mutex
	relays []bool
	fail   error
}

func (f *fakeActuator) RelayState(_ context.Context, relayID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return false, f.fail
	}
	return f.relays[relayID], nil
}

func (f *fakeActuator) SetRelay(_ context.Context, relayID int, on bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return false, f.fail
	}
	f.relays[relayID] = on
	return on, nil
}

func (f *fakeActuator) Toggle(_ context.Context, relayID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return false, f.fail
	}
	f.relays[relayID] = !f.relays[relayID]
	return f.relays[relayID], nil
}

func (f *fakeActuator) state(relayID int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.relays[relayID]
}

func (f *fakeActuator) setFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

type commandedState struct {
	relayID int
	on      bool
}

type fakeNotifier struct {
	mu   sync.Mutex
	seen []commandedState
}

func (f *fakeNotifier) RelayCommanded(relayID int, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, commandedState{relayID: relayID, on: on})
}

func (f *fakeNotifier) snapshot() []commandedState {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]commandedState, len(f.seen))
	copy(out, f.seen)
	return out
}

type bridgeHarness struct {
	bridge   *Bridge
	mqtt     *fakeMQTT
	actuator *fakeActuator
	ctrl     *oscillator.Controller
	notifier *fakeNotifier
}

// newHarness wires a bridge to a real controller over a fake actuator
// and fake broker.
func newHarness(t *testing.T) *bridgeHarness {
	t.Helper()

	act := &fakeActuator{relays: make([]bool, 8)}
	ctrl, err := oscillator.New(oscillator.Deps{Actuator: act})
	if err != nil {
		t.Fatalf("controller setup failed: %v", err)
	}
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("controller start failed: %v", err)
	}
	t.Cleanup(func() { _ = ctrl.Close() })

	mq := &fakeMQTT{}
	notifier := &fakeNotifier{}
	bridge, err := NewBridge(Options{
		MQTT:       mq,
		Controller: ctrl,
		Actuator:   act,
		Notifier:   notifier,
		Topics:     mqtt.Topics{},
		QoS:        1,
	})
	if err != nil {
		t.Fatalf("NewBridge failed: %v", err)
	}
	if err := bridge.Start(); err != nil {
		t.Fatalf("bridge start failed: %v", err)
	}
	t.Cleanup(bridge.Stop)

	return &bridgeHarness{bridge: bridge, mqtt: mq, actuator: act, ctrl: ctrl, notifier: notifier}
}

// command delivers a command for the relay and returns the resulting
// ack.
func (h *bridgeHarness) command(t *testing.T, relayID int, body string) Ack {
	t.Helper()
	topic := fmt.Sprintf("graypulse/command/relay/%d", relayID)
	if err := h.mqtt.deliver(t, topic, []byte(body)); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}
	acks := h.mqtt.acks(t)
	if len(acks) == 0 {
		t.Fatal("no ack published")
	}
	return acks[len(acks)-1]
}

// ============================================================
// Construction and Lifecycle
// ============================================================

func TestNewBridge_RequiredDeps(t *testing.T) {
	act := &fakeActuator{relays: make([]bool, 1)}
	ctrl, err := oscillator.New(oscillator.Deps{Actuator: act})
	if err != nil {
		t.Fatalf("controller setup failed: %v", err)
	}

	tests := []struct {
		name string
		opts Options
	}{
		{"missing mqtt", Options{Controller: ctrl, Actuator: act}},
		{"missing controller", Options{MQTT: &fakeMQTT{}, Actuator: act}},
		{"missing actuator", Options{MQTT: &fakeMQTT{}, Controller: ctrl}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewBridge(tt.opts); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestBridge_StartSubscribes(t *testing.T) {
	h := newHarness(t)

	h.mqtt.mu.Lock()
	defer h.mqtt.mu.Unlock()
	if len(h.mqtt.subs) != 1 {
		t.Fatalf("expected 1 subscription, got %d", len(h.mqtt.subs))
	}
	sub := h.mqtt.subs[0]
	if sub.topic != "graypulse/command/relay/+" {
		t.Errorf("topic = %q, want graypulse/command/relay/+", sub.topic)
	}
	if sub.qos != 1 {
		t.Errorf("qos = %d, want 1", sub.qos)
	}
}

func TestBridge_StartSubscribeFailure(t *testing.T) {
	act := &fakeActuator{relays: make([]bool, 1)}
	ctrl, err := oscillator.New(oscillator.Deps{Actuator: act})
	if err != nil {
		t.Fatalf("controller setup failed: %v", err)
	}

	mq := &fakeMQTT{subErr: errors.New("broker down")}
	bridge, err := NewBridge(Options{MQTT: mq, Controller: ctrl, Actuator: act})
	if err != nil {
		t.Fatalf("NewBridge failed: %v", err)
	}
	if err := bridge.Start(); err == nil {
		t.Error("expected subscribe error, got nil")
	}
}

// ============================================================
// Topic and Payload Parsing
// ============================================================

func TestHandleMessage_RejectsBadTopics(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name  string
		topic string
	}{
		{"too short", "graypulse/command"},
		{"wrong shape", "graypulse/command/bogus/3"},
		{"not a command", "graypulse/relay/3/state"},
		{"non-numeric id", "graypulse/command/relay/abc"},
		{"negative id", "graypulse/command/relay/-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := h.mqtt.deliver(t, tt.topic, []byte(`{"action":"toggle"}`)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}

	h.mqtt.mu.Lock()
	defer h.mqtt.mu.Unlock()
	if len(h.mqtt.published) != 0 {
		t.Errorf("bad topics should publish nothing, got %d messages", len(h.mqtt.published))
	}
}

func TestHandleMessage_PrefixWithSlashes(t *testing.T) {
	// The relay id is parsed from the end of the topic, so a
	// multi-segment prefix works unchanged.
	h := newHarness(t)
	if err := h.mqtt.deliver(t, "homelab/pulse/command/relay/2", []byte(`{"action":"toggle"}`)); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}

	acks := h.mqtt.acks(t)
	if len(acks) != 1 {
		t.Fatalf("expected 1 ack, got %d", len(acks))
	}
	if acks[0].RelayID != 2 {
		t.Errorf("relay_id = %d, want 2", acks[0].RelayID)
	}
}

func TestCommand_MalformedPayload(t *testing.T) {
	h := newHarness(t)
	ack := h.command(t, 5, `{"action": oscillate`)

	if ack.Status != AckError {
		t.Errorf("status = %q, want %q", ack.Status, AckError)
	}
	if ack.Code != ErrCodeInvalidPayload {
		t.Errorf("code = %q, want %q", ack.Code, ErrCodeInvalidPayload)
	}
	if ack.RelayID != 5 {
		t.Errorf("relay_id = %d, want 5", ack.RelayID)
	}
}

func TestCommand_UnknownAction(t *testing.T) {
	h := newHarness(t)
	ack := h.command(t, 0, `{"action":"explode"}`)

	if ack.Status != AckError || ack.Code != ErrCodeInvalidAction {
		t.Errorf("ack = %+v, want error/invalid_action", ack)
	}
}

func TestAck_TopicAndCorrelation(t *testing.T) {
	h := newHarness(t)
	ack := h.command(t, 7, `{"id":"cmd-42","action":"stop"}`)

	if ack.ID != "cmd-42" {
		t.Errorf("ack id = %q, want cmd-42", ack.ID)
	}
	last := h.mqtt.lastPublished(t)
	if last.topic != "graypulse/ack/relay/7" {
		t.Errorf("ack topic = %q, want graypulse/ack/relay/7", last.topic)
	}
	if last.retained {
		t.Error("acks must not be retained")
	}
}

// ============================================================
// Oscillate
// ============================================================

func TestOscillate_StartsSession(t *testing.T) {
	h := newHarness(t)
	ack := h.command(t, 1, `{"action":"oscillate","params":{"period_s":10}}`)

	if ack.Status != AckAccepted {
		t.Fatalf("status = %q (code=%s msg=%s), want accepted", ack.Status, ack.Code, ack.Message)
	}
	if ack.SessionID == "" {
		t.Fatal("accepted ack should carry a session id")
	}

	session, ok := h.ctrl.SessionByID(ack.SessionID)
	if !ok {
		t.Fatal("session id in ack not found in controller")
	}
	if session.Mode() != oscillator.ModeUnbounded {
		t.Errorf("mode = %q, want %q", session.Mode(), oscillator.ModeUnbounded)
	}
	if session.RelayID() != 1 {
		t.Errorf("relay = %d, want 1", session.RelayID())
	}
}

func TestOscillate_ModeSelection(t *testing.T) {
	tests := []struct {
		name     string
		params   string
		wantMode oscillator.Mode
	}{
		{"cycles", `{"period_s":10,"cycles":3}`, oscillator.ModeCycles},
		{"timeout", `{"period_s":10,"timeout_s":60}`, oscillator.ModeTimeout},
		{"unbounded", `{"period_s":10}`, oscillator.ModeUnbounded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ack := h.command(t, 0, `{"action":"oscillate","params":`+tt.params+`}`)

			if ack.Status != AckAccepted {
				t.Fatalf("status = %q (code=%s), want accepted", ack.Status, ack.Code)
			}
			session, ok := h.ctrl.SessionByID(ack.SessionID)
			if !ok {
				t.Fatal("session not found")
			}
			if session.Mode() != tt.wantMode {
				t.Errorf("mode = %q, want %q", session.Mode(), tt.wantMode)
			}
		})
	}
}

func TestOscillate_ParameterErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		substr string
	}{
		{"no params", `{"action":"oscillate"}`, "period_s"},
		{"zero period", `{"action":"oscillate","params":{"period_s":0}}`, "period_s"},
		{"negative timeout", `{"action":"oscillate","params":{"period_s":1,"timeout_s":-5}}`, "timeout_s must be positive"},
		{"negative cycles", `{"action":"oscillate","params":{"period_s":1,"cycles":-3}}`, "cycles must be positive"},
		{"both bounds", `{"action":"oscillate","params":{"period_s":1,"cycles":2,"timeout_s":5}}`, "mutually exclusive"},
		{"period below minimum", `{"action":"oscillate","params":{"period_s":0.01}}`, "period"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ack := h.command(t, 0, tt.body)

			if ack.Status != AckError {
				t.Fatalf("status = %q, want error", ack.Status)
			}
			if ack.Code != ErrCodeInvalidParameters {
				t.Errorf("code = %q, want %q", ack.Code, ErrCodeInvalidParameters)
			}
			if !strings.Contains(ack.Message, tt.substr) {
				t.Errorf("message %q should mention %q", ack.Message, tt.substr)
			}
			// A rejected command must not leave a session on the relay.
			if got := h.ctrl.ActiveCount(); got != 0 {
				t.Errorf("active sessions after rejected command = %d, want 0", got)
			}
		})
	}
}

func TestOscillate_BusyRelay(t *testing.T) {
	h := newHarness(t)

	first := h.command(t, 0, `{"action":"oscillate","params":{"period_s":10}}`)
	if first.Status != AckAccepted {
		t.Fatalf("first command not accepted: %+v", first)
	}

	second := h.command(t, 0, `{"action":"oscillate","params":{"period_s":10}}`)
	if second.Status != AckError || second.Code != ErrCodeSessionActive {
		t.Errorf("ack = %+v, want error/session_active", second)
	}
}

// ============================================================
// Stop, Power, Toggle
// ============================================================

func TestStop_ReportsWhetherSessionExisted(t *testing.T) {
	h := newHarness(t)

	ack := h.command(t, 0, `{"action":"stop"}`)
	if ack.Status != AckOK {
		t.Fatalf("status = %q, want ok", ack.Status)
	}
	if ack.Stopped == nil || *ack.Stopped {
		t.Errorf("stopped = %v, want false (no session)", ack.Stopped)
	}

	started := h.command(t, 0, `{"action":"oscillate","params":{"period_s":10}}`)
	if started.Status != AckAccepted {
		t.Fatalf("oscillate not accepted: %+v", started)
	}

	ack = h.command(t, 0, `{"action":"stop"}`)
	if ack.Stopped == nil || !*ack.Stopped {
		t.Errorf("stopped = %v, want true", ack.Stopped)
	}

	session, ok := h.ctrl.SessionByID(started.SessionID)
	if ok && !session.Stopped() {
		t.Error("session should be stop-latched")
	}
}

func TestPower_SetsRelayAndNotifies(t *testing.T) {
	h := newHarness(t)
	ack := h.command(t, 2, `{"action":"power","params":{"on":true}}`)

	if ack.Status != AckOK {
		t.Fatalf("status = %q (code=%s), want ok", ack.Status, ack.Code)
	}
	if ack.On == nil || !*ack.On {
		t.Errorf("on = %v, want true", ack.On)
	}
	if !h.actuator.state(2) {
		t.Error("relay 2 should be on")
	}

	seen := h.notifier.snapshot()
	if len(seen) != 1 || seen[0].relayID != 2 || !seen[0].on {
		t.Errorf("notifications = %v, want relay 2 on", seen)
	}
}

func TestPower_RequiresOnParam(t *testing.T) {
	h := newHarness(t)

	for _, body := range []string{
		`{"action":"power"}`,
		`{"action":"power","params":{}}`,
	} {
		ack := h.command(t, 0, body)
		if ack.Status != AckError || ack.Code != ErrCodeInvalidParameters {
			t.Errorf("body %s: ack = %+v, want error/invalid_parameters", body, ack)
		}
	}
}

func TestToggle_FlipsRelay(t *testing.T) {
	h := newHarness(t)

	ack := h.command(t, 3, `{"action":"toggle"}`)
	if ack.Status != AckOK {
		t.Fatalf("status = %q, want ok", ack.Status)
	}
	if ack.On == nil || !*ack.On {
		t.Errorf("on = %v, want true after first toggle", ack.On)
	}

	ack = h.command(t, 3, `{"action":"toggle"}`)
	if ack.On == nil || *ack.On {
		t.Errorf("on = %v, want false after second toggle", ack.On)
	}

	if seen := h.notifier.snapshot(); len(seen) != 2 {
		t.Errorf("expected 2 notifications, got %d", len(seen))
	}
}

func TestToggle_DeviceUnreachable(t *testing.T) {
	h := newHarness(t)
	h.actuator.setFail(&shelly.TransportError{
		Op:  "status",
		URL: "http://192.168.33.1/status",
		Err: errors.New("connection refused"),
	})

	ack := h.command(t, 0, `{"action":"toggle"}`)
	if ack.Status != AckError {
		t.Fatalf("status = %q, want error", ack.Status)
	}
	if ack.Code != ErrCodeDeviceUnreachable {
		t.Errorf("code = %q, want %q", ack.Code, ErrCodeDeviceUnreachable)
	}
	if seen := h.notifier.snapshot(); len(seen) != 0 {
		t.Errorf("failed command should not notify, got %v", seen)
	}
}

// ============================================================
// Error Code Mapping
// ============================================================

func TestErrorCode_Mapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"session active", oscillator.ErrSessionActive, ErrCodeSessionActive},
		{"period", oscillator.ErrPeriodTooShort, ErrCodeInvalidParameters},
		{"relay id", oscillator.ErrInvalidRelayID, ErrCodeInvalidParameters},
		{"cycles", oscillator.ErrInvalidCycles, ErrCodeInvalidParameters},
		{"timeout", oscillator.ErrInvalidTimeout, ErrCodeInvalidParameters},
		{"unknown relay", shelly.ErrUnknownRelay, ErrCodeInvalidParameters},
		{"wrapped", fmt.Errorf("begin: %w", oscillator.ErrSessionActive), ErrCodeSessionActive},
		{"transport", &shelly.TransportError{Op: "relay", Err: errors.New("timeout")}, ErrCodeDeviceUnreachable},
		{"other", errors.New("boom"), ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, message := errorCode(tt.err)
			if code != tt.want {
				t.Errorf("code = %q, want %q", code, tt.want)
			}
			if message == "" {
				t.Error("message should not be empty")
			}
		})
	}
}
