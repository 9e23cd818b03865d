package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-pulse/internal/oscillator"
)

// ============================================================
// Test Fixtures
// ============================================================

type fakeSource struct {
	mu     sync.Mutex
	states []bool
	err    error
	calls  int
}

func newFakeSource(states ...bool) *fakeSource {
	return &fakeSource{states: states}
}

func (f *fakeSource) Relays(context.Context) ([]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]bool(nil), f.states...), nil
}

func (f *fakeSource) set(states ...bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = states
	f.err = nil
}

func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type observed struct {
	relayID int
	on      bool
}

type fakeObserver struct {
	mu   sync.Mutex
	seen []observed
}

func (f *fakeObserver) RelayObserved(relayID int, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, observed{relayID: relayID, on: on})
}

func (f *fakeObserver) snapshot() []observed {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]observed, len(f.seen))
	copy(out, f.seen)
	return out
}

type fakeSessions struct {
	mu     sync.Mutex
	active map[int]bool
}

func (f *fakeSessions) Session(relayID int) (*oscillator.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return nil, f.active[relayID]
}

// startMonitor creates and starts a monitor with a fast poll interval,
// registering cleanup.
func startMonitor(t *testing.T, cfg Config) *Monitor {
	t.Helper()
	if cfg.Interval == 0 {
		cfg.Interval = 10 * time.Millisecond
	}
	m, err := NewMonitor(cfg)
	if err != nil {
		t.Fatalf("NewMonitor failed: %v", err)
	}
	m.Start(context.Background())
	t.Cleanup(m.Stop)
	return m
}

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

// ============================================================
// Construction
// ============================================================

func TestNewMonitor_RequiresSource(t *testing.T) {
	_, err := NewMonitor(Config{})
	if !errors.Is(err, ErrNoSource) {
		t.Errorf("expected ErrNoSource, got %v", err)
	}
}

func TestNewMonitor_DefaultInterval(t *testing.T) {
	m, err := NewMonitor(Config{Source: newFakeSource()})
	if err != nil {
		t.Fatalf("NewMonitor failed: %v", err)
	}
	if m.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", m.interval, DefaultInterval)
	}
}

// ============================================================
// Change Detection
// ============================================================

func TestMonitor_BaselineReportsNothing(t *testing.T) {
	src := newFakeSource(true, false)
	obs := &fakeObserver{}
	m := startMonitor(t, Config{Source: src, Notifier: obs})

	waitFor(t, time.Second, func() bool { return src.callCount() >= 2 }, "two polls")

	if seen := obs.snapshot(); len(seen) != 0 {
		t.Errorf("baseline should report nothing, got %v", seen)
	}
	states := m.States()
	if len(states) != 2 || !states[0] || states[1] {
		t.Errorf("States() = %v, want [true false]", states)
	}
	if !m.Healthy() {
		t.Error("monitor should be healthy after successful poll")
	}
}

func TestMonitor_DetectsExternalChange(t *testing.T) {
	src := newFakeSource(false)
	obs := &fakeObserver{}
	m := startMonitor(t, Config{Source: src, Notifier: obs})

	waitFor(t, time.Second, func() bool { return src.callCount() >= 1 }, "baseline poll")

	src.set(true)
	waitFor(t, time.Second, func() bool { return len(obs.snapshot()) >= 1 }, "change report")

	// Further polls see no difference; the change is reported once.
	calls := src.callCount()
	waitFor(t, time.Second, func() bool { return src.callCount() >= calls+3 }, "follow-up polls")

	seen := obs.snapshot()
	if len(seen) != 1 {
		t.Fatalf("expected 1 observation, got %d: %v", len(seen), seen)
	}
	if seen[0].relayID != 0 || !seen[0].on {
		t.Errorf("observation = %+v, want relay 0 on", seen[0])
	}
	if states := m.States(); len(states) != 1 || !states[0] {
		t.Errorf("States() = %v, want [true]", states)
	}
}

func TestMonitor_SkipsSessionOwnedRelays(t *testing.T) {
	src := newFakeSource(false, false)
	obs := &fakeObserver{}
	sessions := &fakeSessions{active: map[int]bool{0: true}}
	startMonitor(t, Config{Source: src, Notifier: obs, Sessions: sessions})

	waitFor(t, time.Second, func() bool { return src.callCount() >= 1 }, "baseline poll")

	// Both relays flip; only the session-free one is external.
	src.set(true, true)
	waitFor(t, time.Second, func() bool { return len(obs.snapshot()) >= 1 }, "change report")

	seen := obs.snapshot()
	if len(seen) != 1 {
		t.Fatalf("expected 1 observation, got %d: %v", len(seen), seen)
	}
	if seen[0].relayID != 1 {
		t.Errorf("observed relay %d, want 1", seen[0].relayID)
	}
}

func TestMonitor_NewRelayBaselinedSilently(t *testing.T) {
	src := newFakeSource(false)
	obs := &fakeObserver{}
	m := startMonitor(t, Config{Source: src, Notifier: obs})

	waitFor(t, time.Second, func() bool { return src.callCount() >= 1 }, "baseline poll")

	// A second relay appears, already on. New relays have no previous
	// state to diff against.
	src.set(false, true)
	waitFor(t, time.Second, func() bool { return len(m.States()) == 2 }, "grown state")

	if seen := obs.snapshot(); len(seen) != 0 {
		t.Errorf("new relay should not be reported, got %v", seen)
	}

	// From here it participates in change detection.
	src.set(false, false)
	waitFor(t, time.Second, func() bool { return len(obs.snapshot()) >= 1 }, "change report")

	seen := obs.snapshot()
	if len(seen) != 1 || seen[0].relayID != 1 || seen[0].on {
		t.Errorf("observations = %v, want relay 1 off", seen)
	}
}

// ============================================================
// Failure Handling
// ============================================================

func TestMonitor_FailureAndRecovery(t *testing.T) {
	src := newFakeSource(false)
	obs := &fakeObserver{}
	m := startMonitor(t, Config{Source: src, Notifier: obs})

	waitFor(t, time.Second, func() bool { return m.Healthy() }, "baseline poll")

	src.fail(errors.New("device unreachable"))
	waitFor(t, time.Second, func() bool { return !m.Healthy() }, "failure recorded")

	stats := m.Stats()
	if stats.Healthy {
		t.Error("stats should report unhealthy")
	}
	if stats.LastError == "" {
		t.Error("stats should carry the poll error")
	}
	if stats.RelayCount != 1 {
		t.Errorf("relay count = %d, want 1 (baseline kept)", stats.RelayCount)
	}

	// The relay flipped while the device was unreachable; recovery
	// diffs against the pre-outage baseline and reports it.
	src.set(true)
	waitFor(t, time.Second, func() bool { return m.Healthy() }, "recovery")
	waitFor(t, time.Second, func() bool { return len(obs.snapshot()) >= 1 }, "outage change report")

	seen := obs.snapshot()
	if len(seen) != 1 || seen[0].relayID != 0 || !seen[0].on {
		t.Errorf("observations = %v, want relay 0 on", seen)
	}
}

func TestMonitor_StatsBeforeFirstPoll(t *testing.T) {
	m, err := NewMonitor(Config{Source: newFakeSource()})
	if err != nil {
		t.Fatalf("NewMonitor failed: %v", err)
	}

	stats := m.Stats()
	if stats.Healthy {
		t.Error("unpolled monitor should not report healthy")
	}
	if stats.LastPoll != nil {
		t.Errorf("last poll = %v, want nil", stats.LastPoll)
	}
	if m.Healthy() {
		t.Error("Healthy() should be false before first poll")
	}
}

// ============================================================
// Lifecycle
// ============================================================

func TestMonitor_StopTerminatesPolling(t *testing.T) {
	src := newFakeSource(false)
	m := startMonitor(t, Config{Source: src, Interval: 5 * time.Millisecond})

	waitFor(t, time.Second, func() bool { return src.callCount() >= 2 }, "polling underway")

	m.Stop()
	calls := src.callCount()
	time.Sleep(30 * time.Millisecond)
	if got := src.callCount(); got != calls {
		t.Errorf("polls continued after Stop: %d -> %d", calls, got)
	}

	// Repeated Stop is safe.
	m.Stop()
}

func TestMonitor_ContextCancelStopsPolling(t *testing.T) {
	src := newFakeSource(false)
	m, err := NewMonitor(Config{Source: src, Interval: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewMonitor failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	waitFor(t, time.Second, func() bool { return src.callCount() >= 1 }, "polling underway")

	cancel()
	time.Sleep(20 * time.Millisecond)
	calls := src.callCount()
	time.Sleep(30 * time.Millisecond)
	if got := src.callCount(); got != calls {
		t.Errorf("polls continued after context cancel: %d -> %d", calls, got)
	}

	// Stop must not hang after the loop exited via context.
	m.Stop()
}

func TestMonitor_StatesCopyIsolated(t *testing.T) {
	src := newFakeSource(true)
	m := startMonitor(t, Config{Source: src})

	waitFor(t, time.Second, func() bool { return len(m.States()) == 1 }, "baseline poll")

	states := m.States()
	states[0] = false
	if got := m.States(); !got[0] {
		t.Error("mutating the returned slice changed internal state")
	}
}
