package relay

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-pulse/internal/oscillator"
)

// DefaultInterval is the poll cadence when none is configured.
const DefaultInterval = 2 * time.Second

// StatusSource reads the device's relay states. Implemented by
// *shelly.Client.
type StatusSource interface {
	// Relays returns the on/off state of every relay, indexed by
	// relay id.
	Relays(ctx context.Context) ([]bool, error)
}

// SessionChecker reports whether a relay has an active oscillation
// session. Implemented by *oscillator.Controller.
type SessionChecker interface {
	Session(relayID int) (*oscillator.Session, bool)
}

// Notifier receives externally observed relay changes. Implemented by
// *events.Publisher.
type Notifier interface {
	RelayObserved(relayID int, on bool)
}

// Logger defines the logging interface for the monitor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds configuration for the monitor.
type Config struct {
	// Interval is how often to poll the device. Default: 2 seconds.
	Interval time.Duration

	// Source reads device state. Required.
	Source StatusSource

	// Sessions identifies relays owned by an oscillation session, whose
	// changes are already published per toggle. Optional.
	Sessions SessionChecker

	// Notifier receives externally observed changes. Optional.
	Notifier Notifier
}

// Monitor polls the device for relay state changes made outside this
// service, typically via the device's physical button or its own web
// UI, and reports them to the notifier.
//
// The first successful poll establishes a baseline and reports
// nothing; each later poll reports the relays whose state differs from
// the previous one. Relays with an active oscillation session are
// excluded, since the session already publishes every toggle.
type Monitor struct {
	interval time.Duration
	source   StatusSource
	sessions SessionChecker
	notifier Notifier

	// mu guards the poll results below. lastPoll is the time of the
	// last successful poll; failures counts consecutive failed ones.
	mu        sync.RWMutex
	states    []bool
	baselined bool
	lastPoll  time.Time
	lastErr   error
	failures  int

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// change is one relay transition found by a poll.
type change struct {
	relayID int
	on      bool
}

// NewMonitor creates a monitor.
func NewMonitor(cfg Config) (*Monitor, error) {
	if cfg.Source == nil {
		return nil, ErrNoSource
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		interval: interval,
		source:   cfg.Source,
		sessions: cfg.Sessions,
		notifier: cfg.Notifier,
		done:     make(chan struct{}),
		logger:   noopLogger{},
	}, nil
}

// SetLogger sets the logger for this monitor.
func (m *Monitor) SetLogger(logger Logger) {
	m.loggerMu.Lock()
	m.logger = logger
	m.loggerMu.Unlock()
}

// Start begins polling. Call Stop to shut down.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.pollLoop(ctx)
}

// Stop gracefully stops polling. Safe to call multiple times.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		m.wg.Wait()
	})
}

// States returns a copy of the last successfully polled relay states.
// Empty until the first poll completes.
func (m *Monitor) States() []bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]bool(nil), m.states...)
}

// Healthy reports whether the device answered the most recent poll.
func (m *Monitor) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.baselined && m.lastErr == nil
}

// Stats holds the monitor's view of device reachability.
type Stats struct {
	Healthy    bool       `json:"healthy"`
	RelayCount int        `json:"relay_count"`
	LastPoll   *time.Time `json:"last_poll,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

// Stats returns current statistics for the monitor.
func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Healthy:    m.baselined && m.lastErr == nil,
		RelayCount: len(m.states),
	}
	if !m.lastPoll.IsZero() {
		t := m.lastPoll
		stats.LastPoll = &t
	}
	if m.lastErr != nil {
		stats.LastError = m.lastErr.Error()
	}
	return stats
}

// pollLoop runs the periodic device poll.
func (m *Monitor) pollLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Establish the baseline straight away rather than waiting a tick.
	m.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

// poll reads the device once and reports any external changes.
func (m *Monitor) poll(ctx context.Context) {
	states, err := m.source.Relays(ctx)
	if err != nil {
		m.recordFailure(err)
		return
	}

	for _, c := range m.reconcile(states) {
		m.log().Info("external relay change detected", "relay_id", c.relayID, "on", c.on)
		if m.notifier != nil {
			m.notifier.RelayObserved(c.relayID, c.on)
		}
	}
}

// reconcile stores the new states and returns the external changes
// since the previous successful poll. Relays that appeared since the
// last poll are baselined silently.
func (m *Monitor) reconcile(states []bool) []change {
	m.mu.Lock()
	prev := m.states
	first := !m.baselined
	recoveredAfter := m.failures

	m.states = append([]bool(nil), states...)
	m.baselined = true
	m.lastPoll = time.Now()
	m.lastErr = nil
	m.failures = 0

	var changed []change
	if !first {
		limit := len(prev)
		if len(states) < limit {
			limit = len(states)
		}
		for i := 0; i < limit; i++ {
			if prev[i] != states[i] {
				changed = append(changed, change{relayID: i, on: states[i]})
			}
		}
	}
	m.mu.Unlock()

	if first {
		m.log().Info("relay monitor baseline established", "relays", len(states))
	}
	if recoveredAfter > 0 {
		m.log().Info("device polling recovered", "failed_polls", recoveredAfter)
	}

	if m.sessions == nil || len(changed) == 0 {
		return changed
	}

	// Session-owned relays flip on every half period; those changes are
	// published per toggle, not as external ones.
	kept := changed[:0]
	for _, c := range changed {
		if _, active := m.sessions.Session(c.relayID); active {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// recordFailure notes a failed poll. The previous baseline is kept, so
// changes made during an outage are still reported once polling
// recovers.
func (m *Monitor) recordFailure(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.failures++
	count := m.failures
	m.mu.Unlock()

	if count == 1 {
		m.log().Warn("device poll failed", "error", err)
	} else {
		m.log().Debug("device poll failed", "consecutive", count, "error", err)
	}
}

// log returns the current logger under lock.
func (m *Monitor) log() Logger {
	m.loggerMu.RLock()
	defer m.loggerMu.RUnlock()
	return m.logger
}
