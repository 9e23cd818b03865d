package oscillator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MinPeriod is the shortest accepted toggle period. The actuator's HTTP
// round trip makes sub-50ms periods unreliable, so they are rejected
// outright.
const MinPeriod = 50 * time.Millisecond

// closeTimeout bounds how long Close waits for active sessions to
// finish before aborting their in-flight actuator calls.
const closeTimeout = 10 * time.Second

// Actuator is the relay capability the controller drives. Implemented
// by *shelly.Client; reduced to three operations so tests can substitute
// an in-memory device.
type Actuator interface {
	// RelayState returns the relay's reported on/off state.
	RelayState(ctx context.Context, relayID int) (bool, error)

	// SetRelay commands the relay and returns the reported resulting
	// state, which may differ from the requested one.
	SetRelay(ctx context.Context, relayID int, on bool) (bool, error)

	// Toggle reads the relay's state and commands the opposite,
	// returning the reported resulting state.
	Toggle(ctx context.Context, relayID int) (bool, error)
}

// Logger is the minimal logging interface the controller needs.
// Satisfied by *logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output. Used when no logger is provided.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Notifier receives session lifecycle and relay state events. The
// events package fans these out to MQTT and WebSocket clients.
type Notifier interface {
	// SessionStarted fires once per session, before any actuator call.
	SessionStarted(snap Snapshot)

	// SessionEnded fires once per session, after the final state has
	// been enforced where applicable.
	SessionEnded(snap Snapshot)

	// RelayToggled fires after every successful toggle with the
	// relay's reported state.
	RelayToggled(relayID int, on bool)
}

// noopNotifier drops all events. Used when no notifier is provided.
type noopNotifier struct{}

func (noopNotifier) SessionStarted(Snapshot) {}
func (noopNotifier) SessionEnded(Snapshot)   {}
func (noopNotifier) RelayToggled(int, bool)  {}

// Deps contains the controller's dependencies.
type Deps struct {
	// Actuator drives the relays. Required.
	Actuator Actuator

	// Logger receives controller logs. Optional; discarded if nil.
	Logger Logger

	// Notifier receives session/relay events. Optional; can also be
	// set later with SetNotifier.
	Notifier Notifier
}

// Controller orchestrates oscillation sessions: it validates requests,
// tracks at most one active session per relay, runs the toggle loops
// and timeout watchers, and enforces terminal states on exit.
//
// Lifecycle: New → Start(ctx) → oscillation calls → Close. Close stops
// every active session and waits for bounded sessions to enforce their
// final state.
//
// Thread Safety: all methods are safe for concurrent use.
type Controller struct {
	actuator Actuator

	mu       sync.Mutex
	logger   Logger
	notifier Notifier
	sessions map[int]*Session    // keyed by relay id; active only
	byID     map[string]*Session // keyed by session UUID; active only
	started  bool
	closed   bool
	ctx      context.Context
	cancel   context.CancelFunc

	wg sync.WaitGroup
}

// New creates a controller. The actuator is required; logger and
// notifier fall back to no-ops.
func New(deps Deps) (*Controller, error) {
	if deps.Actuator == nil {
		return nil, errors.New("oscillator: actuator is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Controller{
		actuator: deps.Actuator,
		logger:   logger,
		notifier: notifier,
		sessions: make(map[int]*Session),
		byID:     make(map[string]*Session),
	}, nil
}

// SetLogger replaces the controller's logger.
func (c *Controller) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = logger
}

// SetNotifier replaces the controller's event notifier. Intended for
// wiring during startup, before sessions exist.
func (c *Controller) SetNotifier(n Notifier) {
	if n == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifier = n
}

// Start arms the controller. The context bounds every actuator call the
// controller makes; cancelling it aborts in-flight requests.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrControllerClosed
	}
	if c.started {
		return ErrAlreadyStarted
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.started = true
	return nil
}

// Close stops every active session and waits for them to finish —
// bounded sessions still enforce their final state on the way out. If
// sessions have not finished within closeTimeout, their in-flight
// actuator calls are aborted and an error is returned.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	stopped := c.StopAll()
	if stopped > 0 {
		c.log().Info("stopping active sessions", "count", stopped)
	}

	finished := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(closeTimeout):
		if cancel != nil {
			cancel()
		}
		return fmt.Errorf("oscillator: close timed out after %v waiting for %d session(s)", closeTimeout, stopped)
	}

	if cancel != nil {
		cancel()
	}
	return nil
}

// ─── Entry points ────────────────────────────────────────────────────────────

// Begin starts an unbounded oscillation: the relay toggles every period
// until the session is stopped. Returns the session handle immediately.
func (c *Controller) Begin(relayID int, period time.Duration) (*Session, error) {
	if err := validateCommon(relayID, period); err != nil {
		return nil, err
	}
	s := newSession(ModeUnbounded, relayID, period)
	return c.adopt(s)
}

// BeginTimeout starts a timeout-bounded oscillation: settle to
// startState if needed, toggle every period, and at the deadline stop
// and enforce finalState. Returns the session handle immediately; the
// settle step runs on the session's goroutine.
func (c *Controller) BeginTimeout(relayID int, period, timeout time.Duration, startState, finalState bool) (*Session, error) {
	if err := validateCommon(relayID, period); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTimeout, timeout)
	}
	s := newSession(ModeTimeout, relayID, period)
	s.timeout = timeout
	s.startState = startState
	s.finalState = finalState
	return c.adopt(s)
}

// BeginCycles starts a cycle-bounded oscillation: settle to startState
// if needed, toggle every period until the cycle count is reached (one
// cycle = two toggles), then enforce finalState. Returns the session
// handle immediately.
func (c *Controller) BeginCycles(relayID int, period time.Duration, cycles int, startState, finalState bool) (*Session, error) {
	if err := validateCommon(relayID, period); err != nil {
		return nil, err
	}
	if cycles <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCycles, cycles)
	}
	s := newSession(ModeCycles, relayID, period)
	s.cycles = cycles
	s.startState = startState
	s.finalState = finalState
	return c.adopt(s)
}

// Oscillate is the blocking form of Begin. It returns when the session
// finishes; cancelling ctx stops the session and waits for completion.
func (c *Controller) Oscillate(ctx context.Context, relayID int, period time.Duration) error {
	s, err := c.Begin(relayID, period)
	if err != nil {
		return err
	}
	return c.await(ctx, s)
}

// OscillateTimeout is the blocking form of BeginTimeout. On return the
// relay is at finalState unless the error record says otherwise.
func (c *Controller) OscillateTimeout(ctx context.Context, relayID int, period, timeout time.Duration, startState, finalState bool) error {
	s, err := c.BeginTimeout(relayID, period, timeout, startState, finalState)
	if err != nil {
		return err
	}
	return c.await(ctx, s)
}

// OscillateCycles is the blocking form of BeginCycles. On return the
// relay is at finalState unless the error record says otherwise.
func (c *Controller) OscillateCycles(ctx context.Context, relayID int, period time.Duration, cycles int, startState, finalState bool) error {
	s, err := c.BeginCycles(relayID, period, cycles, startState, finalState)
	if err != nil {
		return err
	}
	return c.await(ctx, s)
}

// StopOscillation idempotently latches stop for the relay's active
// session. Returns false if the relay has none. It does not block and
// never enforces a final state itself; bounded sessions do that on
// their own exit path.
func (c *Controller) StopOscillation(relayID int) bool {
	c.mu.Lock()
	s := c.sessions[relayID]
	c.mu.Unlock()
	if s == nil {
		return false
	}
	s.Stop()
	return true
}

// StopAll latches stop for every active session and returns how many
// were signalled. Used at shutdown.
func (c *Controller) StopAll() int {
	c.mu.Lock()
	active := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		active = append(active, s)
	}
	c.mu.Unlock()

	for _, s := range active {
		s.Stop()
	}
	return len(active)
}

// Session returns the relay's active session, if any.
func (c *Controller) Session(relayID int) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[relayID]
	return s, ok
}

// SessionByID returns an active session by UUID. Finished sessions are
// deregistered and no longer reachable here; their handles stay valid.
func (c *Controller) SessionByID(id string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.byID[id]
	return s, ok
}

// Sessions returns the active sessions ordered by relay id.
func (c *Controller) Sessions() []*Session {
	c.mu.Lock()
	out := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].relayID < out[j].relayID })
	return out
}

// ActiveCount returns the number of active sessions.
func (c *Controller) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// ─── Session execution ───────────────────────────────────────────────────────

// validateCommon rejects bad parameters before any network or goroutine
// activity.
func validateCommon(relayID int, period time.Duration) error {
	if relayID < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRelayID, relayID)
	}
	if period < MinPeriod {
		return fmt.Errorf("%w: %v (minimum %v)", ErrPeriodTooShort, period, MinPeriod)
	}
	return nil
}

// adopt registers the session under its relay id and launches its
// goroutine. One active session per relay: a busy relay rejects the
// newcomer with ErrSessionActive.
func (c *Controller) adopt(s *Session) (*Session, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrControllerClosed
	}
	if !c.started {
		c.mu.Unlock()
		return nil, ErrNotStarted
	}
	if existing, ok := c.sessions[s.relayID]; ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: relay %d has session %s", ErrSessionActive, s.relayID, existing.id)
	}
	c.sessions[s.relayID] = s
	c.byID[s.id] = s
	// Counted before the lock releases: a Close that sees the session
	// registered is guaranteed to wait for its goroutine.
	c.wg.Add(1)
	c.mu.Unlock()

	c.log().Info("oscillation started",
		"session_id", s.id,
		"relay_id", s.relayID,
		"mode", s.mode,
		"period", s.period,
	)

	go func() {
		defer c.wg.Done()
		c.run(s)
	}()
	return s, nil
}

// release deregisters a finished session.
func (c *Controller) release(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessions[s.relayID] == s {
		delete(c.sessions, s.relayID)
	}
	delete(c.byID, s.id)
}

// run executes one session from first actuator call to completion.
func (c *Controller) run(s *Session) {
	c.notify().SessionStarted(s.Snapshot())

	switch s.mode {
	case ModeUnbounded:
		c.runUnbounded(s)
	case ModeTimeout:
		c.runTimeout(s)
	case ModeCycles:
		c.runCycles(s)
	}

	s.setPhase(PhaseDone)
	s.markEnded()
	c.release(s)
	close(s.done)

	snap := s.Snapshot()
	if snap.Error != "" {
		c.log().Warn("oscillation finished with errors",
			"session_id", s.id,
			"relay_id", s.relayID,
			"cycles", snap.Cycles,
			"error", snap.Error,
		)
	} else {
		c.log().Info("oscillation finished",
			"session_id", s.id,
			"relay_id", s.relayID,
			"cycles", snap.Cycles,
		)
	}
	c.notify().SessionEnded(snap)
}

// runUnbounded toggles until stopped. No settle, no terminal state.
func (c *Controller) runUnbounded(s *Session) {
	s.setPhase(PhaseToggling)
	c.toggleLoop(s, nil)
	close(s.loopDone)
	s.Stop()
}

// runCycles settles to the start state, toggles until the cycle count
// is reached or stop fires, then enforces the final state. Loop and
// enforcement share this goroutine, so ordering is structural.
func (c *Controller) runCycles(s *Session) {
	if err := c.settle(s); err != nil {
		s.recordErr(err)
	} else {
		target := int64(2 * s.cycles) // one cycle = two toggles
		s.setPhase(PhaseToggling)
		c.toggleLoop(s, func() bool { return s.toggles.Load() < target })
	}
	close(s.loopDone)
	s.Stop()
	c.enforceFinal(s)
}

// runTimeout settles, runs the toggle loop on its own goroutine, and
// watches the deadline with a single timer wake. At the deadline (or an
// earlier external stop) it latches stop, joins the loop via loopDone,
// and only then enforces the final state — the join guarantees the
// loop's last toggle has landed before the terminal write.
func (c *Controller) runTimeout(s *Session) {
	if err := c.settle(s); err != nil {
		s.recordErr(err)
		close(s.loopDone)
	} else {
		s.setPhase(PhaseToggling)
		go func() {
			defer close(s.loopDone)
			c.toggleLoop(s, nil)
		}()

		deadline := time.NewTimer(s.timeout)
		select {
		case <-deadline.C:
		case <-s.stopCh:
		case <-c.ctx.Done():
		}
		deadline.Stop()
	}

	s.Stop()
	<-s.loopDone
	c.enforceFinal(s)
}

// toggleLoop drives the relay until the stop latch fires, the
// controller context ends, keepGoing reports false (nil means
// unbounded), or a transport error occurs. Each iteration toggles,
// counts, then sleeps one period; the count ties to toggles performed,
// so a stop that interrupts the sleep still reflects the toggle that
// preceded it.
func (c *Controller) toggleLoop(s *Session, keepGoing func() bool) {
	for c.ctx.Err() == nil && !s.Stopped() && (keepGoing == nil || keepGoing()) {
		state, err := c.actuator.Toggle(c.ctx, s.relayID)
		if err != nil {
			s.recordErr(fmt.Errorf("toggle relay %d: %w", s.relayID, err))
			return
		}
		s.toggles.Add(1)
		c.notify().RelayToggled(s.relayID, state)
		c.log().Debug("relay toggled",
			"session_id", s.id,
			"relay_id", s.relayID,
			"state", state,
			"cycles", s.Cycles(),
		)
		if !c.pause(s, s.period) {
			return
		}
	}
}

// settle brings the relay to the session's start state. Already-there
// is a no-op: no command, no delay. A command is followed by one period
// of settling time. The settling transition never counts as a toggle.
func (c *Controller) settle(s *Session) error {
	state, err := c.actuator.RelayState(c.ctx, s.relayID)
	if err != nil {
		return fmt.Errorf("start state check relay %d: %w", s.relayID, err)
	}
	if state == s.startState {
		return nil
	}

	s.setPhase(PhaseSettling)
	if _, err := c.actuator.SetRelay(c.ctx, s.relayID, s.startState); err != nil {
		return fmt.Errorf("set start state relay %d: %w", s.relayID, err)
	}
	c.pause(s, s.period)
	return nil
}

// enforceFinal commands the relay to the session's final state if its
// reported state differs. Called only after the toggle loop has exited.
func (c *Controller) enforceFinal(s *Session) {
	s.setPhase(PhaseEnforcingFinal)

	state, err := c.actuator.RelayState(c.ctx, s.relayID)
	if err != nil {
		s.recordErr(fmt.Errorf("final state check relay %d: %w", s.relayID, err))
		return
	}
	if state == s.finalState {
		return
	}
	if _, err := c.actuator.SetRelay(c.ctx, s.relayID, s.finalState); err != nil {
		s.recordErr(fmt.Errorf("enforce final state relay %d: %w", s.relayID, err))
	}
}

// pause sleeps for d, returning false if the stop latch or the
// controller context fired first.
func (c *Controller) pause(s *Session, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.stopCh:
		return false
	case <-c.ctx.Done():
		return false
	}
}

// await blocks until the session finishes. Cancelling ctx latches the
// session's stop and still waits for completion (bounded sessions
// enforce their final state on the way out), then reports both errors.
func (c *Controller) await(ctx context.Context, s *Session) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		s.Stop()
		<-s.done
		return errors.Join(ctx.Err(), s.Err())
	}
}

// log returns the current logger under lock.
func (c *Controller) log() Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logger
}

// notify returns the current notifier under lock.
func (c *Controller) notify() Notifier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notifier
}
