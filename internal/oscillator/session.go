package oscillator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Mode identifies what bounds a session's toggle loop.
type Mode string

// Session modes.
const (
	// ModeUnbounded toggles until stopped. No terminal state is
	// enforced; the relay stays wherever the last toggle left it.
	ModeUnbounded Mode = "unbounded"

	// ModeTimeout toggles until a wall-clock deadline, then enforces
	// the final state.
	ModeTimeout Mode = "timeout"

	// ModeCycles toggles until a cycle count is reached, then enforces
	// the final state.
	ModeCycles Mode = "cycles"
)

// Phase is a session's observable lifecycle position.
type Phase string

// Session phases, in lifecycle order. Phases only ever advance.
const (
	PhaseIdle           Phase = "idle"
	PhaseSettling       Phase = "settling"
	PhaseToggling       Phase = "toggling"
	PhaseStopRequested  Phase = "stop_requested"
	PhaseEnforcingFinal Phase = "enforcing_final"
	PhaseDone           Phase = "done"
)

// phaseOrder positions each phase in the lifecycle so writers can never
// move a session backwards (a Stop racing final enforcement must not
// regress the phase).
var phaseOrder = map[Phase]int{
	PhaseIdle:           0,
	PhaseSettling:       1,
	PhaseToggling:       2,
	PhaseStopRequested:  3,
	PhaseEnforcingFinal: 4,
	PhaseDone:           5,
}

// Session is the state bundle for one in-flight oscillation: the stop
// latch, the toggle count, the phase, and the error record. It is
// created by a Controller and owned exclusively by it; callers interact
// through the handle methods, all of which are safe for concurrent use.
//
// Sessions are never reused. Every oscillation request creates a fresh
// one with independently owned state, so concurrent sessions on
// different relays cannot corrupt each other.
type Session struct {
	id      string
	relayID int
	mode    Mode
	period  time.Duration

	// Bounded-mode parameters; meaningful for ModeTimeout/ModeCycles.
	timeout    time.Duration
	cycles     int
	startState bool
	finalState bool

	startedAt time.Time

	// toggles counts performed toggles. Written only by the toggle
	// loop; half-cycles = toggles * 0.5, one full cycle = two toggles.
	toggles atomic.Int64

	// Stop latch: fires exactly once, never resets.
	stopOnce sync.Once
	stopCh   chan struct{}

	// loopDone closes when the toggle loop has exited. The timeout
	// watcher blocks on it before enforcing the final state, which
	// guarantees the loop's last write has landed.
	loopDone chan struct{}

	// done closes when the session is fully finished, including final
	// state enforcement where applicable.
	done chan struct{}

	mu      sync.Mutex
	phase   Phase
	err     error
	endedAt time.Time
}

// newSession creates a fresh session in PhaseIdle.
func newSession(mode Mode, relayID int, period time.Duration) *Session {
	return &Session{
		id:        uuid.NewString(),
		relayID:   relayID,
		mode:      mode,
		period:    period,
		startedAt: time.Now().UTC(),
		phase:     PhaseIdle,
		stopCh:    make(chan struct{}),
		loopDone:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// ID returns the session's UUID.
func (s *Session) ID() string { return s.id }

// RelayID returns the target relay.
func (s *Session) RelayID() int { return s.relayID }

// Mode returns what bounds the session.
func (s *Session) Mode() Mode { return s.mode }

// Period returns the time between toggles.
func (s *Session) Period() time.Duration { return s.period }

// Stop latches the session's stop signal. Idempotent and safe from any
// goroutine; repeated calls equal one call. Stop never enforces the
// final state itself; the bounded run paths do that on their own exit.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.setPhase(PhaseStopRequested)
		close(s.stopCh)
	})
}

// Stopped reports whether the stop latch has fired.
func (s *Session) Stopped() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// Done returns a channel that closes when the session is fully
// finished, including final state enforcement where applicable.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session finishes or ctx is cancelled. It is
// purely observational: cancelling the context abandons the wait
// without stopping the session.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the session's accumulated error record: transport
// failures from the settle step, the toggle loop, and final state
// enforcement, joined in occurrence order. Nil while nothing has
// failed; stable once Done is closed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Toggles returns the number of toggles performed so far.
func (s *Session) Toggles() int64 { return s.toggles.Load() }

// Cycles returns completed cycles with half-cycle granularity
// (one toggle = 0.5, a full cycle = two toggles).
func (s *Session) Cycles() float64 { return float64(s.toggles.Load()) / 2 }

// Phase returns the session's current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// setPhase advances the phase. Writes that would move backwards are
// dropped.
func (s *Session) setPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if phaseOrder[p] > phaseOrder[s.phase] {
		s.phase = p
	}
}

// recordErr appends a failure to the session's error record.
func (s *Session) recordErr(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = errors.Join(s.err, err)
}

// markEnded stamps the completion time once.
func (s *Session) markEnded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endedAt.IsZero() {
		s.endedAt = time.Now().UTC()
	}
}

// Snapshot is a point-in-time copy of a session's observable state,
// used by the API, events, and logs.
type Snapshot struct {
	ID      string  `json:"id"`
	RelayID int     `json:"relay_id"`
	Mode    Mode    `json:"mode"`
	Period  float64 `json:"period_s"`

	// TimeoutS and CycleTarget carry the session's bound; only the one
	// matching Mode is set.
	TimeoutS    float64 `json:"timeout_s,omitempty"`
	CycleTarget int     `json:"cycle_target,omitempty"`

	// StartState and FinalState are meaningful for bounded modes only.
	StartState bool `json:"start_state"`
	FinalState bool `json:"final_state"`

	Toggles   int64      `json:"toggles"`
	Cycles    float64    `json:"cycles_completed"`
	Phase     Phase      `json:"phase"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Snapshot returns a point-in-time copy of the session's state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	phase := s.phase
	var errStr string
	if s.err != nil {
		errStr = s.err.Error()
	}
	var endedAt *time.Time
	if !s.endedAt.IsZero() {
		t := s.endedAt
		endedAt = &t
	}
	s.mu.Unlock()

	toggles := s.toggles.Load()
	snap := Snapshot{
		ID:         s.id,
		RelayID:    s.relayID,
		Mode:       s.mode,
		Period:     s.period.Seconds(),
		StartState: s.startState,
		FinalState: s.finalState,
		Toggles:    toggles,
		Cycles:     float64(toggles) / 2,
		Phase:      phase,
		StartedAt:  s.startedAt,
		EndedAt:    endedAt,
		Error:      errStr,
	}
	switch s.mode {
	case ModeTimeout:
		snap.TimeoutS = s.timeout.Seconds()
	case ModeCycles:
		snap.CycleTarget = s.cycles
	case ModeUnbounded:
		// no bound to report
	}
	return snap
}
