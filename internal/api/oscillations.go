package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-pulse/internal/oscillator"
)

// oscillateRequest is the body of POST /relays/{id}/oscillate. The
// field names match the MQTT command payload so clients can reuse one
// encoder for both surfaces.
type oscillateRequest struct {
	PeriodS    float64 `json:"period_s"`
	TimeoutS   float64 `json:"timeout_s"`
	Cycles     int     `json:"cycles"`
	StartState *bool   `json:"start_state"`
	FinalState *bool   `json:"final_state"`

	// Wait holds the response until the session finishes and returns
	// the final snapshot instead of 202. Only valid for bounded modes.
	Wait bool `json:"wait"`
}

// handleOscillate starts an oscillation session on a relay.
//
// The mode is inferred from which bound is present: cycles, timeout, or
// neither (unbounded). With wait set the handler blocks until the
// session ends; the wait is bounded by the server's write timeout, so
// it only suits sessions shorter than that.
func (s *Server) handleOscillate(w http.ResponseWriter, r *http.Request) {
	id, err := relayIDParam(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var req oscillateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.PeriodS <= 0 {
		writeBadRequest(w, "period_s is required and must be positive")
		return
	}
	// A negative bound must not read as "absent" and fall through to an
	// unbounded session.
	if req.TimeoutS < 0 {
		writeBadRequest(w, "timeout_s must be positive")
		return
	}
	if req.Cycles < 0 {
		writeBadRequest(w, "cycles must be positive")
		return
	}
	if req.TimeoutS > 0 && req.Cycles > 0 {
		writeBadRequest(w, "timeout_s and cycles are mutually exclusive")
		return
	}
	if req.Wait && req.TimeoutS <= 0 && req.Cycles <= 0 {
		writeBadRequest(w, "wait requires timeout_s or cycles")
		return
	}

	period := time.Duration(req.PeriodS * float64(time.Second))

	// Bounded sessions default to starting on and finishing off.
	startState := true
	if req.StartState != nil {
		startState = *req.StartState
	}
	finalState := false
	if req.FinalState != nil {
		finalState = *req.FinalState
	}

	var session *oscillator.Session
	switch {
	case req.Cycles > 0:
		session, err = s.controller.BeginCycles(id, period, req.Cycles, startState, finalState)
	case req.TimeoutS > 0:
		timeout := time.Duration(req.TimeoutS * float64(time.Second))
		session, err = s.controller.BeginTimeout(id, period, timeout, startState, finalState)
	default:
		session, err = s.controller.Begin(id, period)
	}
	if err != nil {
		writeControllerError(w, err)
		return
	}

	if req.Wait {
		// Wait is observational; a dropped client does not stop the
		// session.
		//nolint:errcheck // The snapshot's error field carries any loop failure
		session.Wait(r.Context())
		writeJSON(w, http.StatusOK, session.Snapshot())
		return
	}

	writeJSON(w, http.StatusAccepted, session.Snapshot())
}

// handleStopRelay stops the active session on a relay, reporting
// whether one existed.
func (s *Server) handleStopRelay(w http.ResponseWriter, r *http.Request) {
	id, err := relayIDParam(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	stopped := s.controller.StopOscillation(id)

	writeJSON(w, http.StatusOK, map[string]any{
		"relay_id": id,
		"stopped":  stopped,
	})
}

// handleListSessions returns snapshots of all active sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.controller.Sessions()

	snapshots := make([]oscillator.Snapshot, len(sessions))
	for i, sess := range sessions {
		snapshots[i] = sess.Snapshot()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": snapshots,
		"count":    len(snapshots),
	})
}

// handleGetSession returns one active session by its UUID.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.controller.SessionByID(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "session not found")
		return
	}

	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// handleStopSession requests a stop by session UUID and returns the
// session's snapshot, which will show phase stop_requested until the
// loop observes the latch.
func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.controller.SessionByID(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "session not found")
		return
	}

	sess.Stop()

	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// writeControllerError maps session-start failures onto HTTP statuses.
func writeControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, oscillator.ErrSessionActive):
		writeConflict(w, "relay already has an active session")
	case errors.Is(err, oscillator.ErrPeriodTooShort),
		errors.Is(err, oscillator.ErrInvalidRelayID),
		errors.Is(err, oscillator.ErrInvalidCycles),
		errors.Is(err, oscillator.ErrInvalidTimeout):
		writeBadRequest(w, err.Error())
	case errors.Is(err, oscillator.ErrControllerClosed),
		errors.Is(err, oscillator.ErrNotStarted):
		writeUnavailable(w, "oscillation controller is not running")
	default:
		writeInternalError(w, "failed to start session")
	}
}
