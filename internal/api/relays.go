package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-pulse/internal/shelly"
)

// RelayInfo is one relay's live state, as returned by the list and get
// endpoints. State comes from the device on every request; this service
// holds no relay-state cache of its own.
type RelayInfo struct {
	ID          int    `json:"id"`
	On          bool   `json:"on"`
	Oscillating bool   `json:"oscillating"`
	SessionID   string `json:"session_id,omitempty"`
}

// handleListRelays returns the live state of every relay on the device.
func (s *Server) handleListRelays(w http.ResponseWriter, r *http.Request) {
	states, err := s.actuator.Relays(r.Context())
	if err != nil {
		writeActuatorError(w, err)
		return
	}

	relays := make([]RelayInfo, len(states))
	for i, on := range states {
		relays[i] = s.relayInfo(i, on)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"relays": relays,
		"count":  len(relays),
	})
}

// handleGetRelay returns a single relay's live state.
func (s *Server) handleGetRelay(w http.ResponseWriter, r *http.Request) {
	id, err := relayIDParam(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	on, err := s.actuator.RelayState(r.Context(), id)
	if err != nil {
		writeActuatorError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.relayInfo(id, on))
}

// powerRequest is the body of PUT /relays/{id}/power.
type powerRequest struct {
	On *bool `json:"on"`
}

// handlePower commands a relay to an explicit state. The response
// carries the state the device reports afterwards, which is
// authoritative over the requested one.
func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	id, err := relayIDParam(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var req powerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.On == nil {
		writeBadRequest(w, "on field is required")
		return
	}

	reported, err := s.actuator.SetRelay(r.Context(), id, *req.On)
	if err != nil {
		writeActuatorError(w, err)
		return
	}

	if s.notifier != nil {
		s.notifier.RelayCommanded(id, reported)
	}

	writeJSON(w, http.StatusOK, s.relayInfo(id, reported))
}

// handleToggle flips a relay and returns the device's reported state.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	id, err := relayIDParam(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	reported, err := s.actuator.Toggle(r.Context(), id)
	if err != nil {
		writeActuatorError(w, err)
		return
	}

	if s.notifier != nil {
		s.notifier.RelayCommanded(id, reported)
	}

	writeJSON(w, http.StatusOK, s.relayInfo(id, reported))
}

// relayInfo assembles one relay's response entry, annotated with any
// active oscillation session.
func (s *Server) relayInfo(id int, on bool) RelayInfo {
	info := RelayInfo{ID: id, On: on}
	if sess, ok := s.controller.Session(id); ok {
		info.Oscillating = true
		info.SessionID = sess.ID()
	}
	return info
}

// relayIDParam extracts and validates the {id} route parameter.
func relayIDParam(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 0 {
		return 0, fmt.Errorf("relay id must be a non-negative integer")
	}
	return id, nil
}

// writeActuatorError maps device client failures onto HTTP statuses.
func writeActuatorError(w http.ResponseWriter, err error) {
	var terr *shelly.TransportError
	switch {
	case errors.Is(err, shelly.ErrUnknownRelay):
		writeNotFound(w, "relay not found")
	case errors.As(err, &terr):
		writeBadGateway(w, "relay device unreachable")
	default:
		writeInternalError(w, "relay request failed")
	}
}
