package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-pulse/internal/relay"
)

// HealthStatus is the aggregated health response.
//
// Status is "ok" when every configured dependency is answering and
// "degraded" otherwise; the per-component fields say which one is not.
type HealthStatus struct {
	Status         string         `json:"status"`
	Version        string         `json:"version"`
	Actuator       ActuatorHealth `json:"actuator"`
	MQTT           MQTTHealth     `json:"mqtt"`
	Monitor        *relay.Stats   `json:"monitor,omitempty"`
	ActiveSessions int            `json:"active_sessions"`
}

// ActuatorHealth reports whether the relay device answered a live probe.
type ActuatorHealth struct {
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
}

// MQTTHealth reports the broker link state.
type MQTTHealth struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}

// handleSystemHealth probes the relay device and reports aggregated
// component health. Always returns 200; monitoring readers inspect the
// status field rather than the HTTP code.
func (s *Server) handleSystemHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{
		Status:         "ok",
		Version:        s.version,
		ActiveSessions: s.controller.ActiveCount(),
	}

	if err := s.actuator.HealthCheck(r.Context()); err != nil {
		health.Status = "degraded"
		health.Actuator = ActuatorHealth{Reachable: false, Error: err.Error()}
	} else {
		health.Actuator = ActuatorHealth{Reachable: true}
	}

	if s.mqtt != nil {
		health.MQTT = MQTTHealth{Enabled: true, Connected: s.mqtt.IsConnected()}
		if !health.MQTT.Connected {
			health.Status = "degraded"
		}
	}

	if s.monitor != nil {
		stats := s.monitor.Stats()
		health.Monitor = &stats
	}

	writeJSON(w, http.StatusOK, health)
}

// handleSystemInfo returns build and process identification.
func (s *Server) handleSystemInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":    "graypulse",
		"version":    s.version,
		"commit":     s.commit,
		"build_date": s.buildDate,
		"go_version": runtime.Version(),
		"uptime_s":   int64(time.Since(s.startTime).Seconds()),
	})
}

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	MQTT          MQTTMetrics    `json:"mqtt"`
	Sessions      SessionMetrics `json:"sessions"`
	Monitor       *relay.Stats   `json:"monitor,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// SessionMetrics contains oscillation session statistics.
type SessionMetrics struct {
	// Active is the number of sessions currently toggling.
	Active int `json:"active"`

	// Toggles is the combined toggle count of the active sessions.
	// Completed sessions drop out of the sum when they are released.
	Toggles int64 `json:"toggles"`
}

// handleSystemMetrics returns runtime and component metrics.
func (s *Server) handleSystemMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
	}

	sessions := s.controller.Sessions()
	metrics.Sessions.Active = len(sessions)
	for _, sess := range sessions {
		metrics.Sessions.Toggles += sess.Toggles()
	}

	if s.mqtt != nil {
		metrics.MQTT = MQTTMetrics{Connected: s.mqtt.IsConnected()}
	}

	if s.monitor != nil {
		stats := s.monitor.Stats()
		metrics.Monitor = &stats
	}

	writeJSON(w, http.StatusOK, metrics)
}
