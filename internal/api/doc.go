// Package api implements the HTTP REST API and WebSocket server for Gray Pulse.
//
// This package provides:
//   - REST endpoints for direct relay control and oscillation sessions
//   - WebSocket hub for real-time relay and session event broadcasts
//   - Static bearer-token auth on relay-mutating routes
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - TLS support for deployments beyond the bench
//
// # Architecture
//
// The API server sits between clients (dashboards, scripts, curl) and
// the oscillation controller + relay device. Mutations go straight to
// the controller or the device client; resulting state changes flow
// back to subscribers through the events publisher, which broadcasts on
// the hub and publishes to MQTT.
//
// # Security
//
// Authentication is a single static bearer token from configuration,
// checked in constant time on mutating routes only. Reads, the health
// endpoints, and the WebSocket event stream are open; the service
// targets single-operator LAN deployments, not multi-user installs.
//
// # Graceful Degradation
//
// The server operates without MQTT and without the relay monitor; the
// health and metrics endpoints simply report those components absent.
// Actuator failures surface as 502 responses per request rather than
// taking the server down.
package api
