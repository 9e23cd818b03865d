// Package remote accepts relay commands over MQTT.
//
// It is the inbound half of the MQTT surface: the events package
// publishes state outward, this package listens for commands and
// answers each one with an acknowledgment.
//
// # Topics
//
//	{prefix}/command/relay/{id}   inbound commands (subscribed with +)
//	{prefix}/ack/relay/{id}       per-command acknowledgment
//
// # Commands
//
//	{"action": "oscillate", "params": {"period_s": 0.5, "cycles": 10}}
//	{"action": "oscillate", "params": {"period_s": 0.5, "timeout_s": 30}}
//	{"action": "oscillate", "params": {"period_s": 0.5}}
//	{"action": "stop"}
//	{"action": "power", "params": {"on": true}}
//	{"action": "toggle"}
//
// An oscillate command is acknowledged with status "accepted" and the
// session id as soon as the session starts; progress and completion
// arrive on the session event topic. Stop, power, and toggle are
// synchronous and acknowledged with status "ok" and their result.
// Rejected or failed commands get status "error" with a machine
// readable code.
//
// Commands carry an optional "id" field which is echoed in the ack so
// callers can correlate over the broker's at-least-once delivery.
package remote
