// Package events fans relay and oscillation session events out to
// external consumers over MQTT and WebSocket.
//
// The Publisher is the single integration point between the oscillation
// controller, the relay monitor, and the outside world. It implements
// oscillator.Notifier, so the controller reports every toggle and
// session transition through it, and the monitor reports externally
// observed relay changes the same way.
//
// # Event Flow
//
//	Controller ──┐
//	Monitor ─────┼──▶ Publisher ──▶ MQTT  {prefix}/relay/{id}/state (retained)
//	API/Bridge ──┘        │              {prefix}/session/event
//	                      └─────────▶ WebSocket  relay.state_changed
//	                                             session.started
//	                                             session.ended
//
// Both sinks are optional: with MQTT disabled the publisher still feeds
// WebSocket clients, and vice versa. Delivery is best effort; failures
// are logged and dropped so event publishing never slows a running
// oscillation.
//
// # Usage
//
//	pub := events.New(events.Deps{
//	    MQTT:   mqttClient,
//	    Hub:    hub,
//	    Logger: logger,
//	    Topics: mqttClient.Topics(),
//	    QoS:    cfg.MQTT.QoS,
//	})
//	controller.SetNotifier(pub)
package events
