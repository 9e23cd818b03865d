// Package relay watches the physical device for state changes made
// outside this service.
//
// The relay can change state without any API or MQTT command: the
// device has a physical button, its own web UI, and configured input
// switches. The Monitor polls the device on a fixed interval, diffs
// each result against the previous one, and reports transitions to a
// notifier so MQTT and WebSocket consumers stay in sync with reality.
//
// Relays owned by an active oscillation session are excluded from
// change reporting; the session already publishes every toggle, and
// labelling its flips as external would be wrong.
//
// # Usage
//
//	monitor, err := relay.NewMonitor(relay.Config{
//	    Interval: cfg.Monitor.Interval,
//	    Source:   shellyClient,
//	    Sessions: controller,
//	    Notifier: publisher,
//	})
//	if err != nil {
//	    return err
//	}
//	monitor.SetLogger(logger)
//	monitor.Start(ctx)
//	defer monitor.Stop()
//
// Poll failures keep the previous baseline, so a change made while the
// device was unreachable is still reported once polling recovers.
package relay
