// Package mqtt provides MQTT client connectivity for Gray Pulse.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Gray Pulse uses MQTT as its integration bus: relay state and session
// events flow out to home-automation systems, and relay commands flow
// in from them. The broker (Mosquitto) decouples the service from its
// consumers.
//
//	Home Automation ↔ MQTT Broker ↔ Gray Pulse ↔ Relay Device
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all relay commands
//	err = client.Subscribe(client.Topics().AllRelayCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a relay state change, retained
//	topic := client.Topics().RelayState(0)
//	client.PublishRetained(topic, []byte(`{"relay_id":0,"on":true}`))
package mqtt
