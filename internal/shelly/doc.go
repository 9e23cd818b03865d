// Package shelly provides the HTTP transport facade for Shelly Gen1
// relay actuators.
//
// The facade is deliberately thin: two device endpoints (GET /status,
// GET /relay/{id}?turn=on|off) cover every operation, and the package
// adds only request/response mapping, timeout propagation and an error
// taxonomy on top. All interesting behaviour (oscillation, session
// tracking, cancellation) lives above it in the oscillator package,
// which consumes this client through a narrow interface.
//
// # Error Taxonomy
//
//   - TransportError: device unreachable, request timed out, or non-OK
//     HTTP status. Carries the operation and URL for diagnostics.
//   - ErrUnknownRelay: relay index not present on the device.
//   - ErrDecode: device answered with a body that is not valid JSON.
//
// # Usage
//
//	client := shelly.New(shelly.Config{Host: "192.168.1.40"})
//	on, err := client.RelayState(ctx, 0)
//	if err != nil {
//	    var terr *shelly.TransportError
//	    if errors.As(err, &terr) {
//	        // device offline
//	    }
//	}
package shelly
