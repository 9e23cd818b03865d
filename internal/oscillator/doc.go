// Package oscillator drives relays into periodic on/off patterns and is
// the core of Gray Pulse.
//
// A request creates a Session — the owned state bundle for one
// oscillation — and the Controller runs it to completion: an unbounded
// session toggles until stopped, a timeout session until a wall-clock
// deadline, and a cycle session until a toggle count is reached (one
// cycle = two toggles). Bounded sessions settle the relay to a start
// state first and force a final state on the way out, whatever made the
// loop exit.
//
// # Session Lifecycle
//
//	idle → settling → toggling → stop_requested → enforcing_final → done
//
// Settling is skipped when the relay is already at the start state, and
// never counts toward cycles. Unbounded sessions skip enforcing_final
// and leave the relay wherever the last toggle put it.
//
// # Concurrency
//
//   - One goroutine per session, plus a toggle-loop goroutine in
//     timeout mode. The controller tracks at most one active session per
//     relay id and rejects requests for a busy relay with
//     ErrSessionActive.
//   - Stopping is a monotonic latch (sync.Once over a closed channel):
//     it fires exactly once and is safe from any goroutine.
//   - The timeout watcher wakes on a single timer at the deadline, then
//     blocks on the loop's exit channel before touching the relay. The
//     final-state write therefore cannot race the loop's last toggle.
//   - Transport failures in background sessions are recorded on the
//     session (joined, in occurrence order) and retrievable via Err()
//     after Done() closes; they are never silently swallowed.
//
// # Usage
//
//	ctrl, err := oscillator.New(oscillator.Deps{Actuator: client})
//	if err != nil {
//	    return err
//	}
//	if err := ctrl.Start(ctx); err != nil {
//	    return err
//	}
//	defer ctrl.Close()
//
//	// Background: pulse relay 0 for two cycles, end switched off.
//	session, err := ctrl.BeginCycles(0, 100*time.Millisecond, 2, true, false)
//	if err != nil {
//	    return err
//	}
//	<-session.Done()
//	return session.Err()
package oscillator
