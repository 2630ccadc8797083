// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics, debug introspection and session history for the relay.
//
// Provides concurrent-safe state handling primitives including:
//   - Prometheus collectors for accepted connections, handshakes, relay errors and traffic
//   - Debug probes dumped as JSON on the admin endpoint
//   - A bounded history of finished sessions
//
// The admin HTTP handler exposes /metrics and /debug/state.
package control
