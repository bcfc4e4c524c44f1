// Package daemon coordinates the long-running drowsy process and its system
// integration points.
//
// It wires configuration, the session controller, session history, metrics
// and notifications into a single lifecycle with flock-based locking to
// prevent multiple instances. The daemon exposes the HTTP presentation API
// (session snapshot, start and stop intents, a WebSocket snapshot stream,
// history and Prometheus metrics) and watches udev for removal of the
// configured camera.
//
// Keep orchestration here: session semantics live in internal/session while
// the daemon focuses on startup, shutdown, and high level coordination.
package daemon
