// Package mockservice serves a stand-in detection service that speaks the
// start-detection, stop-detection and status contract. It backs the
// `drowsy mock-service` command and end-to-end tests.
package mockservice
