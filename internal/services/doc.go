// Package services defines shared utilities consumed by the session controller
// and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp detection session IDs and request
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that keep failure detail
//     (component, operation, message) uniform across the camera and detection
//     service clients.
//
// Use these helpers when wiring new integrations so error text and log fields
// stay consistent with the rest of the controller.
package services
