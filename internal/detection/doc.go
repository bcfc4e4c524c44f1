// Package detection is the request layer for the external drowsiness
// detection service.
//
// The service exposes three JSON endpoints under a fixed base path:
// POST start-detection, POST stop-detection, and GET status. Client maps
// transport failures to ErrConnectionRefused and non-success responses to
// *RejectedError carrying the service's error message. Retrying is the
// caller's decision.
package detection
