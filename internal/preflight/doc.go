// Package preflight provides readiness checks for the camera, the detection
// service and the filesystem paths drowsy depends on.
//
// These checks run in two contexts:
//   - The daemon logs a readiness snapshot at startup so a missing camera or
//     unreachable service shows up before the first session attempt.
//   - The CLI "drowsy doctor" command prints every result and exits non-zero
//     when any check fails.
//
// Checks never open the camera or start detection.
package preflight
