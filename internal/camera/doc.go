// Package camera acquires and releases the local video capture device.
//
// Device opens a V4L2 node and holds a per-device lock file so two drowsy
// processes never stream from the same camera. Virtual stands in for hardware
// during demos. Both hand out Handle values whose Release is idempotent, which
// lets callers release on every exit path without tracking prior releases.
package camera
