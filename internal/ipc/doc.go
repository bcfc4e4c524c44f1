// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs. Session
// and history payloads reuse the HTTP API types from internal/api so both
// surfaces describe a session the same way. The server drives the daemon's
// session controller; daemon process lifecycle lives in internal/daemonctl.
package ipc
