package session

import (
	"errors"

	"drowsy/internal/camera"
	"drowsy/internal/detection"
)

var (
	// ErrAborted is returned by Start when Stop or Close interrupted the attempt.
	ErrAborted = errors.New("session start aborted")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("session controller closed")
)

const (
	MessageCameraDenied      = "Could not access webcam. Please allow camera access."
	MessageCameraUnavailable = "Camera device is unavailable."
	MessageUnreachable       = "Could not connect to detection server. Please make sure the backend is running."
	MessageStartFailed       = "Failed to start detection"
)

// UserMessage converts a start failure into the text shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var rejected *detection.RejectedError
	switch {
	case errors.Is(err, camera.ErrPermissionDenied):
		return MessageCameraDenied
	case errors.Is(err, camera.ErrDeviceUnavailable):
		return MessageCameraUnavailable
	case errors.Is(err, detection.ErrConnectionRefused):
		return MessageUnreachable
	case errors.As(err, &rejected):
		if rejected.Message != "" {
			return rejected.Message
		}
		return MessageStartFailed
	default:
		return MessageStartFailed
	}
}
