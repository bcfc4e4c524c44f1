package session

import "drowsy/internal/detection"

// Raw status values reported by the detection service.
const (
	RawDrowsy = "drowsy"
	RawAlert  = "alert"
	RawNoFace = "no_face"
	RawNoEyes = "no_eyes"
)

// Map derives the alertness indicator from a status reading. Unknown status
// strings leave prior unchanged.
func Map(prior Alertness, raw detection.Status) Alertness {
	switch raw.Status {
	case RawDrowsy:
		return AlertnessAlert
	case RawAlert:
		return AlertnessNormal
	case RawNoFace, RawNoEyes:
		return AlertnessMonitoring
	default:
		return prior
	}
}

// KnownStatus reports whether Map assigns the raw value an explicit state.
func KnownStatus(raw string) bool {
	switch raw {
	case RawDrowsy, RawAlert, RawNoFace, RawNoEyes:
		return true
	default:
		return false
	}
}
