package robot

import "time"

// Source tags where a pose update came from. Observers must only treat
// SourceUser updates as manual edits; everything else is an echo of
// something already on the wire.
type Source int

const (
	SourceUser Source = iota
	SourceTelemetry
	SourcePlayback
	SourceHome
)

func (s Source) String() string {
	switch s {
	case SourceUser:
		return "user"
	case SourceTelemetry:
		return "telemetry"
	case SourcePlayback:
		return "playback"
	case SourceHome:
		return "home"
	default:
		return "unknown"
	}
}

// UserDriven reports whether an update may trigger live transmission.
func (s Source) UserDriven() bool {
	return s == SourceUser
}

// Event is a pose update published to observers.
type Event struct {
	Pose      Position
	Source    Source
	Timestamp time.Time
}
