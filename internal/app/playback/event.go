package playback

import "github.com/bramblewood/jukebox/internal/domain/track"

// EventType represents a playback event type.
type EventType int

const (
	EventTrackStarted  EventType = iota // Track began serving its first frame
	EventTrackFinished                  // Track ended naturally or was stopped
	EventStateChanged                   // Pause/resume transition
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStarted:
		return "track_started"
	case EventTrackFinished:
		return "track_finished"
	case EventStateChanged:
		return "state_changed"
	default:
		return "unknown"
	}
}

// Event is posted by the player to its event channel. The finished event is
// posted exactly once per track, whether the stream ended naturally or was
// stopped, and is consumed by the coordinator loop on another goroutine.
type Event struct {
	Type  EventType
	Track *track.Track
	State State
	Err   error // Stream error for EventTrackFinished, nil on clean end
}
