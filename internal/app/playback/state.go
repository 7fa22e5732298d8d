// Package playback provides the per-track playback session state machine.
package playback

// State represents the playback state.
type State int

const (
	StateIdle    State = iota // No active stream
	StatePlaying              // Stream is being served
	StatePaused               // Stream is held, progress frozen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}
