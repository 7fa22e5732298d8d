// Package listener provides listener identity and the per-track listening ledger.
package listener

import "time"

// Listener represents a user present in the shared audio channel.
type Listener struct {
	ID          string    // Stable user ID from the chat platform
	DisplayName string    // Display name
	JoinedAt    time.Time // Time the listener entered the channel
}

// New creates a listener.
func New(id, displayName string) *Listener {
	return &Listener{
		ID:          id,
		DisplayName: displayName,
		JoinedAt:    time.Now(),
	}
}
