// Package roster tracks which listeners are present in the shared audio
// channel, with thread-safe access, and owns the per-track listening ledger.
package roster

import (
	"sync"

	"github.com/bramblewood/jukebox/internal/domain/listener"
)

// Roster holds the currently-present listeners and the listening ledger for
// the track in flight. Mute and deafen are treated as leaving; un-muting as
// joining at the current track offset.
type Roster struct {
	mu      sync.RWMutex
	present map[string]*listener.Listener
	ledger  *listener.Ledger
}

// New creates an empty roster.
func New() *Roster {
	return &Roster{
		present: make(map[string]*listener.Listener),
		ledger:  listener.NewLedger(),
	}
}

// Join adds a listener at the given track offset. Rejoining replaces any
// prior ledger entry with a fresh offset.
func (r *Roster) Join(l *listener.Listener, trackOffsetSeconds int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.present[l.ID] = l
	r.ledger.Join(l.ID, trackOffsetSeconds)
}

// Leave removes a listener from the channel and from the ledger.
func (r *Roster) Leave(listenerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.present, listenerID)
	r.ledger.Leave(listenerID)
}

// Present reports whether the listener is currently in the channel.
func (r *Roster) Present(listenerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.present[listenerID]
	return ok
}

// Count returns the number of listeners currently present.
func (r *Roster) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.present)
}

// All returns the currently-present listeners.
func (r *Roster) All() []*listener.Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*listener.Listener, 0, len(r.present))
	for _, l := range r.present {
		out = append(out, l)
	}
	return out
}

// SnapshotAtTrackStart resets the ledger to everyone currently present with
// a zero join offset. Called before the first byte of a track is served.
func (r *Roster) SnapshotAtTrackStart() {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.present))
	for id := range r.present {
		ids = append(ids, id)
	}
	r.ledger.Snapshot(ids)
}

// Settle attributes listened duration to every remaining ledger entry and
// clears the ledger for the next track.
func (r *Roster) Settle(trackDurationSeconds int) []listener.Credit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.Settle(trackDurationSeconds)
}
