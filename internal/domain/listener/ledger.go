package listener

// Ledger maps listener IDs to the track offset, in seconds, at which they
// started hearing the current track. It is reset at the start of each track
// and settled at the end to attribute listened duration per listener.
// Not safe for concurrent use; the roster serializes access.
type Ledger struct {
	offsets map[string]int
}

// Credit is the listened duration attributed to one listener for one track.
type Credit struct {
	ListenerID string
	Seconds    int
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{offsets: make(map[string]int)}
}

// Snapshot resets the ledger to the given listeners, all with a zero join
// offset. Called when a track starts, before the first byte is served.
func (l *Ledger) Snapshot(listenerIDs []string) {
	l.offsets = make(map[string]int, len(listenerIDs))
	for _, id := range listenerIDs {
		l.offsets[id] = 0
	}
}

// Join records a listener joining (or un-muting) at the given track offset.
// A rejoin replaces any prior entry with the fresh offset.
func (l *Ledger) Join(listenerID string, offsetSeconds int) {
	if offsetSeconds < 0 {
		offsetSeconds = 0
	}
	l.offsets[listenerID] = offsetSeconds
}

// Leave removes a listener's entry; time after leaving accrues no credit.
func (l *Ledger) Leave(listenerID string) {
	delete(l.offsets, listenerID)
}

// Len returns the number of listeners currently in the ledger.
func (l *Ledger) Len() int {
	return len(l.offsets)
}

// Settle computes the attributable duration for every remaining entry
// (track duration minus join offset, clamped to zero) and clears the ledger
// for the next track.
func (l *Ledger) Settle(trackDurationSeconds int) []Credit {
	credits := make([]Credit, 0, len(l.offsets))
	for id, offset := range l.offsets {
		seconds := trackDurationSeconds - offset
		if seconds < 0 {
			seconds = 0
		}
		credits = append(credits, Credit{ListenerID: id, Seconds: seconds})
	}
	l.offsets = make(map[string]int)
	return credits
}
