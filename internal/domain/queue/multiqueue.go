package queue

import "github.com/bramblewood/jukebox/internal/domain/track"

// Multiqueue is an ordered collection of queues served in row-major order.
//
// The queue at the front of the list is the one currently being served.
// Queues are created on first append, held in first-append order, and
// removed the instant they become empty; no empty placeholders persist.
type Multiqueue struct {
	partitioned bool
	queues      []*Queue
}

// New creates a multiqueue. With partitioning disabled there is at most one
// queue and row-major traversal degenerates to plain FIFO.
func New(partitioned bool) *Multiqueue {
	return &Multiqueue{partitioned: partitioned}
}

// Partitioned reports whether per-submitter partitioning is enabled.
func (m *Multiqueue) Partitioned() bool {
	return m.partitioned
}

// Append adds a track to the tail of its submitter's queue, creating the
// queue at the end of the list if the submitter has none. Never fails.
func (m *Multiqueue) Append(t *track.Track) {
	q := m.QueueFor(t.Submitter.ID)
	if q == nil {
		id := ""
		if m.partitioned {
			id = t.Submitter.ID
		}
		q = &Queue{SubmitterID: id}
		m.queues = append(m.queues, q)
	}
	q.Append(t)
}

// QueueFor returns the submitter's queue in partitioned mode, or the single
// shared queue otherwise. Returns nil if no matching queue exists.
func (m *Multiqueue) QueueFor(submitterID string) *Queue {
	if len(m.queues) == 0 {
		return nil
	}
	if !m.partitioned {
		return m.queues[0]
	}
	for _, q := range m.queues {
		if q.SubmitterID == submitterID {
			return q
		}
	}
	return nil
}

// Current returns the head track of the currently-serving queue, or nil if
// the multiqueue is empty.
func (m *Multiqueue) Current() *track.Track {
	if len(m.queues) == 0 {
		return nil
	}
	return m.queues[0].Head()
}

// Remove removes the track with the given ID from whichever queue contains
// it, deleting that queue if it became empty. Reports whether it was found.
func (m *Multiqueue) Remove(trackID string) (*track.Track, bool) {
	for i, q := range m.queues {
		t, ok := q.Remove(trackID)
		if !ok {
			continue
		}
		if q.Len() == 0 {
			m.queues = append(m.queues[:i], m.queues[i+1:]...)
		}
		return t, true
	}
	return nil, false
}

// RotateToBack moves the submitter's queue to the end of the list order, so
// the next pass of row-major traversal serves the remaining queues first.
// No-op with fewer than two queues.
func (m *Multiqueue) RotateToBack(submitterID string) {
	if len(m.queues) < 2 {
		return
	}
	for i, q := range m.queues {
		if q.SubmitterID == submitterID {
			m.queues = append(append(m.queues[:i], m.queues[i+1:]...), q)
			return
		}
	}
}

// Flatten returns all tracks in row-major order: one track per queue per
// pass, queues visited in their current list order, exhausted queues skipped.
func (m *Multiqueue) Flatten() []*track.Track {
	passes := 0
	for _, q := range m.queues {
		if q.Len() > passes {
			passes = q.Len()
		}
	}
	out := make([]*track.Track, 0, m.NumTracks())
	for y := 0; y < passes; y++ {
		for _, q := range m.queues {
			if y < q.Len() {
				out = append(out, q.Tracks[y])
			}
		}
	}
	return out
}

// TrackAt returns the track at the given row-major index, or nil if the
// index is out of range.
func (m *Multiqueue) TrackAt(index int) *track.Track {
	if index < 0 {
		return nil
	}
	flat := m.Flatten()
	if index >= len(flat) {
		return nil
	}
	return flat[index]
}

// IndexOf returns the row-major index of the track with the given ID, or -1
// if it is not queued.
func (m *Multiqueue) IndexOf(trackID string) int {
	for i, t := range m.Flatten() {
		if t.ID == trackID {
			return i
		}
	}
	return -1
}

// Range returns the row-major slice [start, end), clamped to the number of
// queued tracks. Returns fewer elements than requested near the end rather
// than erroring.
func (m *Multiqueue) Range(start, end int) []*track.Track {
	flat := m.Flatten()
	if start < 0 {
		start = 0
	}
	if end > len(flat) {
		end = len(flat)
	}
	if start >= end {
		return nil
	}
	return flat[start:end]
}

// Contains reports whether any queue holds a track with the given origin URL.
func (m *Multiqueue) Contains(originURL string) bool {
	for _, q := range m.queues {
		for _, t := range q.Tracks {
			if t.OriginURL == originURL {
				return true
			}
		}
	}
	return false
}

// NumTracks returns the total number of queued tracks.
func (m *Multiqueue) NumTracks() int {
	n := 0
	for _, q := range m.queues {
		n += q.Len()
	}
	return n
}

// NumQueues returns the number of non-empty queues.
func (m *Multiqueue) NumQueues() int {
	return len(m.queues)
}

// IsEmpty reports whether no tracks are queued.
func (m *Multiqueue) IsEmpty() bool {
	return len(m.queues) == 0
}

// Clear removes every queue and returns the tracks that were dropped.
func (m *Multiqueue) Clear() []*track.Track {
	dropped := m.Flatten()
	m.queues = nil
	return dropped
}
