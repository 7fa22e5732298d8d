// Package queue provides the Queue and Multiqueue domain entities.
//
// A Multiqueue holds one Queue per submitter (partitioned mode) or a single
// shared Queue (unpartitioned mode) and flattens them in row-major order:
// one track per non-exhausted queue per pass. Neither type is safe for
// concurrent use; the owning service serializes access.
package queue

import (
	"math/rand"

	"github.com/bramblewood/jukebox/internal/domain/track"
)

// Queue is an ordered run of tracks belonging to a single submitter in
// partitioned mode, or to everyone in unpartitioned mode.
type Queue struct {
	SubmitterID string
	Tracks      []*track.Track
}

// Len returns the number of tracks in the queue.
func (q *Queue) Len() int {
	return len(q.Tracks)
}

// Head returns the first track, or nil if the queue is empty.
func (q *Queue) Head() *track.Track {
	if len(q.Tracks) == 0 {
		return nil
	}
	return q.Tracks[0]
}

// Append adds a track to the tail of the queue.
func (q *Queue) Append(t *track.Track) {
	q.Tracks = append(q.Tracks, t)
}

// Remove removes the track with the given ID and reports whether it was found.
func (q *Queue) Remove(trackID string) (*track.Track, bool) {
	for i, t := range q.Tracks {
		if t.ID == trackID {
			q.Tracks = append(q.Tracks[:i], q.Tracks[i+1:]...)
			return t, true
		}
	}
	return nil, false
}

// Contains reports whether the queue holds the track with the given ID.
func (q *Queue) Contains(trackID string) bool {
	for _, t := range q.Tracks {
		if t.ID == trackID {
			return true
		}
	}
	return false
}

// Shuffle randomly permutes the queue in place. Membership is unchanged.
func (q *Queue) Shuffle() {
	rand.Shuffle(len(q.Tracks), func(i, j int) {
		q.Tracks[i], q.Tracks[j] = q.Tracks[j], q.Tracks[i]
	})
}
