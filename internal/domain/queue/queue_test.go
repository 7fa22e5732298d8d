package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bramblewood/jukebox/internal/domain/track"
)

func newTrack(title, submitterID string) *track.Track {
	return track.New(title, 180, "https://example.com/"+title, track.Submitter{ID: submitterID, DisplayName: submitterID}, nil)
}

func titles(tracks []*track.Track) []string {
	out := make([]string, len(tracks))
	for i, t := range tracks {
		out[i] = t.Title
	}
	return out
}

func TestMultiqueue_RowMajorInterleave(t *testing.T) {
	m := New(true)
	a1 := newTrack("a1", "A")
	a2 := newTrack("a2", "A")
	b1 := newTrack("b1", "B")

	m.Append(a1)
	m.Append(a2)
	m.Append(b1)

	assert.Equal(t, []string{"a1", "b1", "a2"}, titles(m.Flatten()),
		"tracks must interleave across submitters, not group by submitter")
	assert.Equal(t, 3, m.NumTracks())
	assert.Equal(t, 2, m.NumQueues())
}

func TestMultiqueue_UnpartitionedIsFIFO(t *testing.T) {
	m := New(false)
	m.Append(newTrack("a1", "A"))
	m.Append(newTrack("b1", "B"))
	m.Append(newTrack("a2", "A"))

	assert.Equal(t, []string{"a1", "b1", "a2"}, titles(m.Flatten()))
	assert.Equal(t, 1, m.NumQueues(), "unpartitioned mode keeps a single shared queue")
}

func TestMultiqueue_AppendGroupsBySubmitter(t *testing.T) {
	m := New(true)
	m.Append(newTrack("a1", "A"))
	m.Append(newTrack("b1", "B"))
	m.Append(newTrack("a2", "A"))

	qa := m.QueueFor("A")
	require.NotNil(t, qa)
	assert.Equal(t, []string{"a1", "a2"}, titles(qa.Tracks))
}

func TestMultiqueue_RemoveDeletesEmptyQueue(t *testing.T) {
	m := New(true)
	a1 := newTrack("a1", "A")
	b1 := newTrack("b1", "B")
	m.Append(a1)
	m.Append(b1)

	removed, ok := m.Remove(a1.ID)
	require.True(t, ok)
	assert.Equal(t, a1.ID, removed.ID)
	assert.Nil(t, m.QueueFor("A"), "a queue is deleted the instant it becomes empty")
	assert.Equal(t, 1, m.NumQueues())

	_, ok = m.Remove("no-such-id")
	assert.False(t, ok)
}

func TestMultiqueue_TrackAtAndIndexOf(t *testing.T) {
	m := New(true)
	a1 := newTrack("a1", "A")
	a2 := newTrack("a2", "A")
	b1 := newTrack("b1", "B")
	m.Append(a1)
	m.Append(a2)
	m.Append(b1)

	// Row-major order is [a1, b1, a2].
	assert.Equal(t, "b1", m.TrackAt(1).Title)
	assert.Equal(t, 2, m.IndexOf(a2.ID))
	assert.Nil(t, m.TrackAt(-1))
	assert.Nil(t, m.TrackAt(3), "out-of-range index returns nil, never panics")
	assert.Equal(t, -1, m.IndexOf("missing"))
}

func TestMultiqueue_RangeClamps(t *testing.T) {
	m := New(true)
	m.Append(newTrack("a1", "A"))
	m.Append(newTrack("b1", "B"))

	assert.Equal(t, []string{"a1", "b1"}, titles(m.Range(0, 10)))
	assert.Equal(t, []string{"b1"}, titles(m.Range(1, 2)))
	assert.Empty(t, m.Range(5, 10))
	assert.Empty(t, m.Range(1, 1))
	assert.Equal(t, []string{"a1"}, titles(m.Range(-3, 1)))
}

func TestMultiqueue_RotateToBack(t *testing.T) {
	m := New(true)
	m.Append(newTrack("a1", "A"))
	m.Append(newTrack("a2", "A"))
	m.Append(newTrack("b1", "B"))

	m.RotateToBack("A")

	assert.Equal(t, "b1", m.Current().Title, "rotation advances the serving position to the next queue")
	assert.Equal(t, []string{"b1", "a1", "a2"}, titles(m.Flatten()))
}

func TestMultiqueue_RotateSingleQueueIsNoop(t *testing.T) {
	m := New(true)
	m.Append(newTrack("a1", "A"))
	m.RotateToBack("A")
	assert.Equal(t, "a1", m.Current().Title)
}

func TestMultiqueue_Current(t *testing.T) {
	m := New(true)
	assert.Nil(t, m.Current())

	a1 := newTrack("a1", "A")
	m.Append(a1)
	m.Append(newTrack("b1", "B"))
	assert.Equal(t, a1.ID, m.Current().ID)
}

func TestMultiqueue_NumTracksMatchesAppends(t *testing.T) {
	m := New(true)
	ids := make([]string, 0, 6)
	for i, sub := range []string{"A", "B", "A", "C", "B", "A"} {
		tr := newTrack(string(rune('a'+i)), sub)
		m.Append(tr)
		ids = append(ids, tr.ID)
	}
	assert.Equal(t, 6, m.NumTracks())

	m.Remove(ids[0])
	m.Remove(ids[3])
	assert.Equal(t, 4, m.NumTracks())
	assert.False(t, m.IsEmpty())

	for _, id := range ids {
		m.Remove(id)
	}
	assert.True(t, m.IsEmpty())
	assert.Equal(t, 0, m.NumQueues())
}

func TestQueue_ShufflePreservesMembership(t *testing.T) {
	m := New(true)
	want := make(map[string]bool)
	for i := 0; i < 20; i++ {
		tr := newTrack(string(rune('a'+i)), "A")
		m.Append(tr)
		want[tr.ID] = true
	}

	q := m.QueueFor("A")
	before := q.Len()
	q.Shuffle()

	assert.Equal(t, before, q.Len(), "shuffle never changes queue length")
	for _, tr := range q.Tracks {
		assert.True(t, want[tr.ID], "shuffle never changes queue membership")
	}
}

func TestMultiqueue_Clear(t *testing.T) {
	m := New(true)
	m.Append(newTrack("a1", "A"))
	m.Append(newTrack("b1", "B"))

	dropped := m.Clear()
	assert.Len(t, dropped, 2)
	assert.True(t, m.IsEmpty())
}
