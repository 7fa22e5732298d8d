package jukebox

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bramblewood/jukebox/internal/app/filter"
	"github.com/bramblewood/jukebox/internal/app/playback"
	"github.com/bramblewood/jukebox/internal/app/roster"
	"github.com/bramblewood/jukebox/internal/domain/listener"
	"github.com/bramblewood/jukebox/internal/domain/track"
	"github.com/bramblewood/jukebox/internal/infra/resolver"
	"github.com/bramblewood/jukebox/internal/infra/stats"
)

type fakeResolver struct {
	entries map[string][]resolver.Entry
}

func (r *fakeResolver) Resolve(ctx context.Context, query string) (*resolver.Result, error) {
	entries, ok := r.entries[query]
	if !ok {
		return nil, resolver.ErrNoResults
	}
	return &resolver.Result{Entries: entries}, nil
}

func (r *fakeResolver) Candidates(ctx context.Context, query string, limit int) ([]resolver.Candidate, error) {
	return nil, resolver.ErrUnsupportedQuery
}

type fakeStream struct {
	mu        sync.Mutex
	remaining int
}

func (s *fakeStream) ReadFrame() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remaining <= 0 {
		return nil, io.EOF
	}
	s.remaining--
	return make([]byte, playback.FrameSize), nil
}

func (s *fakeStream) Close() error { return nil }

type fakeOpener struct {
	frames int
}

func (o *fakeOpener) OpenStream(ctx context.Context, t *track.Track) (playback.Stream, error) {
	return &fakeStream{remaining: o.frames}, nil
}

type discardSink struct{}

func (discardSink) WriteFrame([]byte) error { return nil }

type recordingSink struct {
	mu       sync.Mutex
	added    map[string]int
	listened map[string]int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{added: map[string]int{}, listened: map[string]int{}}
}

func (s *recordingSink) RecordTrackAdded(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.added[userID]++
}

func (s *recordingSink) RecordListened(userID string, seconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listened[userID] += seconds
}

func (s *recordingSink) Lookup(string) (*stats.UserStats, error) { return nil, nil }
func (s *recordingSink) Close() error                            { return nil }

func (s *recordingSink) listenedSeconds(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listened[userID]
}

func (s *recordingSink) addedCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.added[userID]
}

type fixture struct {
	jb     *Jukebox
	starts chan string
	sink   *recordingSink
	roster *roster.Roster
}

func newFixture(t *testing.T, opts Options, streamFrames int, entries map[string][]resolver.Entry) *fixture {
	t.Helper()

	starts := make(chan string, 32)
	sink := newRecordingSink()
	ro := roster.New()

	player := playback.NewPlayer(discardSink{})
	jb := New(opts, player, &fakeOpener{frames: streamFrames}, &fakeResolver{entries: entries}, sink, ro, Hooks{
		OnTrackStart: func(tr *track.Track) { starts <- tr.Title },
	})
	t.Cleanup(jb.Close)

	return &fixture{jb: jb, starts: starts, sink: sink, roster: ro}
}

func singleEntry(title string, durationSeconds int) []resolver.Entry {
	return []resolver.Entry{{
		Title:           title,
		DurationSeconds: durationSeconds,
		OriginURL:       "https://example.com/" + title,
	}}
}

func waitStart(t *testing.T, starts chan string) string {
	t.Helper()
	select {
	case title := <-starts:
		return title
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a track to start")
		return ""
	}
}

func waitIdleAndEmpty(t *testing.T, jb *Jukebox) {
	t.Helper()
	require.Eventually(t, func() bool {
		return jb.State() == playback.StateIdle && jb.NumTracks() == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestAdd_QueuesAndPlays(t *testing.T) {
	f := newFixture(t, Options{}, 2, map[string][]resolver.Entry{
		"songA": singleEntry("A", 60),
	})

	res, err := f.jb.Add(context.Background(), track.Submitter{ID: "u1", DisplayName: "Alice"}, "songA")
	require.NoError(t, err)
	require.Len(t, res.Added, 1)

	assert.Equal(t, "A", waitStart(t, f.starts))
	waitIdleAndEmpty(t, f.jb)
	assert.Equal(t, 1, f.sink.addedCount("u1"))
}

func TestAdd_ResolverFailureLeavesQueueUnchanged(t *testing.T) {
	f := newFixture(t, Options{}, 2, map[string][]resolver.Entry{})

	_, err := f.jb.Add(context.Background(), track.Submitter{ID: "u1"}, "unknown")
	assert.Error(t, err)
	assert.Equal(t, 0, f.jb.NumTracks())
}

func TestAfterPlay_RotationOrder(t *testing.T) {
	f := newFixture(t, Options{MultiqueueEnabled: true}, 1, map[string][]resolver.Entry{
		"a1": singleEntry("a1", 10),
		"a2": singleEntry("a2", 10),
		"b1": singleEntry("b1", 10),
	})

	alice := track.Submitter{ID: "alice", DisplayName: "Alice"}
	bob := track.Submitter{ID: "bob", DisplayName: "Bob"}

	// First add starts playback of a1 immediately; the rest queue up while
	// it plays.
	_, err := f.jb.Add(context.Background(), alice, "a1")
	require.NoError(t, err)
	_, err = f.jb.Add(context.Background(), alice, "a2")
	require.NoError(t, err)
	_, err = f.jb.Add(context.Background(), bob, "b1")
	require.NoError(t, err)

	var order []string
	for i := 0; i < 3; i++ {
		order = append(order, waitStart(t, f.starts))
	}
	assert.Equal(t, []string{"a1", "b1", "a2"}, order,
		"submitters alternate, a second track never plays before everyone had a turn")
	waitIdleAndEmpty(t, f.jb)
}

func TestLooping_ReAppendsFinishedTrack(t *testing.T) {
	f := newFixture(t, Options{LoopingAllowed: true}, 1, map[string][]resolver.Entry{
		"songA": singleEntry("A", 10),
	})

	on, err := f.jb.ToggleLooping()
	require.NoError(t, err)
	require.True(t, on)

	_, err = f.jb.Add(context.Background(), track.Submitter{ID: "u1"}, "songA")
	require.NoError(t, err)

	assert.Equal(t, "A", waitStart(t, f.starts))
	assert.Equal(t, "A", waitStart(t, f.starts), "finished track came back around")

	_, err = f.jb.ToggleLooping()
	require.NoError(t, err)
	waitIdleAndEmpty(t, f.jb)
}

type loopBlockFilter struct{}

func (loopBlockFilter) Name() string                        { return "loop_block" }
func (loopBlockFilter) Description() string                 { return "rejects loop re-appends" }
func (loopBlockFilter) ReturnCodes() []string               { return []string{"loop_blocked"} }
func (loopBlockFilter) ValidateConfig(map[string]any) error { return nil }
func (loopBlockFilter) AppliesTo(o filter.Origin) bool      { return o == filter.OriginLoop }

func (loopBlockFilter) Check(context.Context, filter.SubmitRequest, *track.Track) filter.Result {
	return filter.Reject("loop_blocked")
}

func TestLooping_ReAppendConsultsChain(t *testing.T) {
	f := newFixture(t, Options{LoopingAllowed: true}, 1, map[string][]resolver.Entry{
		"songA": singleEntry("A", 10),
	})

	chain := filter.NewChain()
	chain.Add(loopBlockFilter{})
	f.jb.SetFilterChain(chain)

	on, err := f.jb.ToggleLooping()
	require.NoError(t, err)
	require.True(t, on)

	_, err = f.jb.Add(context.Background(), track.Submitter{ID: "u1"}, "songA")
	require.NoError(t, err)

	assert.Equal(t, "A", waitStart(t, f.starts))
	waitIdleAndEmpty(t, f.jb)
}

func TestLooping_ReAppendBypassesUserFilters(t *testing.T) {
	f := newFixture(t, Options{LoopingAllowed: true}, 1, map[string][]resolver.Entry{
		"songA": singleEntry("A", 120),
	})

	on, err := f.jb.ToggleLooping()
	require.NoError(t, err)
	require.True(t, on)

	_, err = f.jb.Add(context.Background(), track.Submitter{ID: "u1"}, "songA")
	require.NoError(t, err)

	// Tighten the limit below the queued track's length after submission;
	// re-appends carry the loop origin, which user filters do not cover.
	dur := filter.NewDurationLimitFilter()
	require.NoError(t, dur.ValidateConfig(map[string]any{"max_seconds": 60}))
	chain := filter.NewChain()
	chain.Add(dur)
	f.jb.SetFilterChain(chain)

	assert.Equal(t, "A", waitStart(t, f.starts))
	assert.Equal(t, "A", waitStart(t, f.starts), "looped track is exempt from the duration limit")

	_, err = f.jb.ToggleLooping()
	require.NoError(t, err)
	waitIdleAndEmpty(t, f.jb)
}

func TestToggleLooping_Disabled(t *testing.T) {
	f := newFixture(t, Options{}, 1, nil)
	_, err := f.jb.ToggleLooping()
	assert.ErrorIs(t, err, ErrLoopingDisabled)
}

func TestPause_Disabled(t *testing.T) {
	f := newFixture(t, Options{}, 1, nil)
	assert.ErrorIs(t, f.jb.Pause(), ErrPausingDisabled)
}

func TestSkip_AdvancesToNext(t *testing.T) {
	f := newFixture(t, Options{}, 1<<20, map[string][]resolver.Entry{
		"songA": singleEntry("A", 600),
		"songB": singleEntry("B", 600),
	})

	u := track.Submitter{ID: "u1"}
	_, err := f.jb.Add(context.Background(), u, "songA")
	require.NoError(t, err)
	_, err = f.jb.Add(context.Background(), u, "songB")
	require.NoError(t, err)

	assert.Equal(t, "A", waitStart(t, f.starts))
	require.NoError(t, f.jb.Skip())
	assert.Equal(t, "B", waitStart(t, f.starts))
}

func TestSkip_NothingPlaying(t *testing.T) {
	f := newFixture(t, Options{}, 1, nil)
	assert.ErrorIs(t, f.jb.Skip(), ErrNothingPlaying)
}

func TestRemove_PlayingTrackStopsAndAdvances(t *testing.T) {
	f := newFixture(t, Options{}, 1<<20, map[string][]resolver.Entry{
		"songA": singleEntry("A", 600),
		"songB": singleEntry("B", 600),
	})

	u := track.Submitter{ID: "u1"}
	_, err := f.jb.Add(context.Background(), u, "songA")
	require.NoError(t, err)
	_, err = f.jb.Add(context.Background(), u, "songB")
	require.NoError(t, err)

	assert.Equal(t, "A", waitStart(t, f.starts))
	current := f.jb.CurrentTrack()
	require.NotNil(t, current)

	require.NoError(t, f.jb.Remove(current.ID, true))
	assert.Equal(t, "B", waitStart(t, f.starts))
	assert.Equal(t, 1, f.jb.NumTracks(), "removed track did not come back")
}

func TestRemove_UnknownTrack(t *testing.T) {
	f := newFixture(t, Options{}, 1, nil)
	assert.ErrorIs(t, f.jb.Remove("nope", false), ErrTrackNotFound)
}

func TestClear_StopsAndWipes(t *testing.T) {
	f := newFixture(t, Options{}, 1<<20, map[string][]resolver.Entry{
		"songA": singleEntry("A", 600),
		"songB": singleEntry("B", 600),
	})

	u := track.Submitter{ID: "u1"}
	_, err := f.jb.Add(context.Background(), u, "songA")
	require.NoError(t, err)
	_, err = f.jb.Add(context.Background(), u, "songB")
	require.NoError(t, err)
	waitStart(t, f.starts)

	dropped := f.jb.Clear()
	assert.Equal(t, 2, dropped)
	waitIdleAndEmpty(t, f.jb)
}

func TestShuffle_PlayingTrackSurvives(t *testing.T) {
	f := newFixture(t, Options{MultiqueueEnabled: true}, 1<<20, map[string][]resolver.Entry{
		"a1": singleEntry("a1", 600),
		"a2": singleEntry("a2", 600),
		"a3": singleEntry("a3", 600),
	})

	alice := track.Submitter{ID: "alice"}
	for _, q := range []string{"a1", "a2", "a3"} {
		_, err := f.jb.Add(context.Background(), alice, q)
		require.NoError(t, err)
	}
	waitStart(t, f.starts)

	n := f.jb.Shuffle("alice")
	assert.Equal(t, 3, n)

	// The stopped track restarts from the shuffled queue without being
	// removed.
	waitStart(t, f.starts)
	require.Eventually(t, func() bool { return f.jb.NumTracks() == 3 }, 3*time.Second, 10*time.Millisecond)
}

func TestWipe_DropsSubmitterTracks(t *testing.T) {
	f := newFixture(t, Options{MultiqueueEnabled: true}, 1<<20, map[string][]resolver.Entry{
		"a1": singleEntry("a1", 600),
		"b1": singleEntry("b1", 600),
		"b2": singleEntry("b2", 600),
	})

	alice := track.Submitter{ID: "alice"}
	bob := track.Submitter{ID: "bob"}
	_, err := f.jb.Add(context.Background(), alice, "a1")
	require.NoError(t, err)
	_, err = f.jb.Add(context.Background(), bob, "b1")
	require.NoError(t, err)
	_, err = f.jb.Add(context.Background(), bob, "b2")
	require.NoError(t, err)
	waitStart(t, f.starts)

	wiped := f.jb.Wipe("bob")
	assert.Equal(t, 2, wiped)
	require.Eventually(t, func() bool { return f.jb.NumTracks() == 1 }, 3*time.Second, 10*time.Millisecond)
}

func TestProposeSkip_OwnerBypassesVote(t *testing.T) {
	f := newFixture(t, Options{VoteRatio: 0.3}, 1<<20, map[string][]resolver.Entry{
		"songA": singleEntry("A", 600),
	})
	for i := 0; i < 10; i++ {
		f.jb.ListenerJoined(listener.New(string(rune('a'+i)), "listener"))
	}

	_, err := f.jb.Add(context.Background(), track.Submitter{ID: "owner"}, "songA")
	require.NoError(t, err)
	waitStart(t, f.starts)

	v, err := f.jb.ProposeSkip("owner", false)
	require.NoError(t, err)
	assert.Nil(t, v, "owner skips without a vote")
	waitIdleAndEmpty(t, f.jb)
}

func TestProposeSkip_SmallChannelBypasses(t *testing.T) {
	f := newFixture(t, Options{VoteRatio: 0.3}, 1<<20, map[string][]resolver.Entry{
		"songA": singleEntry("A", 600),
	})
	f.jb.ListenerJoined(listener.New("solo", "Solo"))

	_, err := f.jb.Add(context.Background(), track.Submitter{ID: "owner"}, "songA")
	require.NoError(t, err)
	waitStart(t, f.starts)

	v, err := f.jb.ProposeSkip("someone-else", false)
	require.NoError(t, err)
	assert.Nil(t, v)
	waitIdleAndEmpty(t, f.jb)
}

func TestProposeSkip_VotePassesAndSkips(t *testing.T) {
	f := newFixture(t, Options{VoteRatio: 0.3}, 1<<20, map[string][]resolver.Entry{
		"songA": singleEntry("A", 600),
		"songB": singleEntry("B", 600),
	})
	ids := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7", "u8", "u9", "u10"}
	for _, id := range ids {
		f.jb.ListenerJoined(listener.New(id, id))
	}

	owner := track.Submitter{ID: "owner"}
	_, err := f.jb.Add(context.Background(), owner, "songA")
	require.NoError(t, err)
	_, err = f.jb.Add(context.Background(), owner, "songB")
	require.NoError(t, err)
	waitStart(t, f.starts)

	v, err := f.jb.ProposeSkip("u1", false)
	require.NoError(t, err)
	require.NotNil(t, v, "contested skip opens a vote")
	assert.Equal(t, 3, f.jb.RequiredVotes())

	for _, id := range ids[:3] {
		_, err := f.jb.Ballot(v.ID, id, true)
		require.NoError(t, err)
	}

	assert.Equal(t, "B", waitStart(t, f.starts), "passed vote skipped to the next track")
	assert.Empty(t, f.jb.PendingVotes())
}

func TestListenerCredit_FullAndPartial(t *testing.T) {
	f := newFixture(t, Options{}, 2, map[string][]resolver.Entry{
		"songA": singleEntry("A", 100),
	})

	f.jb.ListenerJoined(listener.New("early", "Early"))

	_, err := f.jb.Add(context.Background(), track.Submitter{ID: "u1"}, "songA")
	require.NoError(t, err)
	waitStart(t, f.starts)
	waitIdleAndEmpty(t, f.jb)

	assert.Equal(t, 100, f.sink.listenedSeconds("early"), "present at start earns the full duration")
	assert.Equal(t, 0, f.sink.listenedSeconds("late"))
}

func TestListenerLeft_NoCredit(t *testing.T) {
	f := newFixture(t, Options{}, 4, map[string][]resolver.Entry{
		"songA": singleEntry("A", 100),
	})

	f.jb.ListenerJoined(listener.New("quitter", "Quitter"))

	_, err := f.jb.Add(context.Background(), track.Submitter{ID: "u1"}, "songA")
	require.NoError(t, err)
	waitStart(t, f.starts)
	f.jb.ListenerLeft("quitter")
	waitIdleAndEmpty(t, f.jb)

	assert.Equal(t, 0, f.sink.listenedSeconds("quitter"), "leaving forfeits the in-flight credit")
}
