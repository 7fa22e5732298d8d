// Package jukebox implements the shared community queue: one playback
// session, per-submitter queues served fairly, and vote-arbitrated control.
package jukebox

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/bramblewood/jukebox/internal/app/filter"
	"github.com/bramblewood/jukebox/internal/app/playback"
	"github.com/bramblewood/jukebox/internal/app/roster"
	"github.com/bramblewood/jukebox/internal/app/vote"
	"github.com/bramblewood/jukebox/internal/domain/listener"
	"github.com/bramblewood/jukebox/internal/domain/queue"
	"github.com/bramblewood/jukebox/internal/domain/track"
	"github.com/bramblewood/jukebox/internal/infra/resolver"
	"github.com/bramblewood/jukebox/internal/infra/stats"
)

var (
	// ErrTrackNotFound is returned when the referenced track is not queued.
	ErrTrackNotFound = errors.New("track not found in the queue")
	// ErrInvalidIndex is returned for out-of-range queue indexes.
	ErrInvalidIndex = errors.New("no track at that queue position")
	// ErrNothingPlaying is returned for operations requiring a playing track.
	ErrNothingPlaying = errors.New("nothing is playing")
	// ErrPausingDisabled is returned when pausing is disabled by config.
	ErrPausingDisabled = errors.New("pausing is disabled")
	// ErrLoopingDisabled is returned when looping is disabled by config.
	ErrLoopingDisabled = errors.New("looping is disabled")
)

// StreamOpener materializes a playable stream for a track. Implementations
// live in internal/infra/audio.
type StreamOpener interface {
	OpenStream(ctx context.Context, t *track.Track) (playback.Stream, error)
}

// Hooks are the outward-facing notification points. OnTrackEnd runs on the
// coordinator goroutine bounded by the configured timeout; a slow hook is
// logged and abandoned, never blocking playback.
type Hooks struct {
	OnTrackStart func(t *track.Track)
	OnTrackEnd   func(ctx context.Context, t *track.Track) error
}

// Options configure the jukebox service.
type Options struct {
	MultiqueueEnabled    bool
	LoopingAllowed       bool
	PausingAllowed       bool
	VoteRatio            float64
	HookTimeout          time.Duration
	QueueLengthWarning   int           // 0 disables
	QueueDurationWarning time.Duration // 0 disables
}

// pendingRemoval marks a stop that was triggered to remove the playing
// track; afterPlay consumes it instead of the normal removal path.
type pendingRemoval struct {
	trackID     string
	deleteFiles bool
}

// Jukebox is the service object owning the queue, the player, the vote
// coordinator and the listener roster. All queue state is guarded by mu;
// playback events are consumed on a single coordinator goroutine.
type Jukebox struct {
	opts Options

	mu                  sync.Mutex
	mq                  *queue.Multiqueue
	looping             bool
	pending             *pendingRemoval
	skipRemovalOnFinish bool

	player   *playback.Player
	opener   StreamOpener
	votes    *vote.Coordinator
	roster   *roster.Roster
	chain    *filter.Chain
	resolver resolver.Resolver
	stats    stats.Sink
	hooks    Hooks

	startedAt time.Time
	done      chan struct{}
}

// New creates the service and starts its coordinator loop.
func New(opts Options, player *playback.Player, opener StreamOpener, res resolver.Resolver, sink stats.Sink, ro *roster.Roster, hooks Hooks) *Jukebox {
	j := &Jukebox{
		opts:      opts,
		mq:        queue.New(opts.MultiqueueEnabled),
		player:    player,
		opener:    opener,
		roster:    ro,
		resolver:  res,
		stats:     sink,
		hooks:     hooks,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	j.votes = vote.NewCoordinator(ro.Count, ro.Present, func() float64 { return opts.VoteRatio })
	player.SetTrackStartHook(j.onTrackStart)
	go j.loop()
	return j
}

// SetFilterChain installs the submission filter chain; the duplicate
// filter's queue view is this Jukebox itself. The chain runs outside the
// queue lock on both user submissions and loop re-appends.
func (j *Jukebox) SetFilterChain(c *filter.Chain) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.chain = c
}

func (j *Jukebox) filterChain() *filter.Chain {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.chain
}

// Close stops the coordinator loop and any playing track.
func (j *Jukebox) Close() {
	close(j.done)
	j.player.Stop()
}

// Contains reports whether a track with the given origin URL is queued.
// Satisfies the duplicate track filter's queue view.
func (j *Jukebox) Contains(originURL string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.mq.Contains(originURL)
}

// Rejection is one submission entry refused by the filter chain.
type Rejection struct {
	Title string
	Code  string
}

// AddResult reports what a submission produced.
type AddResult struct {
	Added         []*track.Track
	Rejected      []Rejection
	PlaylistTitle string
	FailedCount   int      // Playlist items the resolver could not produce
	Warnings      []string // Queue pressure warning codes
}

// Add resolves a query, runs accepted entries through the filter chain,
// appends them and starts playback if idle. Playlist items that fail to
// resolve are counted, not fatal.
func (j *Jukebox) Add(ctx context.Context, submitter track.Submitter, query string) (*AddResult, error) {
	res, err := j.resolver.Resolve(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %q", query)
	}

	result := &AddResult{PlaylistTitle: res.PlaylistTitle, FailedCount: res.FailedCount}
	req := filter.SubmitRequest{SubmitterID: submitter.ID, Query: query}
	chain := j.filterChain()

	for _, e := range res.Entries {
		t := track.New(e.Title, e.DurationSeconds, e.OriginURL, submitter, e.Source)
		t.ThumbnailURL = e.ThumbnailURL
		t.ExtractorName = e.ExtractorName

		if chain != nil {
			if fres := chain.Execute(ctx, req, t, filter.OriginUser); !fres.Accepted {
				zlog.Info().Msgf("submission %q rejected: %s", t.Title, fres.Code)
				result.Rejected = append(result.Rejected, Rejection{Title: t.Title, Code: fres.Code})
				j.deleteLocalFile(t)
				continue
			}
		}

		j.mu.Lock()
		j.mq.Append(t)
		j.mu.Unlock()

		j.stats.RecordTrackAdded(submitter.ID)
		result.Added = append(result.Added, t)
	}

	result.Warnings = j.queueWarnings()

	if len(result.Added) > 0 {
		zlog.Info().Msgf("%s queued %d track(s)", submitter.DisplayName, len(result.Added))
		j.Play(ctx)
	}
	return result, nil
}

// Candidates lists metadata-only matches for an ambiguous query without
// materializing any media.
func (j *Jukebox) Candidates(ctx context.Context, query string, limit int) ([]resolver.Candidate, error) {
	return j.resolver.Candidates(ctx, query, limit)
}

// Play starts the head track when idle, resumes when paused, and is a no-op
// when already playing.
func (j *Jukebox) Play(ctx context.Context) {
	switch j.player.State() {
	case playback.StatePlaying:
	case playback.StatePaused:
		j.player.Resume()
	default:
		j.playNext(ctx)
	}
}

// Pause pauses playback. Disabled deployments get ErrPausingDisabled.
func (j *Jukebox) Pause() error {
	if !j.opts.PausingAllowed {
		return ErrPausingDisabled
	}
	j.player.Pause()
	return nil
}

// Resume resumes paused playback.
func (j *Jukebox) Resume() {
	j.player.Resume()
}

// Stop ends the current track. The finish event advances the queue, so a
// stop with tracks remaining behaves as a skip.
func (j *Jukebox) Stop() {
	j.player.Stop()
}

// Skip ends the current track and moves on.
func (j *Jukebox) Skip() error {
	if j.player.Current() == nil {
		return ErrNothingPlaying
	}
	j.player.Stop()
	return nil
}

// Remove removes a track from the queue by ID. Removing the playing track
// stops it first and lets the finish path do the actual removal, so the
// finish accounting runs exactly once.
func (j *Jukebox) Remove(trackID string, isDeleting bool) error {
	j.mu.Lock()
	if current := j.player.Current(); current != nil && current.ID == trackID {
		j.pending = &pendingRemoval{trackID: trackID, deleteFiles: isDeleting}
		j.mu.Unlock()
		j.player.Stop()
		return nil
	}

	t, ok := j.mq.Remove(trackID)
	j.mu.Unlock()

	if !ok {
		return errors.Wrapf(ErrTrackNotFound, "id %s", trackID)
	}
	if isDeleting {
		j.deleteLocalFile(t)
	}
	return nil
}

// RemoveMany removes each of the given tracks, deleting preloaded files.
func (j *Jukebox) RemoveMany(tracks []*track.Track) {
	for _, t := range tracks {
		if err := j.Remove(t.ID, true); err != nil {
			zlog.Warn().Err(err).Msgf("failed to remove %q", t.Title)
		}
	}
}

// Delete removes the track at the given row-major index.
func (j *Jukebox) Delete(index int) (*track.Track, error) {
	j.mu.Lock()
	t := j.mq.TrackAt(index)
	j.mu.Unlock()

	if t == nil {
		return nil, errors.Wrapf(ErrInvalidIndex, "index %d", index)
	}
	return t, j.Remove(t.ID, true)
}

// Wipe removes every track the given submitter queued. Returns how many
// tracks were dropped.
func (j *Jukebox) Wipe(submitterID string) int {
	j.mu.Lock()
	var doomed []*track.Track
	if q := j.mq.QueueFor(submitterID); q != nil {
		for _, t := range q.Tracks {
			if t.Submitter.ID == submitterID {
				doomed = append(doomed, t)
			}
		}
	}
	j.mu.Unlock()

	j.RemoveMany(doomed)
	return len(doomed)
}

// Clear wipes every queue, deletes preloaded media and stops playback.
func (j *Jukebox) Clear() int {
	j.mu.Lock()
	if current := j.player.Current(); current != nil {
		// The dropped loop below deletes its file; the finish path must not.
		j.pending = &pendingRemoval{trackID: current.ID, deleteFiles: false}
	}
	dropped := j.mq.Clear()
	j.mu.Unlock()

	for _, t := range dropped {
		j.deleteLocalFile(t)
	}
	j.votes.ClearAll()
	j.player.Stop()

	zlog.Info().Msgf("queue cleared, %d track(s) dropped", len(dropped))
	return len(dropped)
}

// Shuffle shuffles the submitter's queue in place. If the playing track
// belongs to that queue it is stopped but kept, and the new queue head plays
// next. Returns the shuffled queue length.
func (j *Jukebox) Shuffle(submitterID string) int {
	j.mu.Lock()
	q := j.mq.QueueFor(submitterID)
	if q == nil {
		j.mu.Unlock()
		return 0
	}

	restart := false
	if current := j.player.Current(); current != nil && q.Contains(current.ID) {
		j.skipRemovalOnFinish = true
		restart = true
	}
	q.Shuffle()
	n := q.Len()
	j.mu.Unlock()

	if restart {
		j.player.Stop()
	}
	return n
}

// ToggleLooping flips queue looping and returns the new value. While
// looping, finished tracks are re-appended instead of deleted.
func (j *Jukebox) ToggleLooping() (bool, error) {
	if !j.opts.LoopingAllowed {
		return false, ErrLoopingDisabled
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.looping = !j.looping
	zlog.Info().Msgf("looping set to %v", j.looping)
	return j.looping, nil
}

// Looping reports whether queue looping is on.
func (j *Jukebox) Looping() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.looping
}

// CurrentTrack returns the playing track, or nil.
func (j *Jukebox) CurrentTrack() *track.Track {
	return j.player.Current()
}

// Progress returns elapsed playback of the current track.
func (j *Jukebox) Progress() time.Duration {
	return j.player.Progress()
}

// State returns the playback state.
func (j *Jukebox) State() playback.State {
	return j.player.State()
}

// NumTracks returns the number of queued tracks.
func (j *Jukebox) NumTracks() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.mq.NumTracks()
}

// TrackAt returns the track at the given row-major index, or nil.
func (j *Jukebox) TrackAt(index int) *track.Track {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.mq.TrackAt(index)
}

// IndexOf returns the row-major index of the track, or -1.
func (j *Jukebox) IndexOf(trackID string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.mq.IndexOf(trackID)
}

// Range returns the row-major slice [start, end), clamped.
func (j *Jukebox) Range(start, end int) []*track.Track {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.mq.Range(start, end)
}

// Uptime returns how long the service has been running.
func (j *Jukebox) Uptime() time.Duration {
	return time.Since(j.startedAt)
}

// ListenerJoined registers a listener at the current track offset. Rejoins
// and unmutes restart the listening credit from now.
func (j *Jukebox) ListenerJoined(l *listener.Listener) {
	offset := int(j.player.Progress().Seconds())
	j.roster.Join(l, offset)
	zlog.Info().Msgf("listener %s joined at offset %ds", l.DisplayName, offset)
}

// ListenerLeft removes a listener; mutes and deafens land here too.
func (j *Jukebox) ListenerLeft(listenerID string) {
	j.roster.Leave(listenerID)
}

// ListenerCount returns how many listeners are present.
func (j *Jukebox) ListenerCount() int {
	return j.roster.Count()
}

// ProposeSkip skips the playing track directly when the proposer owns it,
// is trusted, or the channel is small enough to bypass voting. Otherwise a
// skip vote is opened and returned.
func (j *Jukebox) ProposeSkip(proposerID string, trusted bool) (*vote.Vote, error) {
	current := j.player.Current()
	if current == nil {
		return nil, ErrNothingPlaying
	}
	if trusted || current.Submitter.ID == proposerID || j.votes.Bypass() {
		return nil, j.Skip()
	}
	return j.votes.Start(vote.KindSkip, fmt.Sprintf("skip %q", current.Title), true, current.ID, j.finalizeSkip)
}

// ProposeDelete deletes the track at the given index directly for its owner,
// trusted proposers and small channels; otherwise a delete vote is opened.
func (j *Jukebox) ProposeDelete(proposerID string, index int, trusted bool) (*vote.Vote, error) {
	j.mu.Lock()
	t := j.mq.TrackAt(index)
	j.mu.Unlock()
	if t == nil {
		return nil, errors.Wrapf(ErrInvalidIndex, "index %d", index)
	}
	if trusted || t.Submitter.ID == proposerID || j.votes.Bypass() {
		return nil, j.Remove(t.ID, true)
	}
	return j.votes.Start(vote.KindDelete, fmt.Sprintf("delete %q", t.Title), true, t.ID, j.finalizeDelete)
}

// ProposeWipe drops every track of the target submitter, voting unless the
// proposer wipes their own tracks, is trusted, or the channel is small.
func (j *Jukebox) ProposeWipe(proposerID, targetSubmitterID string, trusted bool) (*vote.Vote, error) {
	if trusted || proposerID == targetSubmitterID || j.votes.Bypass() {
		j.Wipe(targetSubmitterID)
		return nil, nil
	}
	return j.votes.Start(vote.KindWipe, fmt.Sprintf("wipe tracks of %s", targetSubmitterID), false, targetSubmitterID, j.finalizeWipe)
}

// Ballot casts a listener's ballot on a pending vote.
func (j *Jukebox) Ballot(voteID, listenerID string, favor bool) (vote.Status, error) {
	return j.votes.Ballot(voteID, listenerID, favor)
}

// PendingVotes lists the open votes.
func (j *Jukebox) PendingVotes() []*vote.Vote {
	return j.votes.Pending()
}

// ClearVotes drops every pending vote.
func (j *Jukebox) ClearVotes() {
	j.votes.ClearAll()
}

// RequiredVotes returns the current ballot threshold.
func (j *Jukebox) RequiredVotes() int {
	return j.votes.RequiredVotes()
}

func (j *Jukebox) finalizeSkip(status vote.Status, payload any) {
	if status != vote.StatusPassed {
		return
	}
	trackID, _ := payload.(string)
	if current := j.player.Current(); current != nil && current.ID == trackID {
		j.player.Stop()
	}
}

func (j *Jukebox) finalizeDelete(status vote.Status, payload any) {
	if status != vote.StatusPassed {
		return
	}
	trackID, _ := payload.(string)
	if err := j.Remove(trackID, true); err != nil {
		zlog.Warn().Err(err).Msg("delete vote passed but the track was gone")
	}
}

func (j *Jukebox) finalizeWipe(status vote.Status, payload any) {
	if status != vote.StatusPassed {
		return
	}
	submitterID, _ := payload.(string)
	j.Wipe(submitterID)
}

// loop is the coordinator goroutine: it is the only consumer of playback
// events, so queue advancement is strictly serialized.
func (j *Jukebox) loop() {
	for {
		select {
		case <-j.done:
			return
		case ev := <-j.player.Events():
			if ev.Type == playback.EventTrackFinished {
				j.afterPlay(ev.Track, ev.Err)
			}
		}
	}
}

// onTrackStart runs before the first frame of every track: the listening
// ledger snapshots everyone present with full credit from second zero.
func (j *Jukebox) onTrackStart(t *track.Track) {
	j.roster.SnapshotAtTrackStart()
	if j.hooks.OnTrackStart != nil {
		j.hooks.OnTrackStart(t)
	}
}

// afterPlay advances the queue when a track finishes. Order matters: the
// ledger settles before the next track starts, because starting re-snapshots
// the roster.
func (j *Jukebox) afterPlay(t *track.Track, playErr error) {
	if playErr != nil {
		zlog.Error().Err(playErr).Msgf("track %q ended with error", t.Title)
	}

	j.mu.Lock()
	if j.skipRemovalOnFinish {
		// Shuffle restart: the track goes back into contention unplayed.
		j.skipRemovalOnFinish = false
		j.pending = nil
		j.mu.Unlock()
		j.votes.ClearAll()
		j.playNext(context.Background())
		return
	}
	looping := j.looping
	pending := j.pending
	j.pending = nil
	j.mu.Unlock()

	for _, c := range j.roster.Settle(t.DurationSeconds) {
		j.stats.RecordListened(c.ListenerID, c.Seconds)
	}

	userRemoved := pending != nil && pending.trackID == t.ID
	reAppend := looping && !userRemoved
	if reAppend {
		if chain := j.filterChain(); chain != nil {
			req := filter.SubmitRequest{SubmitterID: t.Submitter.ID, Query: t.OriginURL}
			if fres := chain.Execute(context.Background(), req, t, filter.OriginLoop); !fres.Accepted {
				zlog.Info().Msgf("looped track %q rejected: %s", t.Title, fres.Code)
				reAppend = false
			}
		}
	}
	deleteFiles := !reAppend
	if userRemoved {
		deleteFiles = pending.deleteFiles
	}

	j.mu.Lock()
	j.mq.Remove(t.ID)
	if reAppend {
		j.mq.Append(t)
	}
	if j.mq.Partitioned() {
		// The just-served queue yields the next pass to the others.
		j.mq.RotateToBack(t.Submitter.ID)
	}
	j.mu.Unlock()

	if deleteFiles {
		j.deleteLocalFile(t)
	}

	j.votes.ClearAll()
	j.playNext(context.Background())
	j.runTrackEndHook(t)
}

// playNext starts the current queue head, dropping tracks whose stream
// cannot be opened and moving on to the next.
func (j *Jukebox) playNext(ctx context.Context) {
	for {
		j.mu.Lock()
		t := j.mq.Current()
		j.mu.Unlock()
		if t == nil {
			zlog.Info().Msg("queue exhausted")
			return
		}

		stream, err := j.opener.OpenStream(ctx, t)
		if err != nil {
			zlog.Error().Err(err).Msgf("dropping unplayable track %q", t.Title)
			j.mu.Lock()
			j.mq.Remove(t.ID)
			j.mu.Unlock()
			j.deleteLocalFile(t)
			continue
		}

		if err := j.player.Start(t, stream); err != nil {
			stream.Close()
			zlog.Warn().Err(err).Msg("player busy, not starting next track")
			return
		}
		return
	}
}

// runTrackEndHook runs the outward notification bounded by the configured
// timeout. A stuck hook is abandoned with a log line.
func (j *Jukebox) runTrackEndHook(t *track.Track) {
	if j.hooks.OnTrackEnd == nil {
		return
	}

	timeout := j.opts.HookTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- j.hooks.OnTrackEnd(ctx, t) }()

	select {
	case err := <-done:
		if err != nil {
			zlog.Warn().Err(err).Msgf("track end hook failed for %q", t.Title)
		}
	case <-ctx.Done():
		zlog.Warn().Msgf("track end hook timed out after %s for %q", timeout, t.Title)
	}
}

// queueWarnings reports queue pressure conditions. Warnings never reject.
func (j *Jukebox) queueWarnings() []string {
	j.mu.Lock()
	defer j.mu.Unlock()

	var warnings []string
	if j.opts.QueueLengthWarning > 0 && j.mq.NumTracks() >= j.opts.QueueLengthWarning {
		warnings = append(warnings, "queue_length_warning")
	}
	if j.opts.QueueDurationWarning > 0 {
		var total time.Duration
		for _, t := range j.mq.Flatten() {
			total += t.Duration()
		}
		if total >= j.opts.QueueDurationWarning {
			warnings = append(warnings, "queue_duration_warning")
		}
	}
	return warnings
}

// deleteLocalFile removes a preloaded media file. Streamed sources and
// already-missing files are fine.
func (j *Jukebox) deleteLocalFile(t *track.Track) {
	if t.Source == nil || !t.Source.Local() {
		return
	}
	if err := os.Remove(t.Source.Location()); err != nil {
		if os.IsNotExist(err) {
			zlog.Warn().Msgf("preloaded file for %q already gone", t.Title)
			return
		}
		zlog.Error().Err(err).Msgf("failed to delete preloaded file for %q", t.Title)
	}
}
