package playback

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/bramblewood/jukebox/internal/domain/track"
)

// ErrPlayerBusy is returned when Start is called while a track is in flight.
var ErrPlayerBusy = errors.New("a track is already playing")

const eventBufferSize = 16

// Player serves one stream at a time to the shared sink, paced at one frame
// per FrameDuration. It owns no queue; the coordinator decides what plays
// next by consuming the finished event.
type Player struct {
	sink Sink

	mu       sync.RWMutex
	state    State
	current  *track.Track
	stopCh   chan struct{}
	stopOnce *sync.Once

	frames int64 // Served frame count for the current track

	onTrackStart func(*track.Track)

	events chan Event
}

// NewPlayer creates an idle player writing to the given sink.
func NewPlayer(sink Sink) *Player {
	return &Player{
		sink:   sink,
		state:  StateIdle,
		events: make(chan Event, eventBufferSize),
	}
}

// SetTrackStartHook registers a hook invoked synchronously before the first
// frame of every track is served. Must be set before the first Start.
func (p *Player) SetTrackStartHook(hook func(*track.Track)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTrackStart = hook
}

// Events returns the channel of playback events. The finished event is
// posted exactly once per started track.
func (p *Player) Events() <-chan Event {
	return p.events
}

// State returns the current playback state.
func (p *Player) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Current returns the track in flight, or nil when idle.
func (p *Player) Current() *track.Track {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Start begins serving the stream for the given track. It returns
// ErrPlayerBusy unless the player is idle.
func (p *Player) Start(t *track.Track, s Stream) error {
	p.mu.Lock()
	if p.state != StateIdle {
		p.mu.Unlock()
		return errors.Wrapf(ErrPlayerBusy, "cannot start %q", t.Title)
	}
	p.state = StatePlaying
	p.current = t
	stopCh := make(chan struct{})
	p.stopCh = stopCh
	p.stopOnce = &sync.Once{}
	atomic.StoreInt64(&p.frames, 0)
	hook := p.onTrackStart
	p.mu.Unlock()

	// The roster snapshot and stats hooks run before the first frame so
	// that everyone present at start gets full listening credit.
	if hook != nil {
		hook(t)
	}

	zlog.Info().Msgf("playback started: %q (%ds)", t.Title, t.DurationSeconds)
	p.post(Event{Type: EventTrackStarted, Track: t, State: StatePlaying})

	go p.serve(t, s, stopCh)
	return nil
}

// Pause freezes the stream. Calling it while paused or idle is a no-op.
func (p *Player) Pause() {
	p.mu.Lock()
	if p.state != StatePlaying {
		p.mu.Unlock()
		return
	}
	p.state = StatePaused
	p.mu.Unlock()

	zlog.Info().Msg("playback paused")
	p.post(Event{Type: EventStateChanged, State: StatePaused})
}

// Resume unfreezes a paused stream. Calling it while playing or idle is a
// no-op.
func (p *Player) Resume() {
	p.mu.Lock()
	if p.state != StatePaused {
		p.mu.Unlock()
		return
	}
	p.state = StatePlaying
	p.mu.Unlock()

	zlog.Info().Msg("playback resumed")
	p.post(Event{Type: EventStateChanged, State: StatePlaying})
}

// Stop ends the current stream, if any. The finished event for the stopped
// track is still posted exactly once by the serve goroutine.
func (p *Player) Stop() {
	p.mu.Lock()
	stopCh := p.stopCh
	stopOnce := p.stopOnce
	p.mu.Unlock()

	if stopCh == nil {
		return
	}
	stopOnce.Do(func() { close(stopCh) })
}

// Progress returns how far into the current track playback has advanced,
// counted in served frames. It returns zero when idle.
func (p *Player) Progress() time.Duration {
	return time.Duration(atomic.LoadInt64(&p.frames)) * FrameDuration
}

// Ratio returns the fraction of the current track already served, in
// [0, 1]. Tracks reporting a zero duration yield zero.
func (p *Player) Ratio() float64 {
	p.mu.RLock()
	t := p.current
	p.mu.RUnlock()

	if t == nil || t.DurationSeconds <= 0 {
		return 0
	}
	r := p.Progress().Seconds() / float64(t.DurationSeconds)
	if r > 1 {
		r = 1
	}
	return r
}

// serve is the per-track goroutine. It has a single exit path so the
// finished event fires exactly once, whether the stream ran out, errored,
// or was stopped.
func (p *Player) serve(t *track.Track, s Stream, stopCh chan struct{}) {
	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	var serveErr error
loop:
	for {
		select {
		case <-stopCh:
			zlog.Info().Msgf("playback stopped: %q", t.Title)
			break loop
		case <-ticker.C:
			if p.State() == StatePaused {
				continue
			}
			frame, err := s.ReadFrame()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					serveErr = errors.Wrapf(err, "reading frame of %q", t.Title)
				}
				break loop
			}
			if err := p.sink.WriteFrame(frame); err != nil {
				serveErr = errors.Wrapf(err, "writing frame of %q", t.Title)
				break loop
			}
			atomic.AddInt64(&p.frames, 1)
		}
	}

	if err := s.Close(); err != nil {
		zlog.Warn().Err(err).Msgf("failed to close stream of %q", t.Title)
	}

	p.mu.Lock()
	p.state = StateIdle
	p.current = nil
	p.stopCh = nil
	p.stopOnce = nil
	p.mu.Unlock()

	if serveErr != nil {
		zlog.Error().Err(serveErr).Msgf("playback failed: %q", t.Title)
	} else {
		zlog.Info().Msgf("playback finished: %q", t.Title)
	}

	// Blocking send. The finished event drives queue advancement and must
	// not be dropped even when the buffer is full.
	p.events <- Event{Type: EventTrackFinished, Track: t, State: StateIdle, Err: serveErr}
}

// post delivers a non-critical event, dropping it when the buffer is full.
func (p *Player) post(ev Event) {
	select {
	case p.events <- ev:
	default:
		zlog.Warn().Msgf("event buffer full, dropping %s", ev.Type)
	}
}
