package vote

import (
	"math"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

var (
	// ErrVoteInProgress is returned when a vote of the same kind is pending.
	ErrVoteInProgress = errors.New("a vote of this kind is already in progress")
	// ErrVoteNotFound is returned for ballots on unknown or resolved votes.
	ErrVoteNotFound = errors.New("no such vote")
	// ErrNotEligible is returned for ballots from users not in the channel.
	ErrNotEligible = errors.New("only current listeners may vote")
	// ErrAlreadyVoted is returned when a listener repeats the same ballot.
	ErrAlreadyVoted = errors.New("ballot already cast")
)

// Coordinator tracks pending votes and resolves them against the live
// listener count. The listeners, present and ratio closures are consulted at
// ballot time, so the threshold follows the channel as people come and go.
type Coordinator struct {
	mu      sync.Mutex
	pending map[Kind]*Vote

	listeners func() int
	present   func(listenerID string) bool
	ratio     func() float64
}

// NewCoordinator creates a coordinator over the given listener accessors.
func NewCoordinator(listeners func() int, present func(string) bool, ratio func() float64) *Coordinator {
	return &Coordinator{
		pending:   make(map[Kind]*Vote),
		listeners: listeners,
		present:   present,
		ratio:     ratio,
	}
}

// RequiredVotes returns the ballot threshold: the listener count times the
// configured ratio, rounded up.
func (c *Coordinator) RequiredVotes() int {
	return int(math.Ceil(float64(c.listeners()) * c.ratio()))
}

// Bypass reports whether the channel is small enough that a single listener
// decides alone and no vote should be opened.
func (c *Coordinator) Bypass() bool {
	return c.RequiredVotes() <= 1
}

// Start opens a vote. Only one vote per kind may be pending; the proposer's
// own ballot is not cast automatically.
func (c *Coordinator) Start(kind Kind, description string, allowAgainst bool, payload any, finalizer Finalizer) (*Vote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[kind]; ok {
		return nil, errors.Wrapf(ErrVoteInProgress, "kind %s", kind)
	}

	v := newVote(kind, description, allowAgainst, payload, finalizer)
	c.pending[kind] = v
	zlog.Info().Msgf("vote opened: %s %q (%d required)", kind, description, c.RequiredVotes())
	return v, nil
}

// Pending returns the currently open votes.
func (c *Coordinator) Pending() []*Vote {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Vote, 0, len(c.pending))
	for _, v := range c.pending {
		out = append(out, v)
	}
	return out
}

// Ballot casts a listener's ballot on the vote with the given ID. Casting
// the opposite ballot moves the listener to the other side. When the ballot
// resolves the vote, every pending vote is cleared and the resolved vote's
// finalizer runs after the coordinator lock is released.
func (c *Coordinator) Ballot(voteID, listenerID string, favor bool) (Status, error) {
	if !c.present(listenerID) {
		return StatusPending, errors.Wrapf(ErrNotEligible, "listener %s", listenerID)
	}

	c.mu.Lock()

	var v *Vote
	for _, pv := range c.pending {
		if pv.ID == voteID {
			v = pv
			break
		}
	}
	if v == nil {
		c.mu.Unlock()
		return StatusPending, errors.Wrapf(ErrVoteNotFound, "id %s", voteID)
	}

	side, other := v.votesFor, v.votesAgainst
	if !favor {
		side, other = other, side
	}
	if _, ok := side[listenerID]; ok {
		c.mu.Unlock()
		return StatusPending, errors.Wrapf(ErrAlreadyVoted, "listener %s on vote %s", listenerID, voteID)
	}
	delete(other, listenerID)
	side[listenerID] = struct{}{}

	status := v.status(c.RequiredVotes())
	if status == StatusPending {
		c.mu.Unlock()
		return status, nil
	}

	// Resolution discards every other pending vote too: the queue is about
	// to change under them.
	c.pending = make(map[Kind]*Vote)
	c.mu.Unlock()

	zlog.Info().Msgf("vote resolved: %s %q %s (%d for, %d against)",
		v.Kind, v.Description, status, v.For(), v.Against())
	if v.finalizer != nil {
		v.finalizer(status, v.payload)
	}
	return status, nil
}

// ClearAll drops every pending vote without resolving it. Called when the
// playing track changes, since pending votes refer to stale queue state.
func (c *Coordinator) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) > 0 {
		zlog.Debug().Msgf("clearing %d pending vote(s)", len(c.pending))
		c.pending = make(map[Kind]*Vote)
	}
}
