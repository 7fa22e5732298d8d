// Package vote implements ratio-based group decisions among the listeners
// currently present in the channel.
package vote

import (
	"github.com/google/uuid"
)

// Kind identifies what a vote decides. At most one vote per kind may be
// pending at a time.
type Kind int

const (
	KindSkip   Kind = iota // Skip the currently playing track
	KindDelete             // Remove a specific queued track
	KindWipe               // Remove every track a submitter queued
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindSkip:
		return "skip"
	case KindDelete:
		return "delete"
	case KindWipe:
		return "wipe"
	default:
		return "unknown"
	}
}

// Status represents the resolution state of a vote.
type Status int

const (
	StatusPending Status = iota
	StatusPassed
	StatusFailed
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Finalizer is invoked once when a vote resolves, outside any coordinator
// lock. The payload is the value passed to Start.
type Finalizer func(status Status, payload any)

// Vote is one pending group decision.
type Vote struct {
	ID           string
	Kind         Kind
	Description  string
	AllowAgainst bool // Whether against-ballots can fail the vote early

	payload      any
	finalizer    Finalizer
	votesFor     map[string]struct{}
	votesAgainst map[string]struct{}
}

func newVote(kind Kind, description string, allowAgainst bool, payload any, finalizer Finalizer) *Vote {
	return &Vote{
		ID:           uuid.NewString(),
		Kind:         kind,
		Description:  description,
		AllowAgainst: allowAgainst,
		payload:      payload,
		finalizer:    finalizer,
		votesFor:     make(map[string]struct{}),
		votesAgainst: make(map[string]struct{}),
	}
}

// For returns the number of ballots in favor.
func (v *Vote) For() int {
	return len(v.votesFor)
}

// Against returns the number of ballots against.
func (v *Vote) Against() int {
	return len(v.votesAgainst)
}

// status resolves the vote against the required ballot count. A vote passes
// as soon as the in-favor count reaches the threshold; with AllowAgainst it
// fails once the against count strictly exceeds the threshold, since at
// that point the in-favor side can no longer win a majority.
func (v *Vote) status(required int) Status {
	if len(v.votesFor) >= required {
		return StatusPassed
	}
	if v.AllowAgainst && len(v.votesAgainst) > required {
		return StatusFailed
	}
	return StatusPending
}
