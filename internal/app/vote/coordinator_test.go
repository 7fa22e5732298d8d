package vote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(listenerCount int) *Coordinator {
	return NewCoordinator(
		func() int { return listenerCount },
		func(string) bool { return true },
		func() float64 { return 0.3 },
	)
}

func TestCoordinator_RequiredVotes(t *testing.T) {
	tests := []struct {
		name      string
		listeners int
		required  int
		bypass    bool
	}{
		{name: "ten listeners", listeners: 10, required: 3, bypass: false},
		{name: "four listeners", listeners: 4, required: 2, bypass: false},
		{name: "three listeners", listeners: 3, required: 1, bypass: true},
		{name: "single listener", listeners: 1, required: 1, bypass: true},
		{name: "empty channel", listeners: 0, required: 0, bypass: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCoordinator(tt.listeners)
			assert.Equal(t, tt.required, c.RequiredVotes())
			assert.Equal(t, tt.bypass, c.Bypass())
		})
	}
}

func TestCoordinator_PassAtThreshold(t *testing.T) {
	c := newTestCoordinator(10) // Requires 3

	var gotStatus Status
	var gotPayload any
	v, err := c.Start(KindSkip, "skip the track", true, "payload", func(s Status, p any) {
		gotStatus = s
		gotPayload = p
	})
	require.NoError(t, err)

	st, err := c.Ballot(v.ID, "u1", true)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, st)

	st, err = c.Ballot(v.ID, "u2", true)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, st)

	st, err = c.Ballot(v.ID, "u3", true)
	require.NoError(t, err)
	assert.Equal(t, StatusPassed, st)
	assert.Equal(t, StatusPassed, gotStatus)
	assert.Equal(t, "payload", gotPayload)

	assert.Empty(t, c.Pending(), "resolution clears the vote")
}

func TestCoordinator_FailsOnlyPastThreshold(t *testing.T) {
	c := newTestCoordinator(10) // Requires 3

	v, err := c.Start(KindDelete, "delete a track", true, nil, nil)
	require.NoError(t, err)

	// Exactly the threshold against keeps the vote open; the in-favor side
	// could still match it.
	for _, id := range []string{"u1", "u2", "u3"} {
		st, err := c.Ballot(v.ID, id, false)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, st)
	}

	st, err := c.Ballot(v.ID, "u4", false)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, st)
}

func TestCoordinator_AgainstIgnoredWithoutAllowAgainst(t *testing.T) {
	c := newTestCoordinator(10)

	v, err := c.Start(KindWipe, "wipe a submitter", false, nil, nil)
	require.NoError(t, err)

	for _, id := range []string{"u1", "u2", "u3", "u4", "u5"} {
		st, err := c.Ballot(v.ID, id, false)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, st, "against ballots never fail the vote")
	}
}

func TestCoordinator_DuplicateKindRejected(t *testing.T) {
	c := newTestCoordinator(10)

	_, err := c.Start(KindSkip, "first", true, nil, nil)
	require.NoError(t, err)

	_, err = c.Start(KindSkip, "second", true, nil, nil)
	assert.ErrorIs(t, err, ErrVoteInProgress)

	// A different kind is fine.
	_, err = c.Start(KindDelete, "other kind", true, nil, nil)
	assert.NoError(t, err)
}

func TestCoordinator_DuplicateBallotRejected(t *testing.T) {
	c := newTestCoordinator(10)
	v, err := c.Start(KindSkip, "skip", true, nil, nil)
	require.NoError(t, err)

	_, err = c.Ballot(v.ID, "u1", true)
	require.NoError(t, err)

	_, err = c.Ballot(v.ID, "u1", true)
	assert.ErrorIs(t, err, ErrAlreadyVoted)

	// Switching sides is allowed and moves the ballot.
	_, err = c.Ballot(v.ID, "u1", false)
	require.NoError(t, err)
	assert.Equal(t, 0, v.For())
	assert.Equal(t, 1, v.Against())
}

func TestCoordinator_NonListenerRejected(t *testing.T) {
	c := NewCoordinator(
		func() int { return 10 },
		func(id string) bool { return id == "insider" },
		func() float64 { return 0.3 },
	)
	v, err := c.Start(KindSkip, "skip", true, nil, nil)
	require.NoError(t, err)

	_, err = c.Ballot(v.ID, "outsider", true)
	assert.ErrorIs(t, err, ErrNotEligible)

	_, err = c.Ballot(v.ID, "insider", true)
	assert.NoError(t, err)
}

func TestCoordinator_ResolutionClearsOtherVotes(t *testing.T) {
	c := newTestCoordinator(3) // Requires 1

	_, err := c.Start(KindDelete, "delete", true, nil, nil)
	require.NoError(t, err)

	v, err := c.Start(KindSkip, "skip", true, nil, nil)
	require.NoError(t, err)

	st, err := c.Ballot(v.ID, "u1", true)
	require.NoError(t, err)
	assert.Equal(t, StatusPassed, st)

	assert.Empty(t, c.Pending(), "resolving one vote clears all of them")
}

func TestCoordinator_BallotOnUnknownVote(t *testing.T) {
	c := newTestCoordinator(10)
	_, err := c.Ballot("nonexistent", "u1", true)
	assert.ErrorIs(t, err, ErrVoteNotFound)
}

func TestCoordinator_ClearAll(t *testing.T) {
	c := newTestCoordinator(10)
	_, err := c.Start(KindSkip, "skip", true, nil, nil)
	require.NoError(t, err)
	_, err = c.Start(KindWipe, "wipe", false, nil, nil)
	require.NoError(t, err)

	c.ClearAll()
	assert.Empty(t, c.Pending())
}
