package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to AssessmentStatus
		ok       bool
	}{
		{StatusPending, StatusAssessing, true},
		{StatusAssessing, StatusApproved, true},
		{StatusAssessing, StatusRejected, true},
		{StatusAssessing, StatusNeedsReview, true},
		{StatusAssessing, StatusError, true},
		{StatusPending, StatusApproved, false},
		{StatusApproved, StatusAssessing, false},
		{StatusRejected, StatusPending, false},
		{StatusAssessing, StatusPending, false},
		{StatusError, StatusAssessing, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestCanRequeue(t *testing.T) {
	assert.True(t, CanRequeue(StatusPending))
	assert.True(t, CanRequeue(StatusApproved))
	assert.True(t, CanRequeue(StatusRejected))
	assert.True(t, CanRequeue(StatusNeedsReview))
	assert.True(t, CanRequeue(StatusError))

	// Assessing is the executor's lock.
	assert.False(t, CanRequeue(StatusAssessing))
}

func TestTransition(t *testing.T) {
	j := &VerificationJob{Status: StatusPending}

	require.NoError(t, j.Transition(StatusAssessing))
	require.NoError(t, j.Transition(StatusApproved))
	assert.Equal(t, StatusApproved, j.Status)

	err := j.Transition(StatusAssessing)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusApproved, j.Status, "failed transition must not change status")
}

func TestTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusAssessing.Terminal())
	assert.True(t, StatusApproved.Terminal())
	assert.True(t, StatusRejected.Terminal())
	assert.True(t, StatusNeedsReview.Terminal())
	assert.True(t, StatusError.Terminal())
}
