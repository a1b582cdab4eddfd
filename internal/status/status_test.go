package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext_HappyPath(t *testing.T) {
	steps := []struct {
		from  Status
		event Event
		want  Status
	}{
		{Scraped, EventQualify, Qualified},
		{Qualified, EventStartGeneration, Generating},
		{Generating, EventGenerationSucceeded, Ready},
		{Ready, EventQueueReview, PendingReview},
		{PendingReview, EventAuthorize, Authorized},
		{Authorized, EventConfirmSubmission, Submitted},
	}

	for _, step := range steps {
		got, err := Next(step.from, step.event)
		require.NoError(t, err, "%s on %s", step.event, step.from)
		assert.Equal(t, step.want, got)
	}
}

func TestNext_IllegalTransitionsRejected(t *testing.T) {
	cases := []struct {
		from  Status
		event Event
	}{
		{Scraped, EventAuthorize},
		{Qualified, EventAuthorize},
		{Submitted, EventAuthorize},
		{Expired, EventAuthorize},
		{Expired, EventQueueReview},
		{RejectedByFilter, EventQualify},
		{PendingReview, EventConfirmSubmission},
		{Generating, EventQueueReview},
	}

	for _, c := range cases {
		_, err := Next(c.from, c.event)
		assert.ErrorIs(t, err, ErrIllegalTransition, "%s on %s", c.event, c.from)
	}
}

func TestNext_FilterRejectionIsTerminal(t *testing.T) {
	got, err := Next(Scraped, EventRejectFilter)
	require.NoError(t, err)
	assert.Equal(t, RejectedByFilter, got)
	assert.True(t, Terminal(RejectedByFilter))

	// No edge leaves rejected_by_filter, even the operator retry.
	_, err = Next(RejectedByFilter, EventRetryGeneration)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestNext_OperatorRetryRegressesToQualified(t *testing.T) {
	got, err := Next(FailedValidation, EventRetryGeneration)
	require.NoError(t, err)
	assert.Equal(t, Qualified, got)
}

func TestNext_ExpiryOnlyFromPendingReview(t *testing.T) {
	got, err := Next(PendingReview, EventExpire)
	require.NoError(t, err)
	assert.Equal(t, Expired, got)

	for _, from := range []Status{Scraped, Qualified, Generating, Ready, Authorized, Submitted} {
		_, err := Next(from, EventExpire)
		assert.ErrorIs(t, err, ErrIllegalTransition, "expire on %s", from)
	}
}

func TestNext_AmbiguousSubmission(t *testing.T) {
	got, err := Next(Authorized, EventAmbiguousSubmission)
	require.NoError(t, err)
	assert.Equal(t, Ambiguous, got)
	assert.True(t, Terminal(Ambiguous))
}

func TestTerminal(t *testing.T) {
	terminal := []Status{RejectedByFilter, RejectedByHuman, Submitted, Expired, Ambiguous, FailedValidation}
	for _, s := range terminal {
		assert.True(t, Terminal(s), "%s", s)
	}
	live := []Status{Scraped, Qualified, Generating, Ready, PendingReview, Authorized}
	for _, s := range live {
		assert.False(t, Terminal(s), "%s", s)
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(PendingReview))
	assert.False(t, Valid(Status("cv_ready")))
	assert.False(t, Valid(Status("")))
}
