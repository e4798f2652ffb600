package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/emilythestrangee/qa-forum/backend/internal/models"
)

func TestToggle(t *testing.T) {
	tests := []struct {
		old, requested    int
		resulting, delta int
	}{
		{0, 1, 1, 1},
		{0, -1, -1, -1},
		{1, 1, 0, -1},
		{-1, -1, 0, 1},
		{1, -1, -1, -2},
		{-1, 1, 1, 2},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_to_%d", tt.old, tt.requested), func(t *testing.T) {
			resulting, delta := toggle(tt.old, tt.requested)
			assert.Equal(t, tt.resulting, resulting)
			assert.Equal(t, tt.delta, delta)
		})
	}
}

func TestReputationDelta(t *testing.T) {
	assert.Equal(t, 5, reputationDelta(0, 1))
	assert.Equal(t, -2, reputationDelta(0, -1))
	assert.Equal(t, -5, reputationDelta(1, 0))
	assert.Equal(t, -7, reputationDelta(1, -1))
	assert.Equal(t, 7, reputationDelta(-1, 1))
	assert.Equal(t, 0, reputationDelta(0, 0))
}

func TestTargetFromIDs(t *testing.T) {
	_, err := TargetFromIDs("", "")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = TargetFromIDs("q1", "a1")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	target, err := TargetFromIDs("q1", "")
	require.NoError(t, err)
	assert.Equal(t, Target{Kind: models.TargetQuestion, ID: "q1"}, target)

	target, err = TargetFromIDs("", "a1")
	require.NoError(t, err)
	assert.Equal(t, Target{Kind: models.TargetAnswer, ID: "a1"}, target)
}

func TestCastVote_QuestionScenario(t *testing.T) {
	svc, db := setupServices(t)
	ctx := context.Background()
	a := createUser(t, db, "alice")
	b := createUser(t, db, "bob")
	c := createUser(t, db, "carol")
	q := createQuestion(t, svc, a.ID)
	target := Target{Kind: models.TargetQuestion, ID: q.ID}

	res, err := svc.Votes.CastVote(ctx, b.ID, target, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Value)
	assert.Equal(t, 1, res.VoteCount)
	assert.Equal(t, "Vote recorded", res.Message)
	assert.Equal(t, 1, reload[models.Question](t, db, q.ID).VoteCount)
	assert.Equal(t, 5, reload[models.User](t, db, a.ID).Reputation)

	// Same direction again removes the vote.
	res, err = svc.Votes.CastVote(ctx, b.ID, target, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Value)
	assert.Equal(t, 0, res.VoteCount)
	assert.Equal(t, "Vote removed", res.Message)
	assert.Equal(t, 0, reload[models.Question](t, db, q.ID).VoteCount)
	assert.Equal(t, 0, reload[models.User](t, db, a.ID).Reputation)

	res, err = svc.Votes.CastVote(ctx, c.ID, target, -1)
	require.NoError(t, err)
	assert.Equal(t, -1, res.Value)
	assert.Equal(t, -1, reload[models.Question](t, db, q.ID).VoteCount)
	assert.Equal(t, -2, reload[models.User](t, db, a.ID).Reputation)

	// Voters never gain or lose reputation.
	assert.Equal(t, 0, reload[models.User](t, db, b.ID).Reputation)
	assert.Equal(t, 0, reload[models.User](t, db, c.ID).Reputation)
}

func TestCastVote_Flip(t *testing.T) {
	svc, db := setupServices(t)
	ctx := context.Background()
	owner := createUser(t, db, "owner")
	voter := createUser(t, db, "voter")
	q := createQuestion(t, svc, owner.ID)
	ans := createAnswer(t, svc, owner.ID, q.ID)
	target := Target{Kind: models.TargetAnswer, ID: ans.ID}

	_, err := svc.Votes.CastVote(ctx, voter.ID, target, 1)
	require.NoError(t, err)
	countAfterUp := reload[models.Answer](t, db, ans.ID).VoteCount
	repAfterUp := reload[models.User](t, db, owner.ID).Reputation

	res, err := svc.Votes.CastVote(ctx, voter.ID, target, -1)
	require.NoError(t, err)
	assert.Equal(t, -1, res.Value)
	assert.Equal(t, -2, res.Delta)
	assert.Equal(t, "Vote updated", res.Message)
	assert.Equal(t, countAfterUp-2, reload[models.Answer](t, db, ans.ID).VoteCount)
	assert.Equal(t, repAfterUp-7, reload[models.User](t, db, owner.ID).Reputation)

	var votes int64
	require.NoError(t, db.Model(&models.Vote{}).Count(&votes).Error)
	assert.EqualValues(t, 1, votes)
}

func TestCastVote_ToggleRestoresState(t *testing.T) {
	for _, value := range []int{1, -1} {
		t.Run(fmt.Sprintf("value_%d", value), func(t *testing.T) {
			svc, db := setupServices(t)
			ctx := context.Background()
			owner := createUser(t, db, "owner")
			voter := createUser(t, db, "voter")
			q := createQuestion(t, svc, owner.ID)
			target := Target{Kind: models.TargetQuestion, ID: q.ID}

			_, err := svc.Votes.CastVote(ctx, voter.ID, target, value)
			require.NoError(t, err)
			res, err := svc.Votes.CastVote(ctx, voter.ID, target, value)
			require.NoError(t, err)

			assert.Equal(t, 0, res.Value)
			assert.Equal(t, 0, reload[models.Question](t, db, q.ID).VoteCount)
			assert.Equal(t, 0, reload[models.User](t, db, owner.ID).Reputation)
			current, err := svc.Votes.GetUserVote(ctx, voter.ID, target)
			require.NoError(t, err)
			assert.Equal(t, 0, current)
		})
	}
}

func TestCastVote_Rejections(t *testing.T) {
	svc, db := setupServices(t)
	ctx := context.Background()
	owner := createUser(t, db, "owner")
	voter := createUser(t, db, "voter")
	q := createQuestion(t, svc, owner.ID)
	ans := createAnswer(t, svc, voter.ID, q.ID)

	tests := []struct {
		name    string
		voterID string
		target  Target
		value   int
		want    error
	}{
		{"self vote on question", owner.ID, Target{models.TargetQuestion, q.ID}, 1, ErrSelfVoteForbidden},
		{"self vote on answer", voter.ID, Target{models.TargetAnswer, ans.ID}, -1, ErrSelfVoteForbidden},
		{"zero value", voter.ID, Target{models.TargetQuestion, q.ID}, 0, ErrInvalidRequest},
		{"out of range value", voter.ID, Target{models.TargetQuestion, q.ID}, 2, ErrInvalidRequest},
		{"unknown kind", voter.ID, Target{"comment", q.ID}, 1, ErrInvalidRequest},
		{"missing question", voter.ID, Target{models.TargetQuestion, "nope"}, 1, ErrNotFound},
		{"missing answer", owner.ID, Target{models.TargetAnswer, "nope"}, 1, ErrNotFound},
		{"missing voter", "", Target{models.TargetQuestion, q.ID}, 1, ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Votes.CastVote(ctx, tt.voterID, tt.target, tt.value)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, 0, reload[models.Question](t, db, q.ID).VoteCount)
	assert.Equal(t, 0, reload[models.Answer](t, db, ans.ID).VoteCount)
	assert.Equal(t, 0, reload[models.User](t, db, owner.ID).Reputation)
	assert.Equal(t, 0, reload[models.User](t, db, voter.ID).Reputation)

	var votes int64
	require.NoError(t, db.Model(&models.Vote{}).Count(&votes).Error)
	assert.Zero(t, votes)
}

func TestRemoveVote(t *testing.T) {
	svc, db := setupServices(t)
	ctx := context.Background()
	owner := createUser(t, db, "owner")
	voter := createUser(t, db, "voter")
	q := createQuestion(t, svc, owner.ID)
	target := Target{Kind: models.TargetQuestion, ID: q.ID}

	res, err := svc.Votes.RemoveVote(ctx, voter.ID, target)
	require.NoError(t, err)
	assert.Equal(t, "No vote to remove", res.Message)
	assert.Zero(t, res.Delta)

	_, err = svc.Votes.CastVote(ctx, voter.ID, target, -1)
	require.NoError(t, err)
	res, err = svc.Votes.RemoveVote(ctx, voter.ID, target)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Delta)
	assert.Equal(t, 0, res.VoteCount)
	assert.Equal(t, 0, reload[models.User](t, db, owner.ID).Reputation)
}

func TestTotalsAndQueries(t *testing.T) {
	svc, db := setupServices(t)
	ctx := context.Background()
	owner := createUser(t, db, "owner")
	q := createQuestion(t, svc, owner.ID)
	target := Target{Kind: models.TargetQuestion, ID: q.ID}

	for i, value := range []int{1, 1, 1, -1} {
		voter := createUser(t, db, fmt.Sprintf("voter%d", i))
		_, err := svc.Votes.CastVote(ctx, voter.ID, target, value)
		require.NoError(t, err)
	}

	totals, err := svc.Votes.Totals(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, VoteTotals{Upvotes: 3, Downvotes: 1, Total: 2}, totals)
	assert.Equal(t, totals.Total, reload[models.Question](t, db, q.ID).VoteCount)

	_, err = svc.Votes.Totals(ctx, Target{Kind: models.TargetAnswer, ID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)

	top, err := svc.Votes.TopVotedQuestions(ctx, 5)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, q.ID, top[0].ID)
	assert.Equal(t, "owner", top[0].Author.Username)

	var voter0 models.User
	require.NoError(t, db.Take(&voter0, "username = ?", "voter0").Error)
	votes, err := svc.Votes.VotesByUser(ctx, voter0.ID, Page{})
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, 1, votes[0].Value)
}

func TestCastVote_ConcurrentVotersNoLostUpdate(t *testing.T) {
	svc, db := setupServices(t)
	owner := createUser(t, db, "owner")
	q := createQuestion(t, svc, owner.ID)
	target := Target{Kind: models.TargetQuestion, ID: q.ID}

	const voters = 20
	ids := make([]string, voters)
	for i := range ids {
		ids[i] = createUser(t, db, fmt.Sprintf("voter%02d", i)).ID
	}

	g, ctx := errgroup.WithContext(context.Background())
	for _, id := range ids {
		g.Go(func() error {
			_, err := svc.Votes.CastVote(ctx, id, target, 1)
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, voters, reload[models.Question](t, db, q.ID).VoteCount)
	assert.Equal(t, voters*5, reload[models.User](t, db, owner.ID).Reputation)
}

func TestCastVote_ConcurrentSameVoter(t *testing.T) {
	svc, db := setupServices(t)
	owner := createUser(t, db, "owner")
	voter := createUser(t, db, "voter")
	q := createQuestion(t, svc, owner.ID)
	target := Target{Kind: models.TargetQuestion, ID: q.ID}

	// Two identical clicks serialize into vote then un-vote.
	g, ctx := errgroup.WithContext(context.Background())
	for range 2 {
		g.Go(func() error {
			_, err := svc.Votes.CastVote(ctx, voter.ID, target, 1)
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 0, reload[models.Question](t, db, q.ID).VoteCount)
	assert.Equal(t, 0, reload[models.User](t, db, owner.ID).Reputation)
}
