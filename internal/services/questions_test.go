package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/qa-forum/backend/internal/models"
)

func TestParseSort(t *testing.T) {
	key, err := ParseSortKey("")
	require.NoError(t, err)
	assert.Equal(t, SortCreatedAt, key)

	for _, k := range []string{"created_at", "vote_count", "views"} {
		key, err := ParseSortKey(k)
		require.NoError(t, err)
		assert.Equal(t, SortKey(k), key)
	}

	for _, bad := range []string{"title", "id; DROP TABLE users", "Vote_Count"} {
		_, err := ParseSortKey(bad)
		assert.ErrorIs(t, err, ErrInvalidRequest, bad)
	}

	order, err := ParseSortOrder("")
	require.NoError(t, err)
	assert.Equal(t, SortDesc, order)
	_, err = ParseSortOrder("sideways")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCreateQuestion_Validation(t *testing.T) {
	svc, db := setupServices(t)
	ctx := context.Background()
	owner := createUser(t, db, "owner")

	tests := []struct {
		name string
		in   QuestionInput
	}{
		{"empty title", QuestionInput{Title: " ", Content: "long enough content", TagNames: []string{"go"}}},
		{"short content", QuestionInput{Title: "ok", Content: "short", TagNames: []string{"go"}}},
		{"no tags", QuestionInput{Title: "ok", Content: "long enough content"}},
		{"too many tags", QuestionInput{Title: "ok", Content: "long enough content", TagNames: []string{"a", "b", "c", "d", "e", "f"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Questions.CreateQuestion(ctx, owner.ID, tt.in)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}

	var count int64
	require.NoError(t, db.Model(&models.Tag{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGetQuestionAndViews(t *testing.T) {
	svc, db := setupServices(t)
	ctx := context.Background()
	owner := createUser(t, db, "owner")
	q := createQuestion(t, svc, owner.ID, "Zeta", "alpha")

	got, err := svc.Questions.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "owner", got.Author.Username)
	require.Len(t, got.Tags, 2)
	assert.Equal(t, "alpha", got.Tags[0].Name)
	assert.Equal(t, "zeta", got.Tags[1].Name)

	require.NoError(t, svc.Questions.IncrementViews(ctx, q.ID))
	require.NoError(t, svc.Questions.IncrementViews(ctx, q.ID))
	assert.Equal(t, 2, reload[models.Question](t, db, q.ID).Views)

	assert.ErrorIs(t, svc.Questions.IncrementViews(ctx, "missing"), ErrNotFound)
	_, err = svc.Questions.GetQuestion(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateQuestion(t *testing.T) {
	svc, db := setupServices(t)
	ctx := context.Background()
	owner := createUser(t, db, "owner")
	other := createUser(t, db, "other")
	q := createQuestion(t, svc, owner.ID)

	title := "A better title"
	_, err := svc.Questions.UpdateQuestion(ctx, other.ID, q.ID, QuestionUpdate{Title: &title})
	assert.ErrorIs(t, err, ErrUnauthorized)

	updated, err := svc.Questions.UpdateQuestion(ctx, owner.ID, q.ID, QuestionUpdate{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	require.Len(t, updated.Tags, 1)

	empty := []string{}
	_, err = svc.Questions.UpdateQuestion(ctx, owner.ID, q.ID, QuestionUpdate{TagNames: &empty})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, 1, usage(t, db, "go"))
}

func TestDeleteQuestion_RevertsDerivedState(t *testing.T) {
	svc, db := setupServices(t)
	ctx := context.Background()
	owner := createUser(t, db, "owner")
	helper := createUser(t, db, "helper")
	voter := createUser(t, db, "voter")
	q := createQuestion(t, svc, owner.ID, "go", "gorm")
	ans := createAnswer(t, svc, helper.ID, q.ID)

	_, err := svc.Votes.CastVote(ctx, voter.ID, Target{Kind: models.TargetQuestion, ID: q.ID}, 1)
	require.NoError(t, err)
	_, err = svc.Votes.CastVote(ctx, voter.ID, Target{Kind: models.TargetAnswer, ID: ans.ID}, -1)
	require.NoError(t, err)
	_, err = svc.Votes.CastVote(ctx, owner.ID, Target{Kind: models.TargetAnswer, ID: ans.ID}, 1)
	require.NoError(t, err)
	_, err = svc.Answers.Accept(ctx, owner.ID, ans.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Questions.DeleteQuestion(ctx, helper.ID, q.ID), ErrUnauthorized)
	require.NoError(t, svc.Questions.DeleteQuestion(ctx, owner.ID, q.ID))

	assert.Equal(t, 0, reload[models.User](t, db, owner.ID).Reputation)
	assert.Equal(t, 0, reload[models.User](t, db, helper.ID).Reputation)
	assert.Equal(t, 0, usage(t, db, "go"))
	assert.Equal(t, 0, usage(t, db, "gorm"))

	for _, model := range []any{&models.Question{}, &models.Answer{}, &models.Vote{}, &models.QuestionTag{}} {
		var n int64
		require.NoError(t, db.Model(model).Count(&n).Error)
		assert.Zero(t, n, "%T", model)
	}

	assert.ErrorIs(t, svc.Questions.DeleteQuestion(ctx, owner.ID, q.ID), ErrNotFound)
}

func TestListQuestions(t *testing.T) {
	svc, db := setupServices(t)
	ctx := context.Background()
	owner := createUser(t, db, "owner")
	v1 := createUser(t, db, "v1")
	v2 := createUser(t, db, "v2")

	mk := func(title string, tags ...string) *models.Question {
		q, err := svc.Questions.CreateQuestion(ctx, owner.ID, QuestionInput{
			Title: title, Content: "content long enough to pass", TagNames: tags,
		})
		require.NoError(t, err)
		return q
	}
	a := mk("Goroutine leaks", "go")
	b := mk("Postgres locks", "postgres", "sql")
	c := mk("100% CPU in Go", "go", "perf")

	for _, voter := range []string{v1.ID, v2.ID} {
		_, err := svc.Votes.CastVote(ctx, voter, Target{Kind: models.TargetQuestion, ID: b.ID}, 1)
		require.NoError(t, err)
	}
	_, err := svc.Votes.CastVote(ctx, v1.ID, Target{Kind: models.TargetQuestion, ID: c.ID}, 1)
	require.NoError(t, err)
	require.NoError(t, svc.Questions.IncrementViews(ctx, a.ID))

	ids := func(qs []models.Question) []string {
		out := make([]string, len(qs))
		for i, q := range qs {
			out[i] = q.ID
		}
		return out
	}

	got, total, err := svc.Questions.ListQuestions(ctx, ListParams{Sort: SortVoteCount})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Equal(t, []string{b.ID, c.ID, a.ID}, ids(got))

	got, _, err = svc.Questions.ListQuestions(ctx, ListParams{Sort: SortVoteCount, Order: SortAsc})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, c.ID, b.ID}, ids(got))

	got, _, err = svc.Questions.ListQuestions(ctx, ListParams{Sort: SortViews})
	require.NoError(t, err)
	assert.Equal(t, a.ID, got[0].ID)

	got, total, err = svc.Questions.ListQuestions(ctx, ListParams{Tags: []string{"GO"}, Sort: SortVoteCount})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Equal(t, []string{c.ID, a.ID}, ids(got))

	got, total, err = svc.Questions.ListQuestions(ctx, ListParams{Query: "100%"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, []string{c.ID}, ids(got))

	got, total, err = svc.Questions.ListQuestions(ctx, ListParams{Sort: SortVoteCount, Page: Page{Page: 2, Limit: 2}})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Equal(t, []string{a.ID}, ids(got))

	_, _, err = svc.Questions.ListQuestions(ctx, ListParams{Sort: "title"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	byTag, err := svc.Questions.QuestionsByTag(ctx, "sql", Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ids(byTag))

	unanswered, err := svc.Questions.UnansweredQuestions(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, unanswered, 3)

	mine, err := svc.Questions.QuestionsByUser(ctx, owner.ID, Page{})
	require.NoError(t, err)
	assert.Len(t, mine, 3)
}
