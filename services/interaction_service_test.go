package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/pano/models"
	"github.com/akinalp/pano/pkg"
)

func TestInteraction_VoteSequence(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	author := env.user(t, "author")
	a := env.user(t, "alice")
	b := env.user(t, "bob")
	post := env.post(t, author.ID, "Hello")

	steps := []struct {
		actor     string
		direction models.VoteValue
		wantDelta int
		wantCount int
		wantValue models.VoteValue
	}{
		{a.ID, models.VoteUp, 1, 1, models.VoteUp},
		{b.ID, models.VoteUp, 1, 2, models.VoteUp},
		{a.ID, models.VoteDown, -2, 0, models.VoteDown},
		{a.ID, models.VoteDown, 1, 1, models.VoteNone},
	}

	for i, step := range steps {
		res, err := env.interactions.ToggleVote(ctx, post.ID, step.actor, step.direction)
		require.NoError(t, err, "step %d", i)
		assert.Equal(t, step.wantDelta, res.Delta, "step %d delta", i)
		assert.Equal(t, step.wantCount, res.VoteCount, "step %d count", i)
		assert.Equal(t, step.wantValue, res.Value, "step %d value", i)
	}

	v, err := env.store.Repos().Ledger.GetVote(ctx, post.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VoteNone, v, "toggled-off vote leaves no ledger entry")
	assert.Equal(t, 1, env.target(t, post.ID).VoteCount)
}

func TestInteraction_ToggleTwiceRemovesEntry(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	author := env.user(t, "author")
	a := env.user(t, "alice")
	post := env.post(t, author.ID, "Hello")

	_, err := env.interactions.ToggleVote(ctx, post.ID, a.ID, models.VoteUp)
	require.NoError(t, err)
	res, err := env.interactions.ToggleVote(ctx, post.ID, a.ID, models.VoteUp)
	require.NoError(t, err)

	assert.Equal(t, models.VoteNone, res.Value)
	assert.Equal(t, 0, res.VoteCount)

	var rows int
	require.NoError(t, env.db.Conn.QueryRow(`SELECT COUNT(*) FROM votes WHERE target_id = ?`, post.ID).Scan(&rows))
	assert.Zero(t, rows)
}

func TestInteraction_SameDesiredStateIsNoop(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	author := env.user(t, "author")
	a := env.user(t, "alice")
	post := env.post(t, author.ID, "Hello")

	_, err := env.interactions.ApplyVote(ctx, post.ID, a.ID, models.VoteUp)
	require.NoError(t, err)
	res, err := env.interactions.ApplyVote(ctx, post.ID, a.ID, models.VoteUp)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Delta)
	assert.Equal(t, 1, res.VoteCount)
	assert.Len(t, env.pub.For("target/"+post.ID), 2, "no-op still publishes the authoritative value")
}

func TestInteraction_ReactionReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	author := env.user(t, "author")
	a := env.user(t, "alice")
	post := env.post(t, author.ID, "Hello")

	_, err := env.interactions.ToggleReaction(ctx, post.ID, a.ID, models.ReactionLike)
	require.NoError(t, err)
	res, err := env.interactions.ToggleReaction(ctx, post.ID, a.ID, models.ReactionLove)
	require.NoError(t, err)

	assert.Equal(t, map[models.ReactionType]int{models.ReactionLike: -1, models.ReactionLove: 1}, res.Delta)
	assert.Equal(t, map[models.ReactionType]int{models.ReactionLove: 1}, res.ReactionCounts)

	got, err := env.store.Repos().Ledger.GetReaction(ctx, post.ID, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.ReactionLove, *got)

	res, err = env.interactions.ToggleReaction(ctx, post.ID, a.ID, models.ReactionLove)
	require.NoError(t, err)
	assert.Nil(t, res.Reaction)
	assert.Empty(t, res.ReactionCounts)
}

func TestInteraction_InvalidInput(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	author := env.user(t, "author")
	post := env.post(t, author.ID, "Hello")

	_, err := env.interactions.ApplyVote(ctx, post.ID, author.ID, models.VoteValue(2))
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	_, err = env.interactions.ToggleVote(ctx, post.ID, author.ID, models.VoteNone)
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	bad := models.ReactionType("meh")
	_, err = env.interactions.ApplyReaction(ctx, post.ID, author.ID, &bad)
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	_, err = env.interactions.ApplyVote(ctx, "missing", author.ID, models.VoteUp)
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

func TestInteraction_PermissionDenied(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	author := env.user(t, "author")
	a := env.user(t, "alice")
	post := env.post(t, author.ID, "Hello")

	_, err := env.content.LockTarget(ctx, post.ID, author.ID, true)
	require.NoError(t, err)

	_, err = env.interactions.ApplyVote(ctx, post.ID, a.ID, models.VoteUp)
	require.ErrorIs(t, err, pkg.ErrPermissionDenied)

	var perr *pkg.PermissionError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "vote", perr.Op)
	assert.Equal(t, "targets/"+post.ID+"/votes/"+a.ID, perr.Path)

	_, err = env.interactions.ApplyVote(ctx, "whatever", "ghost", models.VoteUp)
	assert.ErrorIs(t, err, pkg.ErrPermissionDenied, "unknown actor")

	assert.Equal(t, 0, env.target(t, post.ID).VoteCount)
}

func TestInteraction_ConcurrentVotesCommute(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	author := env.user(t, "author")
	post := env.post(t, author.ID, "Hello")

	const voters = 12
	users := make([]*models.User, voters)
	for i := range users {
		users[i] = env.user(t, fmt.Sprintf("voter%d", i))
	}

	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Her actor birkaç kez toggle eder; son durum i'ye göre belirlenir.
			dir := models.VoteUp
			if i%3 == 0 {
				dir = models.VoteDown
			}
			for n := 0; n <= i%3; n++ {
				_, err := env.interactions.ToggleVote(ctx, post.ID, u.ID, dir)
				assert.NoError(t, err)
			}
			_, err := env.interactions.ToggleReaction(ctx, post.ID, u.ID, models.ReactionTypes[i%len(models.ReactionTypes)])
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	reads := env.store.Repos()
	sum, err := reads.Ledger.SumVotes(ctx, post.ID)
	require.NoError(t, err)
	counts, err := reads.Ledger.CountReactions(ctx, post.ID)
	require.NoError(t, err)

	got := env.target(t, post.ID)
	assert.Equal(t, sum, got.VoteCount, "cached vote count must equal ledger sum")
	assert.Equal(t, counts, got.ReactionCounts, "cached reaction counts must equal ledger counts")

	var perActor int
	require.NoError(t, env.db.Conn.QueryRow(`
		SELECT COALESCE(MAX(c), 0) FROM (SELECT COUNT(*) AS c FROM votes WHERE target_id = ? GROUP BY actor_id)`,
		post.ID).Scan(&perActor))
	assert.LessOrEqual(t, perActor, 1)
}

func TestInteraction_PublishedVersionsOrderCommits(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	author := env.user(t, "author")
	post := env.post(t, author.ID, "Hello")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		u := env.user(t, fmt.Sprintf("voter%d", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.interactions.ApplyVote(ctx, post.ID, u.ID, models.VoteUp)
			assert.NoError(t, err)
			like := models.ReactionLike
			_, err = env.interactions.ApplyReaction(ctx, post.ID, u.ID, &like)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Yayın sırası commit sırasından farklı olabilir; en büyük versiyonlu
	// doküman her zaman son commit'in halidir.
	seen := map[int64]bool{}
	var newest *models.Target
	for _, c := range env.pub.For("target/" + post.ID) {
		doc := c.Data.(*models.Target)
		assert.False(t, seen[doc.Version], "each commit publishes a distinct version")
		seen[doc.Version] = true
		if newest == nil || doc.Version > newest.Version {
			newest = doc
		}
	}

	got := env.target(t, post.ID)
	require.NotNil(t, newest)
	assert.Equal(t, got.Version, newest.Version)
	assert.Equal(t, 8, newest.VoteCount)
	assert.Equal(t, got.ReactionCounts, newest.ReactionCounts)
}

func TestInteraction_NotificationFanout(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	author := env.user(t, "author")
	a := env.user(t, "alice")
	post := env.post(t, author.ID, "Hello")

	// self vote: bildirim yok
	_, err := env.interactions.ToggleVote(ctx, post.ID, author.ID, models.VoteUp)
	require.NoError(t, err)
	assert.Empty(t, env.notificationsOf(t, author.ID))

	// off → on: iki ayrı bildirim (dedup yok)
	for i := 0; i < 3; i++ {
		_, err := env.interactions.ToggleVote(ctx, post.ID, a.ID, models.VoteUp)
		require.NoError(t, err)
	}
	list := env.notificationsOf(t, author.ID)
	require.Len(t, list, 2)
	assert.Equal(t, models.NotificationVote, list[0].Type)
	assert.Equal(t, "alice", list[0].ActorName)
	assert.Equal(t, "Hello", list[0].PostTitle)
	assert.Equal(t, post.ID, list[0].TargetID)

	// downvote bildirim üretmez
	_, err = env.interactions.ApplyVote(ctx, post.ID, a.ID, models.VoteDown)
	require.NoError(t, err)
	assert.Len(t, env.notificationsOf(t, author.ID), 2)

	_, err = env.interactions.ToggleReaction(ctx, post.ID, a.ID, models.ReactionWow)
	require.NoError(t, err)
	list = env.notificationsOf(t, author.ID)
	require.Len(t, list, 3)
	assert.Equal(t, models.NotificationReaction, list[0].Type)
	assert.Equal(t, "wow", list[0].Preview)
}

func TestInteraction_FanoutFailureDoesNotAffectVote(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	author := env.user(t, "author")
	a := env.user(t, "alice")
	post := env.post(t, author.ID, "Hello")

	_, err := env.db.Conn.Exec(`
		CREATE TRIGGER fail_notifications BEFORE INSERT ON notifications
		BEGIN SELECT RAISE(ABORT, 'notifications unavailable'); END`)
	require.NoError(t, err)

	res, err := env.interactions.ToggleVote(ctx, post.ID, a.ID, models.VoteUp)
	require.NoError(t, err, "fan-out failure must not reach the caller")
	assert.Equal(t, 1, res.VoteCount)

	assert.Equal(t, 1, env.queue.Failures())
	assert.Equal(t, 1, env.target(t, post.ID).VoteCount)
	v, err := env.store.Repos().Ledger.GetVote(ctx, post.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VoteUp, v)
}

func TestInteraction_PublishesCommentToThread(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	author := env.user(t, "author")
	a := env.user(t, "alice")
	post := env.post(t, author.ID, "Hello")

	comment, err := env.content.CreateComment(ctx, post.ID, author.ID, &models.CreateCommentRequest{Body: "first"})
	require.NoError(t, err)

	_, err = env.interactions.ToggleVote(ctx, comment.ID, a.ID, models.VoteUp)
	require.NoError(t, err)

	thread := env.pub.For("comments/" + post.ID)
	require.Len(t, thread, 2, "added comment + modified vote count")
	assert.Equal(t, comment.ID, thread[1].ID)
	assert.Len(t, env.pub.For("target/"+comment.ID), 1)
}
