package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/pano/models"
	"github.com/akinalp/pano/pkg"
	"github.com/akinalp/pano/realtime"
)

func TestContent_CommentNotificationsInSameBatch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	author := env.user(t, "author")
	bob := env.user(t, "bob")
	carol := env.user(t, "carol")
	post := env.post(t, author.ID, "Hello")

	top, err := env.content.CreateComment(ctx, post.ID, bob.ID, &models.CreateCommentRequest{Body: "nice post"})
	require.NoError(t, err)

	reply, err := env.content.CreateComment(ctx, post.ID, carol.ID, &models.CreateCommentRequest{ParentID: &top.ID, Body: "agreed"})
	require.NoError(t, err)

	authorFeed := env.notificationsOf(t, author.ID)
	require.Len(t, authorFeed, 2)
	assert.Equal(t, reply.ID, authorFeed[0].TargetID)
	assert.Equal(t, "carol", authorFeed[0].ActorName)
	assert.Equal(t, "Hello", authorFeed[0].PostTitle)
	assert.Equal(t, "agreed", authorFeed[0].Preview)

	bobFeed := env.notificationsOf(t, bob.ID)
	require.Len(t, bobFeed, 1, "parent comment author is notified of the reply")
	assert.Equal(t, models.NotificationComment, bobFeed[0].Type)

	assert.Empty(t, env.notificationsOf(t, carol.ID))
	assert.Len(t, env.pub.For("notifications/"+author.ID), 2)
}

func TestContent_CommentFailsWithNotificationBatch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	author := env.user(t, "author")
	bob := env.user(t, "bob")
	post := env.post(t, author.ID, "Hello")

	_, err := env.db.Conn.Exec(`
		CREATE TRIGGER fail_notifications BEFORE INSERT ON notifications
		BEGIN SELECT RAISE(ABORT, 'notifications unavailable'); END`)
	require.NoError(t, err)

	_, err = env.content.CreateComment(ctx, post.ID, bob.ID, &models.CreateCommentRequest{Body: "hi"})
	require.Error(t, err)

	comments, err := env.store.Repos().Targets.ListComments(ctx, post.ID)
	require.NoError(t, err)
	assert.Empty(t, comments, "comment and its notifications commit together")
}

func TestContent_LockedPostRejectsComments(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	author := env.user(t, "author")
	bob := env.user(t, "bob")
	post := env.post(t, author.ID, "Hello")

	_, err := env.content.LockTarget(ctx, post.ID, bob.ID, true)
	assert.ErrorIs(t, err, pkg.ErrPermissionDenied, "only the author can lock")

	_, err = env.content.LockTarget(ctx, post.ID, author.ID, true)
	require.NoError(t, err)

	_, err = env.content.CreateComment(ctx, post.ID, bob.ID, &models.CreateCommentRequest{Body: "hi"})
	assert.ErrorIs(t, err, pkg.ErrPermissionDenied)
}

func TestContent_ParentMustBelongToPost(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	author := env.user(t, "author")
	first := env.post(t, author.ID, "First")
	second := env.post(t, author.ID, "Second")

	c, err := env.content.CreateComment(ctx, first.ID, author.ID, &models.CreateCommentRequest{Body: "x"})
	require.NoError(t, err)

	_, err = env.content.CreateComment(ctx, second.ID, author.ID, &models.CreateCommentRequest{ParentID: &c.ID, Body: "y"})
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	_, err = env.content.CreateComment(ctx, c.ID, author.ID, &models.CreateCommentRequest{Body: "y"})
	assert.ErrorIs(t, err, pkg.ErrBadRequest, "comments attach to posts only")
}

func TestContent_ListCommentsThreadWithViewerState(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	author := env.user(t, "author")
	viewer := env.user(t, "viewer")
	post := env.post(t, author.ID, "Hello")

	root, err := env.content.CreateComment(ctx, post.ID, author.ID, &models.CreateCommentRequest{Body: "root"})
	require.NoError(t, err)
	child, err := env.content.CreateComment(ctx, post.ID, author.ID, &models.CreateCommentRequest{ParentID: &root.ID, Body: "child"})
	require.NoError(t, err)
	_, err = env.content.CreateComment(ctx, post.ID, author.ID, &models.CreateCommentRequest{Body: "second root"})
	require.NoError(t, err)

	_, err = env.interactions.ToggleReaction(ctx, child.ID, viewer.ID, models.ReactionHaha)
	require.NoError(t, err)

	thread, err := env.content.ListComments(ctx, post.ID, viewer.ID)
	require.NoError(t, err)
	require.Len(t, thread, 2)
	assert.Equal(t, root.ID, thread[0].Comment.Target.ID)
	require.Len(t, thread[0].Replies, 1)

	node := thread[0].Replies[0]
	assert.Equal(t, 1, node.Depth)
	require.Len(t, node.Comment.Reactions, 1)
	assert.Equal(t, models.ReactionHaha, node.Comment.Reactions[0].Type)
	assert.True(t, node.Comment.Reactions[0].Mine)
}

func TestContent_DeleteAuthorOnly(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	author := env.user(t, "author")
	bob := env.user(t, "bob")
	post := env.post(t, author.ID, "Hello")

	c, err := env.content.CreateComment(ctx, post.ID, bob.ID, &models.CreateCommentRequest{Body: "bye"})
	require.NoError(t, err)

	err = env.content.DeleteTarget(ctx, c.ID, author.ID)
	assert.ErrorIs(t, err, pkg.ErrPermissionDenied)

	require.NoError(t, env.content.DeleteTarget(ctx, c.ID, bob.ID))
	_, err = env.content.GetTarget(ctx, c.ID)
	assert.ErrorIs(t, err, pkg.ErrNotFound)

	thread := env.pub.For("comments/" + post.ID)
	require.NotEmpty(t, thread)
	assert.Equal(t, realtime.Removed, thread[len(thread)-1].Type)
}

func TestContent_GetPostView(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	author := env.user(t, "author")
	viewer := env.user(t, "viewer")
	post := env.post(t, author.ID, "Hello")

	_, err := env.interactions.ApplyVote(ctx, post.ID, viewer.ID, models.VoteUp)
	require.NoError(t, err)

	view, err := env.content.GetPostView(ctx, post.ID, viewer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Votes.Count)
	assert.True(t, view.Votes.Upvoted)

	anon, err := env.content.GetPostView(ctx, post.ID, "")
	require.NoError(t, err)
	assert.False(t, anon.Votes.Upvoted)

	views, err := env.content.ListPosts(ctx, "c1", viewer.ID, 10)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, models.VoteUp, views[0].Votes.Mine)
}

// ─── Notification feed ───

func TestNotifications_ReadFlags(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	author := env.user(t, "author")
	bob := env.user(t, "bob")
	post := env.post(t, author.ID, "Hello")

	for _, body := range []string{"one", "two", "three"} {
		_, err := env.content.CreateComment(ctx, post.ID, bob.ID, &models.CreateCommentRequest{Body: body})
		require.NoError(t, err)
	}

	unread, err := env.notifications.UnreadCount(ctx, author.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, unread)

	feed := env.notificationsOf(t, author.ID)
	require.NoError(t, env.notifications.MarkRead(ctx, author.ID, feed[0].ID))
	assert.ErrorIs(t, env.notifications.MarkRead(ctx, bob.ID, feed[1].ID), pkg.ErrNotFound,
		"cannot flip someone else's notification")

	n, err := env.notifications.MarkAllRead(ctx, author.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = env.notifications.MarkAllRead(ctx, author.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Len(t, env.notificationsOf(t, author.ID), 3, "mark-all-read never deletes")
}

func TestNotifications_PushPrunesFailedTokens(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	author := env.user(t, "author")
	bob := env.user(t, "bob")
	post := env.post(t, author.ID, "Hello")

	require.NoError(t, env.notifications.RegisterDevice(ctx, author.ID, "mailto:author@example.com"))
	require.NoError(t, env.notifications.RegisterDevice(ctx, author.ID, "log:dead-phone"))
	assert.ErrorIs(t, env.notifications.RegisterDevice(ctx, author.ID, "no-scheme"), pkg.ErrBadRequest)
	env.push.reject["log:dead-phone"] = true

	_, err := env.interactions.ToggleVote(ctx, post.ID, bob.ID, models.VoteUp)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"mailto:author@example.com", "log:dead-phone"}, env.push.sent)
	require.Len(t, env.push.payload, 1)
	assert.Contains(t, env.push.payload[0].Body, "bob upvoted your post")

	tokens, err := env.store.Repos().DeviceTokens.ListByUser(ctx, author.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"mailto:author@example.com"}, tokens)
}
