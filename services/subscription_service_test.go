package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/pano/models"
	"github.com/akinalp/pano/pkg"
	"github.com/akinalp/pano/realtime"
)

func waitUpdate(t *testing.T, ch <-chan realtime.Update) realtime.Update {
	t.Helper()
	select {
	case u := <-ch:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
		return realtime.Update{}
	}
}

func TestSubscription_AccessRules(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	eve := env.user(t, "eve")
	conv, err := env.conversations.GetOrCreate(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	bridge := realtime.NewBridge()
	t.Cleanup(bridge.Close)
	subs := NewSubscriptionService(env.store, bridge)
	noop := func(realtime.Update) {}

	cases := []struct {
		name    string
		viewer  string
		q       realtime.Query
		wantErr error
	}{
		{"own notifications", alice.ID, realtime.Query{Collection: CollectionNotifications, Key: alice.ID}, nil},
		{"foreign notifications", eve.ID, realtime.Query{Collection: CollectionNotifications, Key: alice.ID}, pkg.ErrPermissionDenied},
		{"foreign conversation list", eve.ID, realtime.Query{Collection: CollectionConversations, Key: bob.ID}, pkg.ErrPermissionDenied},
		{"participant messages", bob.ID, realtime.Query{Collection: CollectionMessages, Key: conv.ID}, nil},
		{"outsider messages", eve.ID, realtime.Query{Collection: CollectionMessages, Key: conv.ID}, pkg.ErrPermissionDenied},
		{"outsider conversation", eve.ID, realtime.Query{Collection: CollectionConversation, Key: conv.ID}, pkg.ErrPermissionDenied},
		{"missing conversation", eve.ID, realtime.Query{Collection: CollectionConversation, Key: "nope"}, pkg.ErrPermissionDenied},
		{"public target", eve.ID, realtime.Query{Collection: CollectionTarget, Key: "anything"}, nil},
		{"unknown collection", eve.ID, realtime.Query{Collection: "servers", Key: "x"}, pkg.ErrBadRequest},
		{"empty key", eve.ID, realtime.Query{Collection: CollectionTarget}, pkg.ErrBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			unsub, err := subs.Subscribe(ctx, tc.viewer, tc.q, noop)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			unsub()
		})
	}
}

func TestSubscription_SnapshotThenLiveChanges(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	author := env.user(t, "author")
	alice := env.user(t, "alice")
	post := env.post(t, author.ID, "Hello")

	bridge := realtime.NewBridge()
	t.Cleanup(bridge.Close)
	subs := NewSubscriptionService(env.store, bridge)

	// Servisleri gerçek bridge'e yayın yapacak şekilde yeniden kur.
	interactions := NewInteractionService(env.store, bridge, env.notifications)

	updates := make(chan realtime.Update, 8)
	unsub, err := subs.Subscribe(ctx, alice.ID, realtime.Query{Collection: CollectionTarget, Key: post.ID}, func(u realtime.Update) {
		updates <- u
	})
	require.NoError(t, err)
	defer unsub()

	snap := waitUpdate(t, updates)
	require.True(t, snap.Snapshot)
	require.Len(t, snap.Changes, 1)
	assert.Equal(t, 0, snap.Changes[0].Data.(*models.Target).VoteCount)

	_, err = interactions.ApplyVote(ctx, post.ID, alice.ID, models.VoteUp)
	require.NoError(t, err)

	live := waitUpdate(t, updates)
	assert.False(t, live.Snapshot)
	assert.Greater(t, live.Seq, snap.Seq)
	require.Len(t, live.Changes, 1)
	assert.Equal(t, realtime.Modified, live.Changes[0].Type)
	assert.Equal(t, 1, live.Changes[0].Data.(*models.Target).VoteCount)
}
