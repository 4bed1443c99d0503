package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/pano/models"
)

func TestReconcile_RepairsDrift(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	author := env.user(t, "author")
	alice := env.user(t, "alice")
	post := env.post(t, author.ID, "Hello")
	clean := env.post(t, author.ID, "Clean")

	_, err := env.interactions.ApplyVote(ctx, post.ID, alice.ID, models.VoteUp)
	require.NoError(t, err)
	_, err = env.interactions.ToggleReaction(ctx, post.ID, alice.ID, models.ReactionSad)
	require.NoError(t, err)

	_, err = env.db.Conn.Exec(`UPDATE targets SET vote_count = 42 WHERE id = ?`, post.ID)
	require.NoError(t, err)
	_, err = env.db.Conn.Exec(`INSERT INTO target_reaction_counts (target_id, reaction_type, count) VALUES (?, 'like', 7)`, post.ID)
	require.NoError(t, err)

	rec := NewReconcileService(env.store, env.pub)

	drifts, err := rec.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, post.ID, drifts[0].TargetID)
	assert.Equal(t, 42, drifts[0].CachedVotes)
	assert.Equal(t, 1, drifts[0].LedgerVotes)

	got := env.target(t, post.ID)
	assert.Equal(t, 1, got.VoteCount)
	assert.Equal(t, map[models.ReactionType]int{models.ReactionSad: 1}, got.ReactionCounts)

	d, err := rec.ReconcileTarget(ctx, clean.ID)
	require.NoError(t, err)
	assert.False(t, d.Changed())

	drifts, err = rec.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts)
}

func TestDrift_ChangedIgnoresZeroEntries(t *testing.T) {
	d := Drift{
		CachedReactions: map[models.ReactionType]int{models.ReactionLike: 0},
		LedgerReactions: map[models.ReactionType]int{},
	}
	assert.False(t, d.Changed())

	d.LedgerVotes = 1
	assert.True(t, d.Changed())
}
