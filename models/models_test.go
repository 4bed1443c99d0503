package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoteValue_Toggle(t *testing.T) {
	tests := []struct {
		name      string
		current   VoteValue
		direction VoteValue
		want      VoteValue
	}{
		{"up from none", VoteNone, VoteUp, VoteUp},
		{"up again removes", VoteUp, VoteUp, VoteNone},
		{"flip up to down", VoteUp, VoteDown, VoteDown},
		{"down again removes", VoteDown, VoteDown, VoteNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.current.Toggle(tt.direction))
		})
	}
}

func TestVoteValue_Validate(t *testing.T) {
	assert.NoError(t, VoteUp.Validate())
	assert.NoError(t, VoteNone.Validate())
	assert.Error(t, VoteValue(2).Validate())
	assert.Error(t, VoteValue(-5).Validate())
}

func TestToggleReaction(t *testing.T) {
	like := ReactionLike
	love := ReactionLove

	got := ToggleReaction(nil, ReactionLike)
	require.NotNil(t, got)
	assert.Equal(t, ReactionLike, *got)

	assert.Nil(t, ToggleReaction(&like, ReactionLike), "same type removes")

	got = ToggleReaction(&like, ReactionLove)
	require.NotNil(t, got)
	assert.Equal(t, love, *got, "different type replaces")
}

func TestResultAdded(t *testing.T) {
	assert.True(t, (&VoteResult{Previous: VoteNone, Value: VoteUp}).Added())
	assert.True(t, (&VoteResult{Previous: VoteDown, Value: VoteUp}).Added())
	assert.False(t, (&VoteResult{Previous: VoteUp, Value: VoteUp}).Added())
	assert.False(t, (&VoteResult{Previous: VoteNone, Value: VoteDown}).Added())

	like, love := ReactionLike, ReactionLove
	assert.True(t, (&ReactionResult{Reaction: &like}).Added())
	assert.True(t, (&ReactionResult{Previous: &like, Reaction: &love}).Added())
	assert.False(t, (&ReactionResult{Previous: &like, Reaction: &like}).Added())
	assert.False(t, (&ReactionResult{Previous: &like}).Added())
}

func TestConversationID_Deterministic(t *testing.T) {
	assert.Equal(t, ConversationID("bob", "alice"), ConversationID("alice", "bob"))
	assert.Equal(t, "alice_bob", ConversationID("bob", "alice"))
}

func TestConversation_IsOtherTyping(t *testing.T) {
	c := &Conversation{Participants: []Participant{
		{UserID: "a", IsTyping: false},
		{UserID: "b", IsTyping: true},
	}}
	assert.True(t, c.IsOtherTyping("a"))
	assert.False(t, c.IsOtherTyping("b"))
	assert.True(t, c.HasParticipant("a"))
	assert.False(t, c.HasParticipant("z"))
}

func TestStartConversationRequest_Validate(t *testing.T) {
	assert.NoError(t, (&StartConversationRequest{UserID: "u1"}).Validate())
	assert.NoError(t, (&StartConversationRequest{Username: "ali"}).Validate())
	assert.Error(t, (&StartConversationRequest{}).Validate())
	assert.Error(t, (&StartConversationRequest{UserID: "u1", Username: "ali"}).Validate())
}

func TestCreateUserRequest_Validate(t *testing.T) {
	req := &CreateUserRequest{Username: "  ali_1 ", Password: "longenough"}
	require.NoError(t, req.Validate())
	assert.Equal(t, "ali_1", req.Username)

	assert.Error(t, (&CreateUserRequest{Username: "a!", Password: "longenough"}).Validate())
	assert.Error(t, (&CreateUserRequest{Username: "alice", Password: "short"}).Validate())
	assert.Error(t, (&CreateUserRequest{Username: "alice", Password: "longenough", Email: "nope"}).Validate())
}

func TestPreviewOf(t *testing.T) {
	assert.Equal(t, "hi", PreviewOf("hi"))
	long := strings.Repeat("ş", 150)
	p := PreviewOf(long)
	assert.Equal(t, 101, len([]rune(p)))
}
