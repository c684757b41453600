package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"log/slog"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func Test_Find_Unknown_Conversation(t *testing.T) {
	req := require.New(t)
	repository := NewConversationRepository(openDB(t), slog.Default())

	_, err := repository.FindConversation(context.Background(), "missing")

	req.ErrorIs(err, errors.ErrConversationNotFound)
}

func Test_Create_Conversation_And_List_For_User(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewConversationRepository(openDB(t), slog.Default())

	// Given two conversations, alice in both
	direct, err := repository.CreateConversation(ctx, domain.Conversation{
		Participants: []domain.UserID{"alice", "bob", "alice"},
	})
	req.NoError(err)
	req.NotEmpty(direct.ID)
	req.Equal([]domain.UserID{"alice", "bob"}, direct.Participants)

	group, err := repository.CreateConversation(ctx, domain.Conversation{
		Participants: []domain.UserID{"alice", "carol"},
		IsGroup:      true,
		GroupName:    "friends",
	})
	req.NoError(err)

	// When listing per user
	forAlice, err := repository.ListForUser(ctx, "alice")
	req.NoError(err)
	forBob, err := repository.ListForUser(ctx, "bob")
	req.NoError(err)
	forDave, err := repository.ListForUser(ctx, "dave")
	req.NoError(err)

	// Then only conversations containing the user are returned
	ids := func(cs []domain.Conversation) []domain.ConversationID {
		return lo.Map(cs, func(c domain.Conversation, _ int) domain.ConversationID { return c.ID })
	}
	req.ElementsMatch([]domain.ConversationID{direct.ID, group.ID}, ids(forAlice))
	req.Equal([]domain.ConversationID{direct.ID}, ids(forBob))
	req.Empty(forDave)

	found, err := repository.FindConversation(ctx, group.ID)
	req.NoError(err)
	req.True(found.IsGroup)
	req.Equal("friends", found.GroupName)
	req.True(found.HasParticipant("carol"))
}

func Test_Update_Conversation_Moves_Membership(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewConversationRepository(openDB(t), slog.Default())

	group, err := repository.CreateConversation(ctx, domain.Conversation{
		Participants: []domain.UserID{"alice", "bob"},
		IsGroup:      true,
		GroupName:    "before",
	})
	req.NoError(err)

	// When bob is replaced by carol
	group.Participants = []domain.UserID{"alice", "carol"}
	group.GroupName = "after"
	req.NoError(repository.UpdateConversation(ctx, group))

	// Then the membership index follows
	forBob, err := repository.ListForUser(ctx, "bob")
	req.NoError(err)
	req.Empty(forBob)
	forCarol, err := repository.ListForUser(ctx, "carol")
	req.NoError(err)
	req.Len(forCarol, 1)
	req.Equal("after", forCarol[0].GroupName)
	req.False(forCarol[0].HasParticipant("bob"))
}

func Test_Update_Unknown_Conversation(t *testing.T) {
	req := require.New(t)
	repository := NewConversationRepository(openDB(t), slog.Default())

	err := repository.UpdateConversation(context.Background(), domain.Conversation{ID: "missing"})

	req.ErrorIs(err, errors.ErrConversationNotFound)
}
