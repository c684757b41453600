package services

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"fmt"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func newChatService(c *cluster) *ChatService {
	return NewChatService(c.conversations, c.messages, c.users, auth.NewGate(c.conversations, c.log), c.log)
}

func TestChatService_Create(t *testing.T) {
	req := require.New(t)
	c := newCluster(t)
	svc := newChatService(c)
	alice, bob := c.user("alice"), c.user("bob")

	// The caller is added even when not listed
	conversation, err := svc.CreateChat(c.ctx, alice, CreateChatRequest{ParticipantIDs: []domain.UserID{bob}})
	req.NoError(err)
	req.ElementsMatch([]domain.UserID{alice, bob}, conversation.Participants)
	req.False(conversation.IsGroup)

	// Unknown participants are refused
	_, err = svc.CreateChat(c.ctx, alice, CreateChatRequest{ParticipantIDs: []domain.UserID{"ghost"}})
	req.ErrorIs(err, errors.ErrValidation)

	// A group needs a name
	_, err = svc.CreateChat(c.ctx, alice, CreateChatRequest{ParticipantIDs: []domain.UserID{bob}, IsGroup: true})
	req.ErrorIs(err, errors.ErrValidation)

	_, err = svc.CreateChat(c.ctx, alice, CreateChatRequest{})
	req.ErrorIs(err, errors.ErrValidation)
}

func TestChatService_Update(t *testing.T) {
	req := require.New(t)
	c := newCluster(t)
	svc := newChatService(c)
	alice, bob, carol, mallory := c.user("alice"), c.user("bob"), c.user("carol"), c.user("mallory")

	group, err := svc.CreateChat(c.ctx, alice, CreateChatRequest{ParticipantIDs: []domain.UserID{bob}, IsGroup: true, GroupName: "team"})
	req.NoError(err)
	direct, err := svc.CreateChat(c.ctx, alice, CreateChatRequest{ParticipantIDs: []domain.UserID{bob}})
	req.NoError(err)

	// Non participants can't touch it
	_, err = svc.UpdateChat(c.ctx, mallory, group.ID, UpdateChatRequest{GroupName: "mine"})
	req.ErrorIs(err, errors.ErrAuthorization)

	// Direct conversations can't be updated
	_, err = svc.UpdateChat(c.ctx, alice, direct.ID, UpdateChatRequest{GroupName: "renamed"})
	req.ErrorIs(err, errors.ErrNotGroup)

	// A group keeps at least two participants
	_, err = svc.UpdateChat(c.ctx, alice, group.ID, UpdateChatRequest{ParticipantIDs: []domain.UserID{alice}})
	req.ErrorIs(err, errors.ErrValidation)

	updated, err := svc.UpdateChat(c.ctx, bob, group.ID, UpdateChatRequest{GroupName: "new team", ParticipantIDs: []domain.UserID{alice, carol}})
	req.NoError(err)
	req.Equal("new team", updated.GroupName)
	req.Equal([]domain.UserID{alice, carol}, updated.Participants)

	// bob is out, the gate sees it at once
	_, err = svc.History(c.ctx, bob, group.ID, 1, 20)
	req.ErrorIs(err, errors.ErrAuthorization)
}

func TestChatService_List_Only_Own_Chats(t *testing.T) {
	req := require.New(t)
	c := newCluster(t)
	svc := newChatService(c)
	alice, bob, carol := c.user("alice"), c.user("bob"), c.user("carol")
	withBob, err := svc.CreateChat(c.ctx, alice, CreateChatRequest{ParticipantIDs: []domain.UserID{bob}})
	req.NoError(err)
	_, err = svc.CreateChat(c.ctx, bob, CreateChatRequest{ParticipantIDs: []domain.UserID{carol}})
	req.NoError(err)

	_, err = svc.ListChats(c.ctx, alice, bob)
	req.ErrorIs(err, errors.ErrAuthorization)

	chats, err := svc.ListChats(c.ctx, alice, alice)
	req.NoError(err)
	req.Len(chats, 1)
	req.Equal(withBob.ID, chats[0].ID)
}

func TestChatService_History_Pagination(t *testing.T) {
	req := require.New(t)
	c := newCluster(t)
	svc := newChatService(c).WithPageLimits(2, 3)
	alice, bob := c.user("alice"), c.user("bob")
	conversation, err := svc.CreateChat(c.ctx, alice, CreateChatRequest{ParticipantIDs: []domain.UserID{bob}})
	req.NoError(err)
	for i := 1; i <= 5; i++ {
		_, err = c.messages.CreateMessage(c.ctx, conversation.ID, alice, fmt.Sprintf("m%d", i), "")
		req.NoError(err)
	}
	contents := func(page, limit int) []string {
		messages, err := svc.History(c.ctx, bob, conversation.ID, page, limit)
		req.NoError(err)
		for _, m := range messages {
			req.Equal("alice", m.SenderName)
		}
		return lo.Map(messages, func(m event.MessageEvent, _ int) string { return m.Content })
	}

	// Defaults to the first page of the default limit
	req.Equal([]string{"m4", "m5"}, contents(0, 0))
	// The limit is capped
	req.Equal([]string{"m3", "m4", "m5"}, contents(1, 50))
	req.Equal([]string{"m1", "m2"}, contents(2, 3))

	_, err = svc.History(c.ctx, c.user("mallory"), conversation.ID, 1, 20)
	req.ErrorIs(err, errors.ErrAuthorization)
}
