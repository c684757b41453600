package repositories

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

// newRedisClient opens one more connection on server, as another process would
func newRedisClient(t *testing.T, server *miniredis.Miniredis) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func Test_Redis_Users_Shared_Between_Processes(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	server := miniredis.RunT(t)
	p1 := NewRedisUserRepository(newRedisClient(t, server))
	p2 := NewRedisUserRepository(newRedisClient(t, server))

	// Given alice registered through P1
	alice, err := p1.CreateUser(ctx, domain.User{Username: "alice", Email: "alice@example.com", PasswordHash: "hash"})
	req.NoError(err)

	// When P2 looks her up and registers the same email
	byEmail, err := p2.GetUserByEmail(ctx, "Alice@Example.com")
	req.NoError(err)
	_, err = p2.CreateUser(ctx, domain.User{Username: "other", Email: "alice@example.com"})

	// Then P2 sees her and refuses the duplicate
	req.Equal(alice.ID, byEmail.ID)
	req.Equal("hash", byEmail.PasswordHash)
	req.ErrorIs(err, errors.ErrUserAlreadyExists)

	// And device tokens added anywhere stay a set
	req.NoError(p1.AddDeviceToken(ctx, alice.ID, "token-1"))
	req.NoError(p2.AddDeviceToken(ctx, alice.ID, "token-1"))
	req.NoError(p2.AddDeviceToken(ctx, alice.ID, "token-2"))
	stored, err := p1.GetUser(ctx, alice.ID)
	req.NoError(err)
	req.Equal([]string{"token-1", "token-2"}, stored.DeviceTokens)
}

func Test_Redis_Update_User_Moves_Email(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewRedisUserRepository(newRedisClient(t, miniredis.RunT(t)))

	alice, err := repository.CreateUser(ctx, domain.User{Username: "alice", Email: "alice@example.com"})
	req.NoError(err)
	_, err = repository.CreateUser(ctx, domain.User{Username: "bob", Email: "bob@example.com"})
	req.NoError(err)

	// An email owned by someone else is refused
	alice.Email = "bob@example.com"
	req.ErrorIs(repository.UpdateUser(ctx, alice), errors.ErrUserAlreadyExists)

	alice.Username = "alicia"
	alice.Email = "alicia@example.com"
	req.NoError(repository.UpdateUser(ctx, alice))

	_, err = repository.GetUserByEmail(ctx, "alice@example.com")
	req.ErrorIs(err, errors.ErrUserNotFound)
	moved, err := repository.GetUserByEmail(ctx, "alicia@example.com")
	req.NoError(err)
	req.Equal("alicia", moved.Username)
	req.ErrorIs(repository.AddDeviceToken(ctx, "missing", "token"), errors.ErrUserNotFound)
}

func Test_Redis_Conversations_Shared_Between_Processes(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	server := miniredis.RunT(t)
	p1 := NewRedisConversationRepository(newRedisClient(t, server), slog.Default())
	p2 := NewRedisConversationRepository(newRedisClient(t, server), slog.Default())

	// Given a group created through P1
	group, err := p1.CreateConversation(ctx, domain.Conversation{
		Participants: []domain.UserID{"alice", "bob", "alice"},
		IsGroup:      true,
		GroupName:    "before",
	})
	req.NoError(err)
	req.Equal([]domain.UserID{"alice", "bob"}, group.Participants)

	// Then P2 finds it at once
	found, err := p2.FindConversation(ctx, group.ID)
	req.NoError(err)
	req.True(found.HasParticipant("bob"))
	req.Equal("before", found.GroupName)

	// When P2 replaces bob by carol
	found.Participants = []domain.UserID{"alice", "carol"}
	found.GroupName = "after"
	req.NoError(p2.UpdateConversation(ctx, found))

	// Then P1 reads the new membership
	updated, err := p1.FindConversation(ctx, group.ID)
	req.NoError(err)
	req.False(updated.HasParticipant("bob"))
	req.True(updated.HasParticipant("carol"))
	req.True(group.CreatedAt.Equal(updated.CreatedAt))

	forBob, err := p1.ListForUser(ctx, "bob")
	req.NoError(err)
	req.Empty(forBob)
	forCarol, err := p1.ListForUser(ctx, "carol")
	req.NoError(err)
	req.Len(forCarol, 1)
	req.Equal("after", forCarol[0].GroupName)
}

func Test_Redis_Unknown_Conversation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewRedisConversationRepository(newRedisClient(t, miniredis.RunT(t)), slog.Default())

	_, err := repository.FindConversation(ctx, "missing")
	req.ErrorIs(err, errors.ErrConversationNotFound)
	req.ErrorIs(repository.UpdateConversation(ctx, domain.Conversation{ID: "missing"}), errors.ErrConversationNotFound)
}

func Test_Redis_List_Messages_Newest_Window_In_Chronological_Order(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	server := miniredis.RunT(t)
	p1 := NewRedisMessageRepository(newRedisClient(t, server), slog.Default())
	p2 := NewRedisMessageRepository(newRedisClient(t, server), slog.Default())

	// Given five messages in c1 sent alternately from two processes
	for i := 1; i <= 5; i++ {
		repository := lo.Ternary(i%2 == 0, p2, p1)
		message, err := repository.CreateMessage(ctx, "c1", "alice", fmt.Sprintf("m%d", i), "")
		req.NoError(err)
		req.NotEmpty(message.ID)
		req.False(message.CreatedAt.IsZero())
	}
	_, err := p1.CreateMessage(ctx, "c10", "bob", "other", "media/42.png")
	req.NoError(err)

	contents := func(page, limit int) []string {
		messages, err := p2.ListMessages(ctx, "c1", page, limit)
		req.NoError(err)
		return lo.Map(messages, func(m event.MessageEvent, _ int) string { return m.Content })
	}

	// Then the first page holds the newest messages, oldest first
	req.Equal([]string{"m4", "m5"}, contents(1, 2))
	req.Equal([]string{"m2", "m3"}, contents(2, 2))
	req.Equal([]string{"m1"}, contents(3, 2))
	req.Empty(contents(4, 2))
	req.Empty(contents(0, 2))
	req.Equal([]string{"m1", "m2", "m3", "m4", "m5"}, contents(1, 20))

	media, err := p1.ListMessages(ctx, "c10", 1, 20)
	req.NoError(err)
	req.Len(media, 1)
	req.Equal("media/42.png", media[0].MediaRef)
}

func Test_Redis_Message_Timestamps_Never_Repeat(t *testing.T) {
	req := require.New(t)
	repository := NewRedisMessageRepository(newRedisClient(t, miniredis.RunT(t)), slog.Default())
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repository.now = func() time.Time { return at }

	first, err := repository.CreateMessage(context.Background(), "c1", "alice", "one", "")
	req.NoError(err)
	second, err := repository.CreateMessage(context.Background(), "c1", "alice", "two", "")
	req.NoError(err)

	req.True(second.CreatedAt.After(first.CreatedAt))
}
