package repositories

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func newClockedMessageRepository(t *testing.T) *MessageRepository {
	repository := NewMessageRepository(openDB(t), slog.Default())
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repository.now = func() time.Time {
		at = at.Add(time.Second)
		return at
	}
	return repository
}

func Test_Create_Message_Assigns_Id_And_Time(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newClockedMessageRepository(t)

	message, err := repository.CreateMessage(ctx, "c1", "alice", "hello", "")

	req.NoError(err)
	req.NotEmpty(message.ID)
	req.Equal(domain.ConversationID("c1"), message.Conversation)
	req.Equal(domain.UserID("alice"), message.SenderID)
	req.Equal("hello", message.Content)
	req.Equal(time.Date(2026, 1, 1, 12, 0, 1, 0, time.UTC), message.CreatedAt)
}

func Test_List_Messages_Newest_Window_In_Chronological_Order(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newClockedMessageRepository(t)

	// Given five messages in c1 and one in a conversation sharing the prefix
	for i := 1; i <= 5; i++ {
		_, err := repository.CreateMessage(ctx, "c1", "alice", fmt.Sprintf("m%d", i), "")
		req.NoError(err)
	}
	_, err := repository.CreateMessage(ctx, "c10", "bob", "other", "")
	req.NoError(err)

	contents := func(page, limit int) []string {
		messages, err := repository.ListMessages(ctx, "c1", page, limit)
		req.NoError(err)
		return lo.Map(messages, func(m event.MessageEvent, _ int) string { return m.Content })
	}

	// Then the first page holds the newest messages, oldest first
	req.Equal([]string{"m4", "m5"}, contents(1, 2))
	req.Equal([]string{"m2", "m3"}, contents(2, 2))
	req.Equal([]string{"m1"}, contents(3, 2))
	req.Empty(contents(4, 2))
	req.Equal([]string{"m1", "m2", "m3", "m4", "m5"}, contents(1, 20))
}

func Test_List_Messages_Media_Only(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newClockedMessageRepository(t)

	_, err := repository.CreateMessage(ctx, "c1", "alice", "", "media/42.png")
	req.NoError(err)

	messages, err := repository.ListMessages(ctx, "c1", 1, 20)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("media/42.png", messages[0].MediaRef)
	req.Empty(messages[0].Content)
}
