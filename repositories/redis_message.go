package repositories

import (
	"chat-relay/codec"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisMessageRepository appends the messages of a conversation to the list "msg:{conversation_id}".
// The list order is the storage order, whatever process appended.
type RedisMessageRepository struct {
	client *redis.Client
	log    *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	last time.Time
}

func NewRedisMessageRepository(client *redis.Client, log *slog.Logger) *RedisMessageRepository {
	return &RedisMessageRepository{client: client, log: log, now: time.Now}
}

func messagesKey(conversationID domain.ConversationID) string {
	return "msg:" + conversationID.String()
}

func (m *RedisMessageRepository) CreateMessage(ctx context.Context, conversationID domain.ConversationID, senderID domain.UserID, content, mediaRef string) (event.MessageEvent, error) {
	message := diskMessage{
		ID:             uuid.NewString(),
		ConversationID: conversationID.String(),
		SenderID:       senderID.String(),
		Content:        content,
		MediaRef:       mediaRef,
		CreatedAt:      m.nextTimestamp(),
	}
	bytes, err := codec.Marshal(message)
	if err != nil {
		return event.MessageEvent{}, err
	}
	if err = m.client.RPush(ctx, messagesKey(conversationID), bytes).Err(); err != nil {
		return event.MessageEvent{}, err
	}
	return toMessageEvent(message), nil
}

// ListMessages has the MessageRepository paging: the page-th window of limit messages
// counted from the newest one, in chronological order.
func (m *RedisMessageRepository) ListMessages(ctx context.Context, conversationID domain.ConversationID, page, limit int) ([]event.MessageEvent, error) {
	if page < 1 || limit < 1 {
		return nil, nil
	}
	skip := int64((page - 1) * limit)
	values, err := m.client.LRange(ctx, messagesKey(conversationID), -(skip + int64(limit)), -(skip + 1)).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]event.MessageEvent, 0, len(values))
	for _, value := range values {
		var message diskMessage
		if err = codec.Unmarshal([]byte(value), &message); err != nil {
			return nil, err
		}
		messages = append(messages, toMessageEvent(message))
	}
	m.log.Debug("Messages listed", "conversation_id", conversationID, "page", page, "count", len(messages))
	return messages, nil
}

func (m *RedisMessageRepository) nextTimestamp() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	at := m.now().UTC()
	if !at.After(m.last) {
		at = m.last.Add(time.Nanosecond)
	}
	m.last = at
	return at
}

