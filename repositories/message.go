package repositories

import (
	"chat-relay/codec"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
	now func() time.Time

	mu   sync.Mutex
	last time.Time
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log, now: time.Now}
}

type diskMessage struct {
	ID             string    `cbor:"id"`
	ConversationID string    `cbor:"conversation_id"`
	SenderID       string    `cbor:"sender_id"`
	Content        string    `cbor:"content,omitempty"`
	MediaRef       string    `cbor:"media_ref,omitempty"`
	CreatedAt      time.Time `cbor:"created_at"`
}

func messagePrefix(conversationID domain.ConversationID) []byte {
	return []byte(fmt.Sprintf("msg:%s:", conversationID))
}

// CreateMessage persists a message and returns it with its authoritative id and creation time.
// The key is "msg:{conversation_id}:{timestamp_padded}:{uuid}":
//  1. 19-digit zero padding keeps lexicographical order chronological.
//  2. The uuid separates two messages stored at the same nanosecond.
func (m *MessageRepository) CreateMessage(_ context.Context, conversationID domain.ConversationID, senderID domain.UserID, content, mediaRef string) (event.MessageEvent, error) {
	message := diskMessage{
		ID:             uuid.NewString(),
		ConversationID: conversationID.String(),
		SenderID:       senderID.String(),
		Content:        content,
		MediaRef:       mediaRef,
		CreatedAt:      m.nextTimestamp(),
	}
	key := fmt.Sprintf("%s%019d:%s", messagePrefix(conversationID), message.CreatedAt.UnixNano(), message.ID)

	bytes, err := codec.Marshal(message)
	if err != nil {
		return event.MessageEvent{}, err
	}
	if err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	}); err != nil {
		return event.MessageEvent{}, err
	}
	return toMessageEvent(message), nil
}

// ListMessages returns the page-th window of limit messages counted from the newest one,
// the window itself in chronological order. Pages start at 1.
func (m *MessageRepository) ListMessages(_ context.Context, conversationID domain.ConversationID, page, limit int) ([]event.MessageEvent, error) {
	if page < 1 || limit < 1 {
		return nil, nil
	}
	skip := (page - 1) * limit
	messages := make([]event.MessageEvent, 0, limit)

	err := m.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(conversationID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		// Reverse iteration starts past the newest possible key
		seekKey := append(slices.Clone(prefix), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if skip > 0 {
				skip--
				continue
			}
			if len(messages) == limit {
				break
			}
			var message diskMessage
			if err := it.Item().Value(func(value []byte) error {
				return codec.Unmarshal(value, &message)
			}); err != nil {
				return err
			}
			messages = append(messages, toMessageEvent(message))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Reverse(messages)
	m.log.Debug("Messages listed", "conversation_id", conversationID, "page", page, "count", len(messages))
	return messages, nil
}

// nextTimestamp never goes backwards nor repeats within a process,
// the storage order of a conversation is its creation order.
func (m *MessageRepository) nextTimestamp() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	at := m.now().UTC()
	if !at.After(m.last) {
		at = m.last.Add(time.Nanosecond)
	}
	m.last = at
	return at
}

func toMessageEvent(message diskMessage) event.MessageEvent {
	return event.MessageEvent{
		ID:           domain.MessageID(message.ID),
		Conversation: domain.ConversationID(message.ConversationID),
		SenderID:     domain.UserID(message.SenderID),
		Content:      message.Content,
		MediaRef:     message.MediaRef,
		CreatedAt:    message.CreatedAt,
	}
}
