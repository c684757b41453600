// Package bus fans conversation events out to every relay process.
package bus

import (
	"chat-relay/codec"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"fmt"
	"time"
)

const DefaultChannel = "chat-messages"

// envelope is the wire form of an event, one payload set according to Type.
type envelope struct {
	Type    event.Kind      `cbor:"type"`
	Message *messagePayload `cbor:"message,omitempty"`
	Typing  *typingPayload  `cbor:"typing,omitempty"`
}

type messagePayload struct {
	ID             string    `cbor:"id"`
	ConversationID string    `cbor:"conversation_id"`
	SenderID       string    `cbor:"sender_id"`
	SenderName     string    `cbor:"sender_name,omitempty"`
	Content        string    `cbor:"content,omitempty"`
	MediaRef       string    `cbor:"media_ref,omitempty"`
	CreatedAt      time.Time `cbor:"created_at"`
}

type typingPayload struct {
	ConversationID string `cbor:"conversation_id"`
	UserID         string `cbor:"user_id"`
	Username       string `cbor:"username,omitempty"`
	IsTyping       bool   `cbor:"is_typing"`
}

func Encode(e event.Event) ([]byte, error) {
	var env envelope
	switch ev := e.(type) {
	case event.MessageEvent:
		env = envelope{Type: event.MessageKind, Message: &messagePayload{
			ID:             ev.ID.String(),
			ConversationID: ev.Conversation.String(),
			SenderID:       ev.SenderID.String(),
			SenderName:     ev.SenderName,
			Content:        ev.Content,
			MediaRef:       ev.MediaRef,
			CreatedAt:      ev.CreatedAt,
		}}
	case event.TypingEvent:
		env = envelope{Type: event.TypingKind, Typing: &typingPayload{
			ConversationID: ev.Conversation.String(),
			UserID:         ev.UserID.String(),
			Username:       ev.Username,
			IsTyping:       ev.IsTyping,
		}}
	default:
		return nil, fmt.Errorf("%w: unsupported event %T", errors.ErrValidation, e)
	}
	return codec.Marshal(env)
}

func Decode(data []byte) (event.Event, error) {
	var env envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	switch {
	case env.Type == event.MessageKind && env.Message != nil:
		m := env.Message
		return event.MessageEvent{
			ID:           domain.MessageID(m.ID),
			Conversation: domain.ConversationID(m.ConversationID),
			SenderID:     domain.UserID(m.SenderID),
			SenderName:   m.SenderName,
			Content:      m.Content,
			MediaRef:     m.MediaRef,
			CreatedAt:    m.CreatedAt,
		}, nil
	case env.Type == event.TypingKind && env.Typing != nil:
		t := env.Typing
		return event.TypingEvent{
			Conversation: domain.ConversationID(t.ConversationID),
			UserID:       domain.UserID(t.UserID),
			Username:     t.Username,
			IsTyping:     t.IsTyping,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown envelope type %q", errors.ErrValidation, env.Type)
	}
}
