// Package event defines the events fanned out to the participants of a conversation.
// Events are immutable once published.
package event

import (
	"chat-relay/domain"
	"time"
)

type Kind string

const (
	MessageKind Kind = "message"
	TypingKind  Kind = "typing"
)

// Event is the tagged variant carried by the bus and delivered to connections.
type Event interface {
	ConversationID() domain.ConversationID
	Kind() Kind
}

// MessageEvent is a persisted message. ID and CreatedAt come from storage.
type MessageEvent struct {
	ID           domain.MessageID      `json:"id"`
	Conversation domain.ConversationID `json:"conversationId"`
	SenderID     domain.UserID         `json:"senderId"`
	SenderName   string                `json:"senderName,omitempty"`
	Content      string                `json:"content"`
	MediaRef     string                `json:"mediaRef,omitempty"`
	CreatedAt    time.Time             `json:"createdAt"`
}

func (m MessageEvent) ConversationID() domain.ConversationID { return m.Conversation }
func (m MessageEvent) Kind() Kind { return MessageKind }

// TypingEvent is a transient presence signal, never persisted.
type TypingEvent struct {
	Conversation domain.ConversationID `json:"conversationId"`
	UserID       domain.UserID         `json:"userId"`
	Username     string                `json:"username,omitempty"`
	IsTyping     bool                  `json:"isTyping"`
}

func (t TypingEvent) ConversationID() domain.ConversationID { return t.Conversation }
func (t TypingEvent) Kind() Kind { return TypingKind }
