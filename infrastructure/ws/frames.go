package ws

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"encoding/json"
	"fmt"
)

const (
	joinFrame    = "join"
	typingFrame  = "typing"
	messageFrame = "message"
	ackFrame     = "ack"
	errorFrame   = "error"
)

// inbound is any frame sent by a client. chatId is an alias of conversationId.
type inbound struct {
	Type           string `json:"type" validate:"required,oneof=join typing message"`
	RequestID      string `json:"requestId,omitempty"`
	ConversationID string `json:"conversationId"`
	ChatID         string `json:"chatId"`
	IsTyping       bool   `json:"isTyping"`
	Content        string `json:"content"`
	MediaRef       string `json:"mediaRef"`
}

func (f inbound) conversationID() domain.ConversationID {
	if f.ConversationID != "" {
		return domain.ConversationID(f.ConversationID)
	}
	return domain.ConversationID(f.ChatID)
}

func decodeInbound(data []byte) (inbound, error) {
	var f inbound
	if err := json.Unmarshal(data, &f); err != nil {
		return inbound{}, fmt.Errorf("%w: malformed frame: %v", errors.ErrValidation, err)
	}
	return f, nil
}

type messageOut struct {
	Type    string             `json:"type"`
	Message event.MessageEvent `json:"message"`
}

// typingOut nests the event under "message" like messageOut, clients read one envelope shape.
type typingOut struct {
	Type    string            `json:"type"`
	Message event.TypingEvent `json:"message"`
}

type ackOut struct {
	Type           string              `json:"type"`
	RequestID      string              `json:"requestId,omitempty"`
	Action         string              `json:"action"`
	ConversationID string              `json:"conversationId"`
	Message        *event.MessageEvent `json:"message,omitempty"`
}

type errorOut struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Code      string `json:"code"`
	Error     string `json:"error"`
}

// toFrame is the outbound form of a bus event.
func toFrame(e event.Event) any {
	switch ev := e.(type) {
	case event.MessageEvent:
		return messageOut{Type: messageFrame, Message: ev}
	case event.TypingEvent:
		return typingOut{Type: typingFrame, Message: ev}
	default:
		return errorOut{Type: errorFrame, Code: "INTERNAL", Error: fmt.Sprintf("unsupported event %T", e)}
	}
}

func ack(f inbound, message *event.MessageEvent) ackOut {
	return ackOut{
		Type:           ackFrame,
		RequestID:      f.RequestID,
		Action:         f.Type,
		ConversationID: f.conversationID().String(),
		Message:        message,
	}
}

func failure(f inbound, err error) errorOut {
	return errorOut{Type: errorFrame, RequestID: f.RequestID, Code: errors.Code(err), Error: err.Error()}
}
