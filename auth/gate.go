package auth

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
)

// Gate decides whether a user may join, observe or publish to a conversation.
// Participants are read fresh on every decision, a removed participant is denied at once.
type Gate struct {
	conversations contract.IConversationRepository
	log           *slog.Logger
}

func NewGate(conversations contract.IConversationRepository, log *slog.Logger) *Gate {
	return &Gate{conversations: conversations, log: log}
}

func (g *Gate) Authorize(ctx context.Context, userID domain.UserID, conversationID domain.ConversationID) (domain.Conversation, error) {
	conversation, err := g.conversations.FindConversation(ctx, conversationID)
	switch {
	case stderrors.Is(err, errors.ErrConversationNotFound):
		return domain.Conversation{}, fmt.Errorf("%w: conversation %s does not exist", errors.ErrAuthorization, conversationID)
	case err != nil:
		g.log.Error("Unable to read conversation", "conversation_id", conversationID, "error", err)
		return domain.Conversation{}, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}

	if !conversation.HasParticipant(userID) {
		g.log.Debug("Access denied", "user_id", userID, "conversation_id", conversationID)
		return domain.Conversation{}, fmt.Errorf("%w: user %s in conversation %s", errors.ErrAuthorization, userID, conversationID)
	}
	return conversation, nil
}
