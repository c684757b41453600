package services

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

type CreateChatRequest struct {
	ParticipantIDs []domain.UserID `json:"participantIds" validate:"required,min=1,dive,required"`
	IsGroup        bool            `json:"isGroup"`
	GroupName      string          `json:"groupName" validate:"max=100,required_if=IsGroup true"`
}

type UpdateChatRequest struct {
	GroupName      string          `json:"groupName" validate:"omitempty,max=100"`
	ParticipantIDs []domain.UserID `json:"participantIds" validate:"omitempty,min=2,dive,required"`
}

// ChatService manages conversations and their history.
// Live delivery is the business of DeliveryService.
type ChatService struct {
	conversations contract.IConversationRepository
	messages      contract.IMessageRepository
	users         contract.IUserRepository
	gate          contract.IAuthorizer
	log           *slog.Logger

	defaultLimit int
	maxLimit     int
}

func NewChatService(
	conversations contract.IConversationRepository,
	messages contract.IMessageRepository,
	users contract.IUserRepository,
	gate contract.IAuthorizer,
	log *slog.Logger,
) *ChatService {
	return &ChatService{
		conversations: conversations,
		messages:      messages,
		users:         users,
		gate:          gate,
		log:           log,
		defaultLimit:  DefaultPageLimit,
		maxLimit:      MaxPageLimit,
	}
}

func (s *ChatService) WithPageLimits(defaultLimit, maxLimit int) *ChatService {
	if defaultLimit > 0 {
		s.defaultLimit = defaultLimit
	}
	if maxLimit >= s.defaultLimit {
		s.maxLimit = maxLimit
	}
	return s
}

// CreateChat always adds the caller. Every participant must exist.
func (s *ChatService) CreateChat(ctx context.Context, caller domain.UserID, req CreateChatRequest) (domain.Conversation, error) {
	if err := auth.Validate(req); err != nil {
		return domain.Conversation{}, err
	}
	participants := lo.Uniq(append([]domain.UserID{caller}, req.ParticipantIDs...))
	if err := s.checkUsers(ctx, participants); err != nil {
		return domain.Conversation{}, err
	}

	conversation, err := s.conversations.CreateConversation(ctx, domain.Conversation{
		Participants: participants,
		IsGroup:      req.IsGroup,
		GroupName:    lo.Ternary(req.IsGroup, req.GroupName, ""),
	})
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	s.log.Info("Conversation created", "conversation_id", conversation.ID, "participants", len(participants))
	return conversation, nil
}

// UpdateChat renames a group or replaces its participants. Only participants may do it.
func (s *ChatService) UpdateChat(ctx context.Context, caller domain.UserID, id domain.ConversationID, req UpdateChatRequest) (domain.Conversation, error) {
	if err := auth.Validate(req); err != nil {
		return domain.Conversation{}, err
	}
	conversation, err := s.gate.Authorize(ctx, caller, id)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !conversation.IsGroup {
		return domain.Conversation{}, fmt.Errorf("%w: %s", errors.ErrNotGroup, id)
	}

	if req.GroupName != "" {
		conversation.GroupName = req.GroupName
	}
	if len(req.ParticipantIDs) > 0 {
		participants := lo.Uniq(req.ParticipantIDs)
		if err = s.checkUsers(ctx, participants); err != nil {
			return domain.Conversation{}, err
		}
		conversation.Participants = participants
	}
	if err = s.conversations.UpdateConversation(ctx, conversation); err != nil {
		return domain.Conversation{}, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	return conversation, nil
}

// ListChats returns the conversations of a user, to that user only.
func (s *ChatService) ListChats(ctx context.Context, caller, userID domain.UserID) ([]domain.Conversation, error) {
	if caller != userID {
		return nil, fmt.Errorf("%w: %s can't list chats of %s", errors.ErrAuthorization, caller, userID)
	}
	conversations, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	return conversations, nil
}

// History returns a page of messages, the newest page first, each page in chronological order.
// page defaults to 1, limit to the default limit and is capped to the max limit.
func (s *ChatService) History(ctx context.Context, caller domain.UserID, id domain.ConversationID, page, limit int) ([]event.MessageEvent, error) {
	if _, err := s.gate.Authorize(ctx, caller, id); err != nil {
		return nil, err
	}
	page = max(page, 1)
	if limit <= 0 {
		limit = s.defaultLimit
	}
	limit = min(limit, s.maxLimit)

	messages, err := s.messages.ListMessages(ctx, id, page, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}

	names := make(map[domain.UserID]string)
	for i := range messages {
		senderID := messages[i].SenderID
		if _, ok := names[senderID]; !ok {
			names[senderID] = ""
			if user, err := s.users.GetUser(ctx, senderID); err == nil {
				names[senderID] = user.Username
			}
		}
		messages[i].SenderName = names[senderID]
	}
	return messages, nil
}

func (s *ChatService) checkUsers(ctx context.Context, ids []domain.UserID) error {
	for _, id := range ids {
		if _, err := s.users.GetUser(ctx, id); err != nil {
			if stderrors.Is(err, errors.ErrUserNotFound) {
				return fmt.Errorf("%w: participant %s", errors.ErrValidation, id)
			}
			return fmt.Errorf("%w: %v", errors.ErrPersistence, err)
		}
	}
	return nil
}
