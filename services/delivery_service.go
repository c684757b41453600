package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/moderation"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	DefaultMaxContentLength = 1000
	defaultNotifyTimeout    = 10 * time.Second
	mediaMessageBody        = "New media message"
)

// DeliveryService is the pipeline between transports, storage and the bus.
// Messages: authorize, persist, publish, then notify absent participants.
// Typing: authorize, publish. Join: authorize, record, mark presence.
type DeliveryService struct {
	registry  contract.IRegistry
	gate      contract.IAuthorizer
	messages  contract.IMessageRepository
	users     contract.IUserRepository
	bus       contract.IBus
	presence  contract.IPresence
	notifier  contract.INotifier
	moderator contract.IModerator
	log       *slog.Logger

	maxContentLength int
	notifyTimeout    time.Duration
	notifications    sync.WaitGroup
}

func NewDeliveryService(
	registry contract.IRegistry,
	gate contract.IAuthorizer,
	messages contract.IMessageRepository,
	users contract.IUserRepository,
	bus contract.IBus,
	presence contract.IPresence,
	notifier contract.INotifier,
	log *slog.Logger,
) *DeliveryService {
	return &DeliveryService{
		registry:         registry,
		gate:             gate,
		messages:         messages,
		users:            users,
		bus:              bus,
		presence:         presence,
		notifier:         notifier,
		log:              log,
		maxContentLength: DefaultMaxContentLength,
		notifyTimeout:    defaultNotifyTimeout,
	}
}

// WithModerator censors message content before it is persisted.
func (s *DeliveryService) WithModerator(moderator contract.IModerator) *DeliveryService {
	s.moderator = moderator
	return s
}

func (s *DeliveryService) WithMaxContentLength(length int) *DeliveryService {
	if length > 0 {
		s.maxContentLength = length
	}
	return s
}

// Start subscribes this process to the bus, events are delivered to local connections.
func (s *DeliveryService) Start(ctx context.Context) error {
	return s.bus.Subscribe(ctx, s.HandleBusEvent)
}

// HandleBusEvent is the single subscriber callback of the process.
func (s *DeliveryService) HandleBusEvent(ctx context.Context, e event.Event) {
	delivered, err := s.registry.DeliverLocal(ctx, e)
	if err != nil {
		s.log.Warn("Local delivery incomplete", "conversation_id", e.ConversationID(), "kind", e.Kind(), "error", err)
	}
	s.log.Debug("Event delivered", "conversation_id", e.ConversationID(), "kind", e.Kind(), "connections", delivered)
}

// Connect registers an authenticated transport. The new connection has joined nothing.
func (s *DeliveryService) Connect(userID domain.UserID, sink contract.EventSink) domain.ConnectionID {
	connID := s.registry.Register(userID, sink)
	s.log.Debug("Connection registered", "connection_id", connID, "user_id", userID)
	return connID
}

// Disconnect drops the connection and its presence contributions. Safe to call twice.
func (s *DeliveryService) Disconnect(ctx context.Context, connID domain.ConnectionID) {
	conn, ok := s.registry.Unregister(connID)
	if !ok {
		return
	}
	for _, conversationID := range conn.Joined {
		p := contract.Presence{ConversationID: conversationID, UserID: conn.UserID, ConnectionID: conn.ID}
		if err := s.presence.Clear(ctx, p); err != nil {
			s.log.Warn("Unable to clear presence", "connection_id", connID, "conversation_id", conversationID, "error", err)
		}
	}
	s.log.Debug("Connection unregistered", "connection_id", connID, "user_id", conn.UserID)
}

// Touch records activity on the connection, a pong or any inbound frame.
func (s *DeliveryService) Touch(connID domain.ConnectionID) {
	s.registry.Touch(connID)
}

// Join authorizes then records the conversation on the connection. Nothing is published.
func (s *DeliveryService) Join(ctx context.Context, connID domain.ConnectionID, userID domain.UserID, conversationID domain.ConversationID) error {
	if conversationID == "" {
		return fmt.Errorf("%w: conversationId is required", errors.ErrValidation)
	}
	if _, err := s.gate.Authorize(ctx, userID, conversationID); err != nil {
		return err
	}
	if err := s.registry.RecordJoin(connID, conversationID); err != nil {
		return err
	}
	p := contract.Presence{ConversationID: conversationID, UserID: userID, ConnectionID: connID}
	if err := s.presence.Mark(ctx, p); err != nil {
		s.log.Warn("Unable to mark presence", "connection_id", connID, "conversation_id", conversationID, "error", err)
	}
	return nil
}

// Typing is re-authorized on every event and never persisted.
func (s *DeliveryService) Typing(ctx context.Context, cmd domain.TypingCommand) error {
	if cmd.ConversationID == "" {
		return fmt.Errorf("%w: conversationId is required", errors.ErrValidation)
	}
	if _, err := s.gate.Authorize(ctx, cmd.UserID, cmd.ConversationID); err != nil {
		return err
	}
	typing := event.TypingEvent{
		Conversation: cmd.ConversationID,
		UserID:       cmd.UserID,
		Username:     s.username(ctx, cmd.UserID),
		IsTyping:     cmd.IsTyping,
	}
	if err := s.bus.Publish(ctx, typing); err != nil {
		s.log.Error("Unable to publish typing", "conversation_id", cmd.ConversationID, "error", err)
		return err
	}
	return nil
}

// SendMessage runs the full pipeline. The persisted message is returned even when
// publishing fails, it stays durable and the error is ErrPublish.
func (s *DeliveryService) SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (event.MessageEvent, error) {
	if err := s.validate(cmd); err != nil {
		return event.MessageEvent{}, err
	}
	conversation, err := s.gate.Authorize(ctx, cmd.SenderID, cmd.ConversationID)
	if err != nil {
		return event.MessageEvent{}, err
	}

	content := cmd.Content
	if s.moderator != nil && content != "" {
		var words []string
		if content, words = s.moderator.Censor(content); len(words) > 0 {
			s.log.Debug("Message censored",
				"conversation_id", cmd.ConversationID,
				"words", len(words),
				"lang", moderation.DetectLanguage(cmd.Content))
		}
	}

	message, err := s.messages.CreateMessage(ctx, cmd.ConversationID, cmd.SenderID, content, cmd.MediaRef)
	if err != nil {
		s.log.Error("Unable to persist message", "conversation_id", cmd.ConversationID, "error", err)
		return event.MessageEvent{}, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	message.SenderName = s.username(ctx, cmd.SenderID)

	if err = s.bus.Publish(ctx, message); err != nil {
		s.log.Error("Unable to publish message", "conversation_id", cmd.ConversationID, "message_id", message.ID, "error", err)
		err = fmt.Errorf("%w: message %s is stored", err, message.ID)
	}

	s.notifyAbsent(ctx, conversation, message)
	return message, err
}

// Wait blocks until every in-flight notification is done.
func (s *DeliveryService) Wait() {
	s.notifications.Wait()
}

func (s *DeliveryService) validate(cmd domain.SendMessageCommand) error {
	switch {
	case cmd.ConversationID == "":
		return fmt.Errorf("%w: conversationId is required", errors.ErrValidation)
	case strings.TrimSpace(cmd.Content) == "" && cmd.MediaRef == "":
		return fmt.Errorf("%w: content or mediaRef is required", errors.ErrValidation)
	case utf8.RuneCountInString(cmd.Content) > s.maxContentLength:
		return fmt.Errorf("%w: content exceeds %d characters", errors.ErrValidation, s.maxContentLength)
	}
	return nil
}

// notifyAbsent pushes to every other participant without a live joined connection.
// It outlives the request, failures are logged and never retried.
func (s *DeliveryService) notifyAbsent(ctx context.Context, conversation domain.Conversation, message event.MessageEvent) {
	recipients := conversation.OtherParticipants(message.SenderID)
	if len(recipients) == 0 {
		return
	}

	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
		defer cancel()

		present, err := s.presence.Present(notifyCtx, conversation.ID)
		if err != nil {
			s.log.Warn("Presence unavailable, notifying every participant", "conversation_id", conversation.ID, "error", err)
		}

		notification := domain.Notification{
			Title:          fmt.Sprintf("%s sent a message", displayName(message)),
			Body:           message.Content,
			ConversationID: conversation.ID,
		}
		if notification.Body == "" {
			notification.Body = mediaMessageBody
		}

		for _, userID := range recipients {
			if _, ok := present[userID]; ok {
				continue
			}
			if err := s.notifier.Notify(notifyCtx, userID, notification); err != nil {
				s.log.Warn("Notification failed", "user_id", userID, "conversation_id", conversation.ID, "error", err)
			}
		}
	}()
}

func (s *DeliveryService) username(ctx context.Context, userID domain.UserID) string {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		s.log.Debug("Unable to resolve username", "user_id", userID, "error", err)
		return ""
	}
	return user.Username
}

func displayName(message event.MessageEvent) string {
	if message.SenderName != "" {
		return message.SenderName
	}
	return message.SenderID.String()
}
