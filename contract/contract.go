//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Restarts are the supervisor's business
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used for logging by the supervisor, no manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is the transport handle of one connection.
// Consume must not block on a slow peer.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
	Close() error
}

type IRegistry interface {
	Register(userID domain.UserID, sink EventSink) domain.ConnectionID
	RecordJoin(connID domain.ConnectionID, conversationID domain.ConversationID) error
	DeliverLocal(ctx context.Context, e event.Event) (int, error)
	Unregister(connID domain.ConnectionID) (Connection, bool)
	Touch(connID domain.ConnectionID)
	Get(connID domain.ConnectionID) (Connection, bool)
	Joined() []Presence
}

// Connection is a snapshot of a registry record.
type Connection struct {
	ID       domain.ConnectionID
	UserID   domain.UserID
	Joined   []domain.ConversationID
	LastSeen time.Time
}

// Presence is one {conversation, user, connection} contribution of a process.
type Presence struct {
	ConversationID domain.ConversationID
	UserID         domain.UserID
	ConnectionID   domain.ConnectionID
}

type IAuthorizer interface {
	Authorize(ctx context.Context, userID domain.UserID, conversationID domain.ConversationID) (domain.Conversation, error)
}

// IBus fans events out to every subscribed process, the publisher included.
type IBus interface {
	Publish(ctx context.Context, e event.Event) error
	Subscribe(ctx context.Context, handler func(ctx context.Context, e event.Event)) error
	Close() error
}

type IPresence interface {
	Mark(ctx context.Context, p Presence) error
	Clear(ctx context.Context, p Presence) error
	Present(ctx context.Context, conversationID domain.ConversationID) (map[domain.UserID]struct{}, error)
	Prune(ctx context.Context) error
}

type IConversationRepository interface {
	FindConversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error)
	CreateConversation(ctx context.Context, c domain.Conversation) (domain.Conversation, error)
	UpdateConversation(ctx context.Context, c domain.Conversation) error
	ListForUser(ctx context.Context, userID domain.UserID) ([]domain.Conversation, error)
}

type IMessageRepository interface {
	CreateMessage(ctx context.Context, conversationID domain.ConversationID, senderID domain.UserID, content, mediaRef string) (event.MessageEvent, error)
	ListMessages(ctx context.Context, conversationID domain.ConversationID, page, limit int) ([]event.MessageEvent, error)
}

type IUserRepository interface {
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)
	GetUser(ctx context.Context, id domain.UserID) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	UpdateUser(ctx context.Context, u domain.User) error
	AddDeviceToken(ctx context.Context, id domain.UserID, token string) error
}

type ICredentialVerifier interface {
	Verify(token string) (domain.UserID, error)
}

type INotifier interface {
	Notify(ctx context.Context, userID domain.UserID, n domain.Notification) error
}

// IPushSender delivers one notification to one device token.
type IPushSender interface {
	Send(ctx context.Context, deviceToken string, n domain.Notification) error
}

type IModerator interface {
	Censor(content string) (string, []string)
}

// IRateLimiter counts one request of key, retryAfter is set when it is refused.
type IRateLimiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// IHealthReporter exposes whether this process is able to deliver.
type IHealthReporter interface {
	SetServing(serving bool)
}
