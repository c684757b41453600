package services

import (
	"chat-relay/auth"
	"chat-relay/bus"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/mocks"
	"chat-relay/presence"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// redisProcess is a relay process holding nothing but its own Redis connection
type redisProcess struct {
	*process
	users         *repositories.RedisUserRepository
	conversations *repositories.RedisConversationRepository
}

func newRedisProcess(t *testing.T, ctx context.Context, server *miniredis.Miniredis, notifier *mocks.MockINotifier) *redisProcess {
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	users := repositories.NewRedisUserRepository(client)
	conversations := repositories.NewRedisConversationRepository(client, log)
	eventBus := bus.NewRedisBus(client, bus.DefaultChannel, log)
	t.Cleanup(func() { _ = eventBus.Close() })
	registry := runtime.NewRegistry()
	service := NewDeliveryService(
		registry,
		auth.NewGate(conversations, log),
		repositories.NewRedisMessageRepository(client, log),
		users,
		eventBus,
		presence.NewRedisPresence(client, time.Minute),
		notifier,
		log,
	)
	require.NoError(t, service.Start(ctx))
	t.Cleanup(service.Wait)
	return &redisProcess{
		process:       &process{registry: registry, service: service},
		users:         users,
		conversations: conversations,
	}
}

func TestDelivery_Processes_Share_Redis_Storage(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	server := miniredis.RunT(t)
	notifier := mocks.NewMockINotifier(gomock.NewController(t))
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	p1 := newRedisProcess(t, ctx, server, notifier)
	p2 := newRedisProcess(t, ctx, server, notifier)

	// Given users and a conversation created through P1 only
	alice, err := p1.users.CreateUser(ctx, domain.User{Username: "alice", Email: "alice@example.com"})
	req.NoError(err)
	bob, err := p1.users.CreateUser(ctx, domain.User{Username: "bob", Email: "bob@example.com"})
	req.NoError(err)
	conv, err := p1.conversations.CreateConversation(ctx, domain.Conversation{Participants: []domain.UserID{alice.ID, bob.ID}})
	req.NoError(err)

	// When bob joins on P2 and alice sends from P1
	aliceSink, bobSink := &sink{}, &sink{}
	aliceConn := p1.service.Connect(alice.ID, aliceSink)
	bobConn := p2.service.Connect(bob.ID, bobSink)
	req.NoError(p1.service.Join(ctx, aliceConn, alice.ID, conv.ID))
	req.NoError(p2.service.Join(ctx, bobConn, bob.ID, conv.ID))
	sent, err := p1.service.SendMessage(ctx, domain.SendMessageCommand{
		ConversationID: conv.ID,
		SenderID:       alice.ID,
		Content:        "hello bob",
	})
	req.NoError(err)

	// Then P2 authorized bob against the shared store and both receive the message
	require.Eventually(t, func() bool {
		return len(aliceSink.received()) == 1 && len(bobSink.received()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	received := bobSink.received()[0].(event.MessageEvent)
	req.Equal(sent.ID, received.ID)
	req.Equal("alice", received.SenderName)
	p1.service.Wait()
}
