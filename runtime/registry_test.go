package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type Sink struct {
	mu     sync.Mutex
	events []event.Event
	err    error
}

func (s *Sink) Consume(_ context.Context, e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, e)
	return nil
}

func (s *Sink) Close() error { return nil }

func (s *Sink) Received() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Event(nil), s.events...)
}

func message(conversationID domain.ConversationID, content string) event.MessageEvent {
	return event.MessageEvent{ID: domain.MessageID(content), Conversation: conversationID, SenderID: "alice", Content: content}
}

func TestRegistry_Register_Same_User_Twice(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	// When the same user connects twice
	first := registry.Register("alice", &Sink{})
	second := registry.Register("alice", &Sink{})

	// Then two distinct connections exist, nothing joined yet
	req.NotEqual(first, second)
	req.Equal(2, registry.Len())
	conn, ok := registry.Get(first)
	req.True(ok)
	req.Equal(domain.UserID("alice"), conn.UserID)
	req.Empty(conn.Joined)
}

func TestRegistry_RecordJoin_Unknown_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	err := registry.RecordJoin("missing", "c1")

	req.ErrorIs(err, errors.ErrUnknownConnection)
}

func TestRegistry_DeliverLocal_Only_To_Joined(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := NewRegistry()
	joined, other, never := &Sink{}, &Sink{}, &Sink{}

	// Given one connection in c1, one in c2 and one that never joined
	joinedID := registry.Register("alice", joined)
	otherID := registry.Register("bob", other)
	registry.Register("carol", never)
	req.NoError(registry.RecordJoin(joinedID, "c1"))
	req.NoError(registry.RecordJoin(joinedID, "c1"))
	req.NoError(registry.RecordJoin(otherID, "c2"))

	// When events are delivered in c1
	delivered, err := registry.DeliverLocal(ctx, message("c1", "hello"))
	req.NoError(err)
	req.Equal(1, delivered)
	delivered, err = registry.DeliverLocal(ctx, event.TypingEvent{Conversation: "c1", UserID: "alice", IsTyping: true})
	req.NoError(err)
	req.Equal(1, delivered)

	// Then only the joined connection receives them, once each
	req.Len(joined.Received(), 2)
	req.Empty(other.Received())
	req.Empty(never.Received())
}

func TestRegistry_DeliverLocal_Failing_Sink_Does_Not_Stop_Others(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := NewRegistry()
	broken := &Sink{err: errors.ErrSlowConsumer}
	healthy := &Sink{}

	brokenID := registry.Register("alice", broken)
	healthyID := registry.Register("bob", healthy)
	req.NoError(registry.RecordJoin(brokenID, "c1"))
	req.NoError(registry.RecordJoin(healthyID, "c1"))

	delivered, err := registry.DeliverLocal(ctx, message("c1", "hello"))

	req.Equal(1, delivered)
	req.ErrorIs(err, errors.ErrDelivery)
	req.ErrorIs(err, errors.ErrSlowConsumer)
	req.Contains(err.Error(), string(brokenID))
	req.Len(healthy.Received(), 1)
}

func TestRegistry_Unregister(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := NewRegistry()
	sink := &Sink{}
	connID := registry.Register("alice", sink)
	req.NoError(registry.RecordJoin(connID, "c2"))
	req.NoError(registry.RecordJoin(connID, "c1"))

	// When the connection goes away
	final, ok := registry.Unregister(connID)

	// Then its final state is returned once and nothing is delivered anymore
	req.True(ok)
	req.Equal(domain.UserID("alice"), final.UserID)
	req.Equal([]domain.ConversationID{"c1", "c2"}, final.Joined)

	_, ok = registry.Unregister(connID)
	req.False(ok)
	delivered, err := registry.DeliverLocal(ctx, message("c1", "late"))
	req.NoError(err)
	req.Zero(delivered)
	req.Empty(sink.Received())
	req.ErrorIs(registry.RecordJoin(connID, "c1"), errors.ErrUnknownConnection)
}

func TestRegistry_Joined_Snapshot(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	aliceID := registry.Register("alice", &Sink{})
	bobID := registry.Register("bob", &Sink{})
	registry.Register("carol", &Sink{})
	req.NoError(registry.RecordJoin(aliceID, "c1"))
	req.NoError(registry.RecordJoin(bobID, "c1"))
	req.NoError(registry.RecordJoin(bobID, "c2"))

	req.ElementsMatch([]contract.Presence{
		{ConversationID: "c1", UserID: "alice", ConnectionID: aliceID},
		{ConversationID: "c1", UserID: "bob", ConnectionID: bobID},
		{ConversationID: "c2", UserID: "bob", ConnectionID: bobID},
	}, registry.Joined())
}

func TestRegistry_Concurrent_Access(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := NewRegistry()
	const workers = 20

	var wg sync.WaitGroup
	sinks := make([]*Sink, workers)
	for i := 0; i < workers; i++ {
		sinks[i] = &Sink{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			connID := registry.Register(domain.UserID(fmt.Sprintf("user-%d", i)), sinks[i])
			_ = registry.RecordJoin(connID, "c1")
			registry.Touch(connID)
			_, _ = registry.DeliverLocal(ctx, message("c1", fmt.Sprintf("m%d", i)))
		}(i)
	}
	wg.Wait()

	// Once everyone joined, a last event reaches all of them
	delivered, err := registry.DeliverLocal(ctx, message("c1", "last"))
	req.NoError(err)
	req.Equal(workers, delivered)
	for _, sink := range sinks {
		received := sink.Received()
		req.NotEmpty(received)
		req.Equal(domain.MessageID("last"), received[len(received)-1].(event.MessageEvent).ID)
	}
}
