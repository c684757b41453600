package bus

import (
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisClient(t *testing.T, server *miniredis.Miniredis) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisBus_Cross_Process_Fanout(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	server := miniredis.RunT(t)

	// Given two processes on their own Redis connection
	p1 := NewRedisBus(newRedisClient(t, server), "", log)
	p2 := NewRedisBus(newRedisClient(t, server), "", log)
	c1, c2 := &collector{}, &collector{}
	req.NoError(p1.Subscribe(ctx, c1.handle))
	req.NoError(p2.Subscribe(ctx, c2.handle))
	req.NoError(p2.Subscribe(ctx, c1.handle))

	// When P2 publishes
	req.NoError(p2.Publish(ctx, event.MessageEvent{ID: "m1", Conversation: "c1", SenderID: "bob", Content: "first"}))
	req.NoError(p2.Publish(ctx, event.MessageEvent{ID: "m2", Conversation: "c1", SenderID: "bob", Content: "second"}))

	// Then both receive in publish order
	req.Eventually(func() bool {
		return len(c1.received()) == 2 && len(c2.received()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	req.Equal([]string{"first", "second"}, contents(c1.received()))
	req.Equal([]string{"first", "second"}, contents(c2.received()))

	req.NoError(p1.Close())
	req.NoError(p2.Close())
}

func TestRedisBus_Publish_Failure(t *testing.T) {
	req := require.New(t)
	server := miniredis.RunT(t)
	b := NewRedisBus(newRedisClient(t, server), DefaultChannel, logs.GetLoggerFromLevel(slog.LevelDebug))

	server.Close()
	err := b.Publish(context.Background(), event.TypingEvent{Conversation: "c1"})

	req.ErrorIs(err, errors.ErrPublish)
}
