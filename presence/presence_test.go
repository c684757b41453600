package presence

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type clock struct{ at time.Time }

func (c *clock) now() time.Time { return c.at }

func implementations(t *testing.T, ttl time.Duration) map[string]func(*clock) contract.IPresence {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]func(*clock) contract.IPresence{
		"memory": func(c *clock) contract.IPresence {
			p := NewMemoryPresence(ttl)
			p.now = c.now
			return p
		},
		"redis": func(c *clock) contract.IPresence {
			server.FlushAll()
			p := NewRedisPresence(client, ttl)
			p.now = c.now
			return p
		},
	}
}

func TestPresence(t *testing.T) {
	ttl := 30 * time.Second
	alice1 := contract.Presence{ConversationID: "c1", UserID: "alice", ConnectionID: "conn-1"}
	alice2 := contract.Presence{ConversationID: "c1", UserID: "alice", ConnectionID: "conn-2"}
	bob := contract.Presence{ConversationID: "c1", UserID: "bob", ConnectionID: "conn-3"}
	carol := contract.Presence{ConversationID: "c2", UserID: "carol", ConnectionID: "conn-4"}

	for name, build := range implementations(t, ttl) {
		t.Run(name+" marks and clears per connection", func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			c := &clock{at: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
			directory := build(c)

			for _, p := range []contract.Presence{alice1, alice2, bob, carol} {
				req.NoError(directory.Mark(ctx, p))
			}
			present, err := directory.Present(ctx, "c1")
			req.NoError(err)
			req.Equal(map[domain.UserID]struct{}{"alice": {}, "bob": {}}, present)

			// alice still has a second connection
			req.NoError(directory.Clear(ctx, alice1))
			req.NoError(directory.Clear(ctx, bob))
			present, err = directory.Present(ctx, "c1")
			req.NoError(err)
			req.Equal(map[domain.UserID]struct{}{"alice": {}}, present)

			present, err = directory.Present(ctx, "unknown")
			req.NoError(err)
			req.Empty(present)
		})

		t.Run(name+" entries expire unless refreshed", func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			c := &clock{at: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
			directory := build(c)

			req.NoError(directory.Mark(ctx, alice1))
			req.NoError(directory.Mark(ctx, bob))

			// Only alice is refreshed by her heartbeat
			c.at = c.at.Add(20 * time.Second)
			req.NoError(directory.Mark(ctx, alice1))
			c.at = c.at.Add(20 * time.Second)

			present, err := directory.Present(ctx, "c1")
			req.NoError(err)
			req.Equal(map[domain.UserID]struct{}{"alice": {}}, present)

			req.NoError(directory.Prune(ctx))
			c.at = c.at.Add(time.Minute)
			req.NoError(directory.Prune(ctx))
			present, err = directory.Present(ctx, "c1")
			req.NoError(err)
			req.Empty(present)
		})
	}
}
