package workers

import (
	"chat-relay/contract"
	"context"
	"log/slog"
	"time"
)

// PresenceHeartbeat refreshes the presence entries of the local joined connections
// then prunes the expired entries left by other processes.
// The interval must stay well below the presence TTL.
type PresenceHeartbeat struct {
	registry contract.IRegistry
	presence contract.IPresence
	interval time.Duration
	log      *slog.Logger
}

func NewPresenceHeartbeat(registry contract.IRegistry, presence contract.IPresence, interval time.Duration, log *slog.Logger) *PresenceHeartbeat {
	return &PresenceHeartbeat{registry: registry, presence: presence, interval: interval, log: log}
}

func (w *PresenceHeartbeat) Run(ctx context.Context) error {
	w.log.Info("Starting presence heartbeat", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.beat(ctx)
		}
	}
}

func (w *PresenceHeartbeat) beat(ctx context.Context) {
	joined := w.registry.Joined()
	failed := 0
	for _, p := range joined {
		if err := w.presence.Mark(ctx, p); err != nil {
			failed++
			w.log.Debug("Unable to refresh presence", "connection_id", p.ConnectionID, "conversation_id", p.ConversationID, "error", err)
			continue
		}
		// The connection may have been dropped since the snapshot, its entry must not outlive it
		if _, ok := w.registry.Get(p.ConnectionID); !ok {
			if err := w.presence.Clear(ctx, p); err != nil {
				w.log.Warn("Unable to clear stale presence", "connection_id", p.ConnectionID, "conversation_id", p.ConversationID, "error", err)
			}
		}
	}
	if failed > 0 {
		w.log.Warn("Presence refresh incomplete", "failed", failed, "total", len(joined))
	}
	if err := w.presence.Prune(ctx); err != nil {
		w.log.Warn("Unable to prune presence", "error", err)
	}
}
