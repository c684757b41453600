// Package runtime holds the per-process state of the relay: live connections and loaded resources.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Set map[domain.ConversationID]struct{}

// connection is owned by the process that accepted it.
// Its joined-set only grows, and only after a successful authorization.
type connection struct {
	id       domain.ConnectionID
	userID   domain.UserID
	sink     contract.EventSink
	mu       sync.Mutex // guards joined and lastSeen
	joined   Set
	lastSeen time.Time
}

// Registry is the in-memory table of the connections of this process.
// It never does I/O, sinks only enqueue.
type Registry struct {
	mu          sync.RWMutex
	connections map[domain.ConnectionID]*connection
	now         func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[domain.ConnectionID]*connection),
		now:         time.Now,
	}
}

// Register adds a connection with an empty joined-set.
// A user may hold any number of connections, each gets its own id.
func (r *Registry) Register(userID domain.UserID, sink contract.EventSink) domain.ConnectionID {
	conn := &connection{
		id:       domain.ConnectionID(uuid.NewString()),
		userID:   userID,
		sink:     sink,
		joined:   make(Set),
		lastSeen: r.now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[conn.id] = conn
	return conn.id
}

// RecordJoin adds a conversation to the joined-set of a connection, a known one is a no-op.
// The caller must have authorized the join.
func (r *Registry) RecordJoin(connID domain.ConnectionID, conversationID domain.ConversationID) error {
	conn, ok := r.lookup(connID)
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrUnknownConnection, connID)
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	conn.joined[conversationID] = struct{}{}
	conn.lastSeen = r.now()
	return nil
}

// DeliverLocal pushes e to every local connection that joined its conversation.
// Matching sinks are snapshotted under the read lock and written to outside of it.
// A failing sink doesn't stop the others, its failure is joined to the returned error.
func (r *Registry) DeliverLocal(ctx context.Context, e event.Event) (int, error) {
	type target struct {
		id   domain.ConnectionID
		sink contract.EventSink
	}

	r.mu.RLock()
	var targets []target
	for _, conn := range r.connections {
		if conn.hasJoined(e.ConversationID()) {
			targets = append(targets, target{id: conn.id, sink: conn.sink})
		}
	}
	r.mu.RUnlock()

	delivered := 0
	var errs []error
	for _, t := range targets {
		if err := t.sink.Consume(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("%w: connection %s: %w", errors.ErrDelivery, t.id, err))
			continue
		}
		delivered++
	}
	return delivered, stderrors.Join(errs...)
}

// Unregister removes a connection and returns its final state. Unknown ids are ignored.
func (r *Registry) Unregister(connID domain.ConnectionID) (contract.Connection, bool) {
	r.mu.Lock()
	conn, ok := r.connections[connID]
	delete(r.connections, connID)
	r.mu.Unlock()

	if !ok {
		return contract.Connection{}, false
	}
	return conn.snapshot(), true
}

// Touch records activity on a connection.
func (r *Registry) Touch(connID domain.ConnectionID) {
	conn, ok := r.lookup(connID)
	if !ok {
		return
	}
	conn.mu.Lock()
	conn.lastSeen = r.now()
	conn.mu.Unlock()
}

func (r *Registry) Get(connID domain.ConnectionID) (contract.Connection, bool) {
	conn, ok := r.lookup(connID)
	if !ok {
		return contract.Connection{}, false
	}
	return conn.snapshot(), true
}

// Joined lists one presence entry per (connection, joined conversation) of this process.
func (r *Registry) Joined() []contract.Presence {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var presences []contract.Presence
	for _, conn := range r.connections {
		for _, conversationID := range conn.snapshot().Joined {
			presences = append(presences, contract.Presence{
				ConversationID: conversationID,
				UserID:         conn.userID,
				ConnectionID:   conn.id,
			})
		}
	}
	return presences
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

func (r *Registry) lookup(connID domain.ConnectionID) (*connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[connID]
	return conn, ok
}

func (c *connection) hasJoined(conversationID domain.ConversationID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.joined[conversationID]
	return ok
}

func (c *connection) snapshot() contract.Connection {
	c.mu.Lock()
	defer c.mu.Unlock()

	joined := make([]domain.ConversationID, 0, len(c.joined))
	for conversationID := range c.joined {
		joined = append(joined, conversationID)
	}
	sort.Slice(joined, func(i, j int) bool { return joined[i] < joined[j] })
	return contract.Connection{ID: c.id, UserID: c.userID, Joined: joined, LastSeen: c.lastSeen}
}
