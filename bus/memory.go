package bus

import (
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
)

const memoryQueueSize = 256

// MemoryBroker stands for the shared pub/sub server between relay processes.
// Each process gets its own MemoryBus from NewBus.
type MemoryBroker struct {
	mu          sync.Mutex
	subscribers map[*MemoryBus]struct{}
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subscribers: make(map[*MemoryBus]struct{})}
}

func (b *MemoryBroker) NewBus(log *slog.Logger) *MemoryBus {
	return &MemoryBus{broker: b, log: log}
}

// broadcast holds the lock while enqueuing so that two publishers
// can't interleave their events differently for two subscribers.
func (b *MemoryBroker) broadcast(ctx context.Context, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subscribers {
		select {
		case sub.queue <- data:
		case <-sub.stopped:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// MemoryBus is the in-process bus used by single node deployments and tests.
// Events go through the wire encoding, exactly like on Redis.
type MemoryBus struct {
	broker *MemoryBroker
	log    *slog.Logger

	mu         sync.Mutex
	subscribed bool
	closed     bool
	queue      chan []byte
	done       chan struct{}
	stopped    chan struct{}
}

func (m *MemoryBus) Publish(ctx context.Context, e event.Event) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return fmt.Errorf("%w: %w", errors.ErrPublish, errors.ErrBusClosed)
	}

	data, err := Encode(e)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrPublish, err)
	}
	if err = m.broker.broadcast(ctx, data); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrPublish, err)
	}
	return nil
}

// Subscribe starts the single receive loop of this process, later calls are no-ops.
// handler is invoked sequentially, in publish order.
func (m *MemoryBus) Subscribe(ctx context.Context, handler func(ctx context.Context, e event.Event)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.ErrBusClosed
	}
	if m.subscribed {
		return nil
	}

	m.queue = make(chan []byte, memoryQueueSize)
	m.done = make(chan struct{})
	m.stopped = make(chan struct{})
	m.subscribed = true

	m.broker.mu.Lock()
	m.broker.subscribers[m] = struct{}{}
	m.broker.mu.Unlock()

	go m.receive(ctx, m.queue, m.done, m.stopped, handler)
	return nil
}

func (m *MemoryBus) receive(ctx context.Context, queue <-chan []byte, done <-chan struct{}, stopped chan struct{}, handler func(ctx context.Context, e event.Event)) {
	defer m.unsubscribe(stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case data := <-queue:
			e, err := Decode(data)
			if err != nil {
				m.log.Warn("Dropping undecodable event", "error", err)
				continue
			}
			handler(ctx, e)
		}
	}
}

// unsubscribe lets a later Subscribe start a new receive loop.
func (m *MemoryBus) unsubscribe(stopped chan struct{}) {
	close(stopped)
	m.broker.mu.Lock()
	delete(m.broker.subscribers, m)
	m.broker.mu.Unlock()

	m.mu.Lock()
	m.subscribed = false
	m.mu.Unlock()
}

func (m *MemoryBus) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.done != nil {
		close(m.done)
	}
	return nil
}
