// Package presence records which users hold a joined connection per conversation, across processes.
// Entries expire unless refreshed, a crashed process disappears after one TTL.
package presence

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"sync"
	"time"
)

type MemoryPresence struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[domain.ConversationID]map[contract.Presence]time.Time
}

func NewMemoryPresence(ttl time.Duration) *MemoryPresence {
	return &MemoryPresence{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[domain.ConversationID]map[contract.Presence]time.Time),
	}
}

func (m *MemoryPresence) Mark(_ context.Context, p contract.Presence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, ok := m.entries[p.ConversationID]
	if !ok {
		entries = make(map[contract.Presence]time.Time)
		m.entries[p.ConversationID] = entries
	}
	entries[p] = m.now().Add(m.ttl)
	return nil
}

func (m *MemoryPresence) Clear(_ context.Context, p contract.Presence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entries, ok := m.entries[p.ConversationID]; ok {
		delete(entries, p)
		if len(entries) == 0 {
			delete(m.entries, p.ConversationID)
		}
	}
	return nil
}

func (m *MemoryPresence) Present(_ context.Context, conversationID domain.ConversationID) (map[domain.UserID]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	present := make(map[domain.UserID]struct{})
	for p, expiry := range m.entries[conversationID] {
		if expiry.After(now) {
			present[p.UserID] = struct{}{}
		}
	}
	return present, nil
}

func (m *MemoryPresence) Prune(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for conversationID, entries := range m.entries {
		for p, expiry := range entries {
			if !expiry.After(now) {
				delete(entries, p)
			}
		}
		if len(entries) == 0 {
			delete(m.entries, conversationID)
		}
	}
	return nil
}
