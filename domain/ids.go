// Package domain contains core concepts of the chat system.
// No runtime, network, or storage logic should be added here.
package domain

// UserID identifies an account. Opaque outside the storage layer.
type UserID string

// ConversationID identifies a chat, either one-to-one or group.
type ConversationID string

// ConnectionID identifies one live transport attached to one process.
// A user holding several devices owns several connection ids.
type ConnectionID string

// MessageID is assigned by the storage layer when a message is persisted.
type MessageID string

func (u UserID) String() string { return string(u) }
func (c ConversationID) String() string { return string(c) }
func (c ConnectionID) String() string { return string(c) }
func (m MessageID) String() string { return string(m) }
