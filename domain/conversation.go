package domain

import (
	"time"

	"github.com/samber/lo"
)

// Conversation is a named or ad-hoc group of participants.
// Participants is the only field the authorization gate relies on.
type Conversation struct {
	ID           ConversationID `json:"id"`
	Participants []UserID       `json:"participantIds"`
	IsGroup      bool           `json:"isGroup"`
	GroupName    string         `json:"groupName,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// HasParticipant reports whether userID belongs to the conversation.
func (c Conversation) HasParticipant(userID UserID) bool {
	return lo.Contains(c.Participants, userID)
}

// OtherParticipants returns every participant except userID, in storage order.
func (c Conversation) OtherParticipants(userID UserID) []UserID {
	return lo.Without(c.Participants, userID)
}
