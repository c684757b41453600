package domain

// SendMessageCommand is the intent of a sender to post in a conversation.
// Content may be empty when MediaRef points to an uploaded object.
type SendMessageCommand struct {
	ConversationID ConversationID
	SenderID       UserID
	Content        string
	MediaRef       string
}

// TypingCommand toggles the typing indicator of a user in a conversation.
type TypingCommand struct {
	ConversationID ConversationID
	UserID         UserID
	IsTyping       bool
}

// Notification is the payload handed to the push collaborator.
type Notification struct {
	Title          string
	Body           string
	ConversationID ConversationID
}
