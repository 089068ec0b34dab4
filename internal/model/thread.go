package model

// ThreadKind distinguishes 1:1 threads from group threads.
type ThreadKind string

const (
	ThreadDM    ThreadKind = "dm"
	ThreadGroup ThreadKind = "group"
)

// DirectThread is a conversation outside any server, carried by a hidden
// backing channel. For dm threads the unordered participant pair is unique.
type DirectThread struct {
	ID             string     `json:"id"`
	ChannelID      string     `json:"channelId"`
	Kind           ThreadKind `json:"kind"`
	OwnerID        string     `json:"ownerId"`
	Title          string     `json:"title,omitempty"`
	ParticipantIDs []string   `json:"participantIds"`
	CreatedAt      Timestamp  `json:"createdAt"`
	UpdatedAt      Timestamp  `json:"updatedAt"`
}

// ReadMarker remembers the last message a user considers read in one
// conversation. A conversation the user never marked yields the empty
// sentinel: no message id and no update time.
type ReadMarker struct {
	ConversationID    string    `json:"conversationId"`
	UserID            string    `json:"userId"`
	LastReadMessageID string    `json:"lastReadMessageId,omitempty"`
	UpdatedAt         Timestamp `json:"updatedAt,omitzero"`
}

// TypingIndicator is a transient signal that a user is composing. It is
// fanned out and forgotten; clients clear it at ExpiresAt.
type TypingIndicator struct {
	ConversationID string    `json:"conversationId"`
	DirectThreadID string    `json:"directThreadId,omitempty"`
	UserID         string    `json:"userId"`
	IsTyping       bool      `json:"isTyping"`
	ExpiresAt      Timestamp `json:"expiresAt"`
}
