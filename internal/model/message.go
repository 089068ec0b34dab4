package model

// Message size and attachment limits.
const (
	MaxMessageBody     = 2000
	MaxAttachments     = 10
	MaxAttachmentBytes = 25 << 20
)

// Attachment is upload metadata stored by value inside its message. The
// bytes themselves live with the upload service; only the URL travels here.
type Attachment struct {
	ID          string    `json:"id"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	URL         string    `json:"url"`
	UploadedBy  string    `json:"uploadedBy"`
	CreatedAt   Timestamp `json:"createdAt"`
}

// ReactionSummary is the aggregate for one emoji on one message.
type ReactionSummary struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

// Message is one entry in a conversation. ConversationID is the thread id
// for direct-thread messages and the channel id otherwise, so fan-out and
// read markers address both kinds uniformly.
type Message struct {
	ID             string            `json:"id"`
	ChannelID      string            `json:"channelId"`
	ConversationID string            `json:"conversationId"`
	DirectThreadID string            `json:"directThreadId,omitempty"`
	AuthorID       string            `json:"authorId"`
	Body           string            `json:"body"`
	Attachments    []Attachment      `json:"attachments"`
	ReplyToID      string            `json:"replyToId,omitempty"`
	Reactions      []ReactionSummary `json:"reactions"`
	CreatedAt      Timestamp         `json:"createdAt"`
	UpdatedAt      Timestamp         `json:"updatedAt,omitzero"`
}

// MessageRef is the payload of a message.deleted event and the body of a
// successful message delete response.
type MessageRef struct {
	ID             string `json:"id"`
	ChannelID      string `json:"channelId"`
	ConversationID string `json:"conversationId"`
	DirectThreadID string `json:"directThreadId,omitempty"`
}

// Ref returns the message's identity tuple.
func (m *Message) Ref() MessageRef {
	return MessageRef{
		ID:             m.ID,
		ChannelID:      m.ChannelID,
		ConversationID: m.ConversationID,
		DirectThreadID: m.DirectThreadID,
	}
}

// ReactionUpdate is the payload of a reaction.updated event: the refreshed
// summary of one message's reactions.
type ReactionUpdate struct {
	ConversationID string            `json:"conversationId"`
	DirectThreadID string            `json:"directThreadId,omitempty"`
	MessageID      string            `json:"messageId"`
	Reactions      []ReactionSummary `json:"reactions"`
}
