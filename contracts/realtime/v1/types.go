package v1

import "time"

// Event names (wire-stable). Carried in the "event" field of Envelope.Data.
const (
	EventNewMessage  = "new_message"
	EventReadReceipt = "read_receipt"
	EventPresence    = "presence"
)

// NewMessageEvent notifies a recipient about a message in one of their conversations.
type NewMessageEvent struct {
	Event          string    `json:"event"`
	ConversationID string    `json:"conversation_id,omitempty"`
	MessageID      string    `json:"message_id,omitempty"`
	SenderID       string    `json:"sender_id,omitempty"`
	Content        string    `json:"content"`
	ImageURL       string    `json:"img_url,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitzero"`
}

// ReadReceiptEvent tells a sender that a reader has seen a conversation up to a message.
type ReadReceiptEvent struct {
	Event          string    `json:"event"`
	ConversationID string    `json:"conversation_id"`
	ReaderID       string    `json:"reader_id"`
	LastReadID     string    `json:"last_read_message_id,omitempty"`
	ReadAt         time.Time `json:"read_at,omitzero"`
}

// PresenceEvent reports whether a user currently holds at least one live socket.
type PresenceEvent struct {
	Event  string    `json:"event"`
	UserID string    `json:"user_id"`
	Online bool      `json:"online"`
	At     time.Time `json:"at,omitzero"`
}
