package models

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// MessageStatus marks a transient message state. A resolved message
// carries no status at all.
type MessageStatus string

const (
	StatusPending MessageStatus = "pending"
	StatusError   MessageStatus = "error"
)

// ChatMessage is a single bubble in a session's log. Details is attached
// only to bot messages resolved from a successful backend reply and feeds
// the expandable inspector.
type ChatMessage struct {
	ID      string        `json:"id"`
	Role    Role          `json:"role"`
	Content string        `json:"content"`
	Status  MessageStatus `json:"status,omitempty"`
	Details *ChatResult   `json:"details,omitempty"`
}
